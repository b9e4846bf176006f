package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationConsoleSettings creates the key/value table used by PGStore. It
// is safe to run repeatedly.
const MigrationConsoleSettings = `
CREATE TABLE IF NOT EXISTS console_settings (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const serverSettingsKey = "fhir_server"

type pgRow interface {
	Scan(dest ...any) error
}

// pgConn is the subset of a pgx pool PGStore needs; tests supply a fake.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Exec(ctx context.Context, sql string, args ...any) error
}

// PGStore keeps the settings as one JSONB row in console_settings.
type PGStore struct {
	db pgConn
}

func NewPGStore(db pgConn) *PGStore {
	return &PGStore{db: db}
}

// NewPGStoreFromPool wraps a pgx pool.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: &poolConn{pool: pool}}
}

// EnsureSchema creates the settings table if needed.
func (p *PGStore) EnsureSchema(ctx context.Context) error {
	if err := p.db.Exec(ctx, MigrationConsoleSettings); err != nil {
		return fmt.Errorf("create console_settings: %w", err)
	}
	return nil
}

func (p *PGStore) Load(ctx context.Context) (ServerSettings, error) {
	const query = `SELECT value FROM console_settings WHERE key = $1`

	var data []byte
	if err := p.db.QueryRow(ctx, query, serverSettingsKey).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServerSettings{}, ErrNotFound
		}
		return ServerSettings{}, fmt.Errorf("load settings: %w", err)
	}
	var s ServerSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return ServerSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

func (p *PGStore) Save(ctx context.Context, s ServerSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	const query = `INSERT INTO console_settings (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if err := p.db.Exec(ctx, query, serverSettingsKey, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (p *PGStore) Delete(ctx context.Context) error {
	const query = `DELETE FROM console_settings WHERE key = $1`
	if err := p.db.Exec(ctx, query, serverSettingsKey); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

// poolConn adapts *pgxpool.Pool, whose Exec also returns a command tag.
type poolConn struct {
	pool *pgxpool.Pool
}

func (c *poolConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return c.pool.QueryRow(ctx, sql, args...)
}

func (c *poolConn) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.pool.Exec(ctx, sql, args...)
	return err
}
