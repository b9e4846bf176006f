package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Manager serves the effective settings: stored values laid field-wise over
// the process defaults. The result is cached until the next Update, Reset
// or Reload.
type Manager struct {
	store    Store
	defaults ServerSettings
	logger   zerolog.Logger

	mu      sync.RWMutex
	current *ServerSettings
}

func NewManager(store Store, defaults ServerSettings, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		defaults: defaults,
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// Defaults returns the process defaults.
func (m *Manager) Defaults() ServerSettings { return m.defaults }

// Current returns the effective settings. A failing store falls back to
// the defaults and logs a warning.
func (m *Manager) Current(ctx context.Context) ServerSettings {
	m.mu.RLock()
	if m.current != nil {
		s := *m.current
		m.mu.RUnlock()
		return s
	}
	m.mu.RUnlock()
	return m.Reload(ctx)
}

// Reload re-reads the store.
func (m *Manager) Reload(ctx context.Context) ServerSettings {
	stored, err := m.store.Load(ctx)
	var effective ServerSettings
	switch {
	case err == nil:
		effective = stored.mergeOver(m.defaults)
	case errors.Is(err, ErrNotFound):
		effective = m.defaults
	default:
		m.logger.Warn().Err(err).Msg("failed to load settings, using defaults")
		return m.defaults
	}

	m.mu.Lock()
	m.current = &effective
	m.mu.Unlock()
	return effective
}

// Update merges p over the current settings, validates and saves them.
func (m *Manager) Update(ctx context.Context, p Patch) (ServerSettings, error) {
	next := p.apply(m.Current(ctx))
	if err := next.Validate(); err != nil {
		return ServerSettings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.store.Save(ctx, next); err != nil {
		return ServerSettings{}, fmt.Errorf("save settings: %w", err)
	}

	m.mu.Lock()
	m.current = &next
	m.mu.Unlock()

	m.logger.Info().
		Str("server_url", next.ServerURL).
		Str("server_name", next.ServerName).
		Int("timeout_ms", next.Timeout).
		Msg("settings updated")
	return next, nil
}

// Reset deletes the saved settings and returns the defaults.
func (m *Manager) Reset(ctx context.Context) (ServerSettings, error) {
	if err := m.store.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		return ServerSettings{}, fmt.Errorf("delete settings: %w", err)
	}
	d := m.defaults

	m.mu.Lock()
	m.current = &d
	m.mu.Unlock()

	m.logger.Info().Msg("settings reset to defaults")
	return d, nil
}
