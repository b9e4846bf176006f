package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MemoryStore keeps the settings in process memory.
type MemoryStore struct {
	mu sync.RWMutex
	s  *ServerSettings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (ServerSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s == nil {
		return ServerSettings{}, ErrNotFound
	}
	return *m.s, nil
}

func (m *MemoryStore) Save(_ context.Context, s ServerSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = &s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// FileStore keeps the settings as a JSON file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(_ context.Context) (ServerSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return ServerSettings{}, ErrNotFound
	}
	if err != nil {
		return ServerSettings{}, fmt.Errorf("read settings file: %w", err)
	}
	var s ServerSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return ServerSettings{}, fmt.Errorf("decode settings file %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes to a temporary file and renames it over the target.
func (f *FileStore) Save(_ context.Context, s ServerSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove settings file: %w", err)
	}
	return nil
}
