package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryKeyStore is a KeyStore backed by a map. Safe for concurrent use.
type MemoryKeyStore struct {
	mu    sync.Mutex
	items map[string][]byte
	// FetchErr, when set, is returned by every Fetch.
	FetchErr error
}

var _ KeyStore = (*MemoryKeyStore)(nil)

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{items: make(map[string][]byte)}
}

func (m *MemoryKeyStore) Fetch(service, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	data, ok := m.items[service+"/"+key]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryKeyStore) Store(service, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[service+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryKeyStore) Remove(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[service+"/"+key]; !ok {
		return ErrCredentialNotFound
	}
	delete(m.items, service+"/"+key)
	return nil
}

// FileKeyStore keeps each credential in its own owner-only file under Dir.
// Used by the command line tool, which has no platform keychain.
type FileKeyStore struct {
	Dir string
}

var _ KeyStore = FileKeyStore{}

func (f FileKeyStore) path(service, key string) (string, error) {
	for _, part := range []string{service, key} {
		if part == "" || strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid credential name %q", part)
		}
	}
	return filepath.Join(f.Dir, service+"."+key), nil
}

func (f FileKeyStore) Fetch(service, key string) ([]byte, error) {
	path, err := f.path(service, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialNotFound
	}
	return data, err
}

func (f FileKeyStore) Store(service, key string, data []byte) error {
	path, err := f.path(service, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.Dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (f FileKeyStore) Remove(service, key string) error {
	path, err := f.path(service, key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrCredentialNotFound
	}
	return err
}

// StaticAppState is an AppState with fixed answers.
type StaticAppState struct {
	MainApp bool
	Active  bool
}

func (s StaticAppState) IsMainApp() bool { return s.MainApp }
func (s StaticAppState) IsActive() bool  { return s.Active }
