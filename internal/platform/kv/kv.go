// Package kv provides small key-value stores for client-side style state
// (e.g., the list of named protocols a user has created).
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a key-value store. Get reports false when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// FileStore keeps all entries in a single JSON object on disk. Values are
// stored as strings so arbitrary bytes, valid JSON or not, round-trip.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file is
// created on first Set.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("kv file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating kv directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, false, err
	}
	v, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[key] = string(value)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding kv file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing kv file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing kv file: %w", err)
	}
	return nil
}

func (s *FileStore) read() (map[string]string, error) {
	entries := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading kv file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding kv file: %w", err)
	}
	return entries, nil
}

type prefixed struct {
	prefix string
	store  Store
}

// WithPrefix scopes every key of store under prefix.
func WithPrefix(store Store, prefix string) Store {
	return prefixed{prefix: prefix, store: store}
}

func (p prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.store.Set(ctx, p.prefix+key, value)
}
