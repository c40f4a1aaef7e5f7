package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when no profile exists for a user ID.
var ErrNotFound = errors.New("profile not found")

// Store persists whole profile records.
type Store interface {
	Get(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user User) error
}

// MemoryStore is an in-memory Store. Records are kept encoded so callers
// never share state with the store.
type MemoryStore struct {
	records map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return &u, nil
}

func (s *MemoryStore) Update(_ context.Context, user User) error {
	if user.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", user.ID, err)
	}

	s.mu.Lock()
	s.records[user.ID] = data
	s.mu.Unlock()
	return nil
}
