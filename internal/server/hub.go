package server

import (
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

// Hub fans out fresh syllabus views to every live connection of a user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan syllabus.View]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan syllabus.View]struct{}),
	}
}

// Subscribe registers a listener for userID. The returned channel holds at
// most one pending view; a slow reader only ever sees the latest one.
func (h *Hub) Subscribe(userID string) (<-chan syllabus.View, func()) {
	ch := make(chan syllabus.View, 1)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan syllabus.View]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	slog.Debug("live subscriber added", "user_id", userID)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
		})
	}
}

// Subscribers returns the number of live listeners for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Publish delivers view to every listener of userID without blocking.
func (h *Hub) Publish(userID string, view syllabus.View) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- view:
			continue
		default:
		}
		// Replace the stale pending view.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}
