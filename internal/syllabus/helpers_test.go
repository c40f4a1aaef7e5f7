package syllabus_test

import (
	"context"
	"errors"
	"sync"

	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

// memorySession is a syllabus.Session that keeps the profile fields in memory.
type memorySession struct {
	mu       sync.Mutex
	snap     syllabus.Snapshot
	writes   []syllabus.Patch
	writeErr error
}

func (s *memorySession) Read(context.Context) (syllabus.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func (s *memorySession) Write(_ context.Context, patch syllabus.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, patch)
	if s.writeErr != nil {
		return s.writeErr
	}
	if patch.CustomSyllabus != nil {
		s.snap.CustomSyllabus = patch.CustomSyllabus
	}
	if patch.SyllabusTracker != nil {
		s.snap.SyllabusTracker = patch.SyllabusTracker
	}
	return nil
}

func (s *memorySession) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// failingKV fails every operation.
type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("kv unavailable")
}

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("kv unavailable")
}
