package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

// Session exposes the syllabus fields of one user's profile. Writes read the
// current record and store it whole with only the patched fields replaced.
type Session struct {
	store  Store
	userID string
}

// NewSession scopes store to userID.
func NewSession(store Store, userID string) *Session {
	return &Session{store: store, userID: userID}
}

func (s *Session) Read(ctx context.Context) (syllabus.Snapshot, error) {
	u, err := s.load(ctx)
	if err != nil {
		return syllabus.Snapshot{}, err
	}
	return syllabus.Snapshot{
		CustomSyllabus:  u.CustomSyllabus,
		SyllabusTracker: u.SyllabusTracker,
	}, nil
}

func (s *Session) Write(ctx context.Context, patch syllabus.Patch) error {
	u, err := s.load(ctx)
	if err != nil {
		return err
	}
	if patch.CustomSyllabus != nil {
		u.CustomSyllabus = patch.CustomSyllabus
	}
	if patch.SyllabusTracker != nil {
		u.SyllabusTracker = patch.SyllabusTracker
	}
	if err := s.store.Update(ctx, *u); err != nil {
		return fmt.Errorf("writing profile %s: %w", s.userID, err)
	}
	return nil
}

// load returns the stored profile, or an empty one for a new user.
func (s *Session) load(ctx context.Context) (*User, error) {
	u, err := s.store.Get(ctx, s.userID)
	if errors.Is(err, ErrNotFound) {
		return &User{ID: s.userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", s.userID, err)
	}
	return u, nil
}
