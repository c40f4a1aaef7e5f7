// Package profile stores user profile records and exposes the syllabus
// fields of one profile as a syllabus.Session.
package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

// User is a profile record. Only the syllabus fields are interpreted; every
// other key of the stored document is carried in Extra and written back
// unchanged.
type User struct {
	ID              string
	CustomSyllabus  []syllabus.CustomSubject
	SyllabusTracker syllabus.Progress
	Extra           map[string]json.RawMessage
}

const (
	keyID              = "id"
	keyCustomSyllabus  = "customSyllabus"
	keySyllabusTracker = "syllabusTracker"
)

func (u User) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(u.Extra)+3)
	for k, v := range u.Extra {
		doc[k] = v
	}
	custom := u.CustomSyllabus
	if custom == nil {
		custom = []syllabus.CustomSubject{}
	}
	tracker := u.SyllabusTracker
	if tracker == nil {
		tracker = syllabus.Progress{}
	}
	doc[keyID] = u.ID
	doc[keyCustomSyllabus] = custom
	doc[keySyllabusTracker] = tracker
	return json.Marshal(doc)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*u = User{}
	if raw, ok := doc[keyID]; ok {
		if err := json.Unmarshal(raw, &u.ID); err != nil {
			return fmt.Errorf("decoding %s: %w", keyID, err)
		}
	}
	if raw, ok := doc[keyCustomSyllabus]; ok && string(raw) != "null" {
		u.CustomSyllabus = decodeCustomSyllabus(u.ID, raw)
	}
	if raw, ok := doc[keySyllabusTracker]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &u.SyllabusTracker); err != nil {
			return fmt.Errorf("decoding %s: %w", keySyllabusTracker, err)
		}
	}

	delete(doc, keyID)
	delete(doc, keyCustomSyllabus)
	delete(doc, keySyllabusTracker)
	if len(doc) > 0 {
		u.Extra = doc
	}
	return nil
}

// decodeCustomSyllabus keeps every custom subject that decodes and has an
// id. A malformed entry never makes the profile unreadable.
func decodeCustomSyllabus(userID string, raw json.RawMessage) []syllabus.CustomSubject {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		slog.Warn("discarding malformed custom syllabus", "user_id", userID, "error", err)
		return nil
	}
	out := make([]syllabus.CustomSubject, 0, len(entries))
	for i, entry := range entries {
		var s syllabus.CustomSubject
		if err := json.Unmarshal(entry, &s); err != nil || s.ID == "" {
			slog.Warn("dropping malformed custom subject", "user_id", userID, "index", i, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out
}
