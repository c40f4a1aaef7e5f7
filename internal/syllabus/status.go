package syllabus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
)

var (
	// ErrInvalidStatus is returned when a status is not one of the known values.
	ErrInvalidStatus = errors.New("invalid topic status")
	// ErrInvalidArgument is returned for empty or malformed identifiers.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Status is the completion state of a topic.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts a raw value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Progress maps subject ID -> topic ID -> status. It is sparse: a missing
// entry means StatusNotStarted.
type Progress map[string]map[string]Status

// Status returns the recorded status of a topic, defaulting to not-started.
func (p Progress) Status(subjectID, topicID string) Status {
	if s, ok := p[subjectID][topicID]; ok {
		return s
	}
	return StatusNotStarted
}

// With returns a copy of p with one entry set. p is not modified; inner maps
// of other subjects are shared with p.
func (p Progress) With(subjectID, topicID string, status Status) Progress {
	next := make(Progress, len(p)+1)
	for k, v := range p {
		next[k] = v
	}
	topics := make(map[string]Status, len(p[subjectID])+1)
	for k, v := range p[subjectID] {
		topics[k] = v
	}
	topics[topicID] = status
	next[subjectID] = topics
	return next
}

// UnmarshalJSON decodes a stored progress mapping, dropping any entry that
// is not a known status string instead of failing the whole document.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var subjects map[string]json.RawMessage
	if err := json.Unmarshal(data, &subjects); err != nil {
		slog.Warn("discarding malformed progress mapping", "error", err)
		*p = Progress{}
		return nil
	}

	out := make(Progress, len(subjects))
	dropped := 0
	for subjectID, raw := range subjects {
		var topics map[string]json.RawMessage
		if err := json.Unmarshal(raw, &topics); err != nil {
			dropped++
			continue
		}
		clean := make(map[string]Status, len(topics))
		for topicID, rawStatus := range topics {
			var s Status
			if err := json.Unmarshal(rawStatus, &s); err != nil || !s.Valid() {
				dropped++
				continue
			}
			clean[topicID] = s
		}
		out[subjectID] = clean
	}
	if dropped > 0 {
		slog.Warn("dropped invalid progress entries", "count", dropped)
	}
	*p = out
	return nil
}

// Sanitized returns a copy of p without invalid statuses, plus the number
// of entries dropped.
func (p Progress) Sanitized() (Progress, int) {
	out := make(Progress, len(p))
	dropped := 0
	for subjectID, topics := range p {
		clean := make(map[string]Status, len(topics))
		for topicID, s := range topics {
			if !s.Valid() {
				dropped++
				continue
			}
			clean[topicID] = s
		}
		out[subjectID] = clean
	}
	return out, dropped
}

// CustomSubject is a subject created by the user at runtime.
type CustomSubject struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Topics   []curriculum.Topic `json:"topics"`
	Protocol string             `json:"protocol"`
}

// UnmarshalJSON also accepts records written with the older "mode" key
// in place of "protocol". Topics may be bare titles or objects carrying a
// title or name; a missing topic id is derived from the topic's position.
// Topics that cannot be decoded are dropped.
func (c *CustomSubject) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Topics   json.RawMessage `json:"topics"`
		Protocol string          `json:"protocol"`
		Mode     string          `json:"mode"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CustomSubject{ID: raw.ID, Name: raw.Name, Protocol: raw.Protocol, Topics: []curriculum.Topic{}}
	if c.Protocol == "" {
		c.Protocol = raw.Mode
	}

	var entries []json.RawMessage
	if len(raw.Topics) > 0 {
		if err := json.Unmarshal(raw.Topics, &entries); err != nil {
			slog.Warn("discarding malformed custom topics", "subject_id", c.ID, "error", err)
			return nil
		}
	}
	for i, rawTopic := range entries {
		var entry curriculum.TopicEntry
		if err := json.Unmarshal(rawTopic, &entry); err != nil {
			slog.Warn("dropping malformed custom topic", "subject_id", c.ID, "index", i, "error", err)
			continue
		}
		id := entry.ID
		if id == "" {
			id = curriculum.TopicID(c.ID, i)
		}
		c.Topics = append(c.Topics, curriculum.Topic{ID: id, Title: entry.Title})
	}
	return nil
}
