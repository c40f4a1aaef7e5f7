package curriculum

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Topic is a catalog topic after normalization.
type Topic struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// Subject is a template subject within a protocol (e.g., Engineering Mathematics).
type Subject struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Topics []Topic `json:"topics" yaml:"topics"`
}

// Catalog maps a protocol name to its template subjects in display order.
type Catalog map[string][]Subject

// Subjects returns the template subjects for a protocol, or nil if it has none.
func (c Catalog) Subjects(protocol string) []Subject {
	return c[protocol]
}

// Protocols returns the protocol names that carry templates, sorted.
func (c Catalog) Protocols() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document is one catalog file as written on disk.
type Document struct {
	Protocol string         `yaml:"protocol"`
	Subjects []SubjectEntry `yaml:"subjects"`
}

// SubjectEntry is a subject as written in a catalog file.
type SubjectEntry struct {
	ID     string       `yaml:"id"`
	Name   string       `yaml:"name"`
	Topics []TopicEntry `yaml:"topics"`
}

// TopicEntry is a topic as written in a catalog file. It is either a bare
// title or a mapping with an explicit id and a title (or name).
type TopicEntry struct {
	ID    string
	Title string
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (e *TopicEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.ID = ""
		e.Title = node.Value
		return nil
	case yaml.MappingNode:
		var raw struct {
			ID    string `yaml:"id"`
			Title string `yaml:"title"`
			Name  string `yaml:"name"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.ID = raw.ID
		e.Title = raw.Title
		if e.Title == "" {
			e.Title = raw.Name
		}
		return nil
	default:
		return fmt.Errorf("line %d: topic must be a string or a mapping", node.Line)
	}
}

// UnmarshalJSON accepts the same two forms as UnmarshalYAML.
func (e *TopicEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*e = TopicEntry{}
		return json.Unmarshal(data, &e.Title)
	}
	var raw struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("topic must be a string or an object: %w", err)
	}
	e.ID = raw.ID
	e.Title = raw.Title
	if e.Title == "" {
		e.Title = raw.Name
	}
	return nil
}

// TopicID is the identifier given to the idx-th topic of a subject when the
// catalog does not name one. It must never change: stored progress is keyed by it.
func TopicID(subjectID string, idx int) string {
	return fmt.Sprintf("%s_t%d", subjectID, idx)
}

// Normalize converts a file subject into its canonical form.
func (s SubjectEntry) Normalize() Subject {
	topics := make([]Topic, 0, len(s.Topics))
	for i, t := range s.Topics {
		id := t.ID
		if id == "" {
			id = TopicID(s.ID, i)
		}
		topics = append(topics, Topic{ID: id, Title: t.Title})
	}
	return Subject{ID: s.ID, Name: s.Name, Topics: topics}
}
