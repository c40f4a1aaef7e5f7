package syllabus

import "github.com/p-n-ai/pai-syllabus/internal/curriculum"

// Catalog supplies the template subjects of a protocol.
type Catalog interface {
	Subjects(protocol string) []curriculum.Subject
}

// TopicView is a topic with its live status.
type TopicView struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// SubjectView is a subject ready for display.
type SubjectView struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Custom   bool        `json:"custom"`
	Progress int         `json:"progress"`
	Topics   []TopicView `json:"topics"`
}

// View is the projection of one protocol.
type View struct {
	Protocol string        `json:"protocol"`
	Expanded string        `json:"expanded,omitempty"`
	Subjects []SubjectView `json:"subjects"`
}

// Percent returns round(100*done/total) with halves rounded up, or 0 for an
// empty subject.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*done + total) / (2 * total)
}

// Project builds the subjects of protocol: templates in catalog order, then
// the user's custom subjects for that protocol in creation order. It has no
// side effects and returns the same result for the same inputs.
func Project(protocol string, catalog Catalog, custom []CustomSubject, progress Progress) []SubjectView {
	templates := catalog.Subjects(protocol)
	out := make([]SubjectView, 0, len(templates)+len(custom))
	for _, s := range templates {
		out = append(out, hydrate(s.ID, s.Name, s.Topics, false, progress))
	}
	for _, s := range custom {
		if s.Protocol != protocol {
			continue
		}
		out = append(out, hydrate(s.ID, s.Name, s.Topics, true, progress))
	}
	return out
}

func hydrate(id, name string, topics []curriculum.Topic, custom bool, progress Progress) SubjectView {
	views := make([]TopicView, 0, len(topics))
	done := 0
	for _, t := range topics {
		status := progress.Status(id, t.ID)
		if status == StatusDone {
			done++
		}
		views = append(views, TopicView{ID: t.ID, Title: t.Title, Status: status})
	}
	return SubjectView{
		ID:       id,
		Name:     name,
		Custom:   custom,
		Progress: Percent(done, len(views)),
		Topics:   views,
	}
}

// Summary aggregates a projection.
type Summary struct {
	Subjects          int `json:"subjects"`
	CompletedSubjects int `json:"completed_subjects"`
	Topics            int `json:"topics"`
	Done              int `json:"done"`
	InProgress        int `json:"in_progress"`
	NotStarted        int `json:"not_started"`
	Progress          int `json:"progress"`
}

// Summarize counts topics by status across subjects. A subject is completed
// when it has topics and all of them are done.
func Summarize(subjects []SubjectView) Summary {
	var s Summary
	s.Subjects = len(subjects)
	for _, subject := range subjects {
		done := 0
		for _, t := range subject.Topics {
			switch t.Status {
			case StatusDone:
				done++
			case StatusInProgress:
				s.InProgress++
			default:
				s.NotStarted++
			}
		}
		s.Done += done
		s.Topics += len(subject.Topics)
		if len(subject.Topics) > 0 && done == len(subject.Topics) {
			s.CompletedSubjects++
		}
	}
	s.Progress = Percent(s.Done, s.Topics)
	return s
}
