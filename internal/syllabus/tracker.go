// Package syllabus tracks per-topic study progress across named protocols
// (curricula), merging catalog templates with user-created subjects.
package syllabus

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
	"github.com/p-n-ai/pai-syllabus/internal/platform/kv"
)

// Snapshot is the tracker-owned part of a user profile.
type Snapshot struct {
	CustomSyllabus  []CustomSubject
	SyllabusTracker Progress
}

// Patch carries the fields to replace in the profile. A nil field is left
// unchanged.
type Patch struct {
	CustomSyllabus  []CustomSubject
	SyllabusTracker Progress
}

// Session reads and writes the tracker-owned fields of one user's profile.
type Session interface {
	Read(ctx context.Context) (Snapshot, error)
	Write(ctx context.Context, patch Patch) error
}

// Config holds dependencies for a Tracker.
type Config struct {
	Catalog    Catalog
	Session    Session
	Protocols  kv.Store   // holds the protocol list; in-memory when nil
	Builtins   []string   // defaults to DefaultBuiltins
	OnComplete func()     // called once per transition into done
	OnChange   func(View) // receives the active view after every mutation, under the tracker lock
	Now        func() time.Time
}

// ProtocolsView describes the registry for display.
type ProtocolsView struct {
	Protocols []string `json:"protocols"`
	Active    string   `json:"active"`
	Deletable []string `json:"deletable"`
}

// Tracker owns one user's syllabus session. In-memory state is updated
// before each write to the profile, so a projection taken right after a
// mutation always reflects it, whether or not the write succeeded.
type Tracker struct {
	mu         sync.Mutex
	catalog    Catalog
	session    Session
	registry   *Registry
	onComplete func()
	onChange   func(View)
	now        func() time.Time

	custom    []CustomSubject
	progress  Progress
	expanded  string
	lastStamp int64
}

// NewTracker restores a tracker from the session and the protocol store.
func NewTracker(ctx context.Context, cfg Config) (*Tracker, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog is nil", ErrInvalidArgument)
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("%w: session is nil", ErrInvalidArgument)
	}
	protocols := cfg.Protocols
	if protocols == nil {
		protocols = kv.NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	snap, err := cfg.Session.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	progress, dropped := snap.SyllabusTracker.Sanitized()
	if dropped > 0 {
		slog.Warn("dropped invalid topic statuses from profile", "count", dropped)
	}

	return &Tracker{
		catalog:    cfg.Catalog,
		session:    cfg.Session,
		registry:   LoadRegistry(ctx, protocols, cfg.Builtins),
		onComplete: cfg.OnComplete,
		onChange:   cfg.OnChange,
		now:        now,
		custom:     slices.Clone(snap.CustomSyllabus),
		progress:   progress,
	}, nil
}

// View projects the active protocol.
func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view()
}

// ViewProtocol projects any protocol without changing the active one.
func (t *Tracker) ViewProtocol(protocol string) View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return View{
		Protocol: protocol,
		Subjects: Project(protocol, t.catalog, t.custom, t.progress),
	}
}

// Summary aggregates the active protocol.
func (t *Tracker) Summary() Summary {
	return Summarize(t.View().Subjects)
}

func (t *Tracker) view() View {
	active := t.registry.Active()
	return View{
		Protocol: active,
		Expanded: t.expanded,
		Subjects: Project(active, t.catalog, t.custom, t.progress),
	}
}

// Protocols describes the protocol registry.
func (t *Tracker) Protocols() ProtocolsView {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.protocols()
}

func (t *Tracker) protocols() ProtocolsView {
	return ProtocolsView{
		Protocols: t.registry.List(),
		Active:    t.registry.Active(),
		Deletable: t.registry.Deletable(),
	}
}

// CreateProtocol registers a protocol (or selects it if it already exists).
func (t *Tracker) CreateProtocol(ctx context.Context, name string) ProtocolsView {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackActive(func() { t.registry.Create(ctx, name) })
	t.changed()
	return t.protocols()
}

// DeleteProtocol removes a user-created protocol.
func (t *Tracker) DeleteProtocol(ctx context.Context, name string) ProtocolsView {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trackActive(func() { t.registry.Delete(ctx, name) })
	t.changed()
	return t.protocols()
}

// SetActiveProtocol switches the active protocol if it is known.
func (t *Tracker) SetActiveProtocol(name string) ProtocolsView {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registry.SetActive(name) {
		t.expanded = ""
		t.changed()
	}
	return t.protocols()
}

// trackActive runs fn and closes the open subject if the active protocol changed.
func (t *Tracker) trackActive(fn func()) {
	before := t.registry.Active()
	fn()
	if t.registry.Active() != before {
		t.expanded = ""
	}
}

// Toggle opens subjectID, or closes it if it is already open.
func (t *Tracker) Toggle(subjectID string) View {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.expanded == subjectID {
		t.expanded = ""
	} else {
		t.expanded = subjectID
	}
	return t.changed()
}

// SetStatus records the status of one topic and persists the full progress
// map. Setting StatusDone calls the completion callback once.
func (t *Tracker) SetStatus(ctx context.Context, subjectID, topicID string, status Status) (View, error) {
	if !status.Valid() {
		return View{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if subjectID == "" || topicID == "" {
		return View{}, fmt.Errorf("%w: subject and topic ids are required", ErrInvalidArgument)
	}

	t.mu.Lock()
	t.progress = t.progress.With(subjectID, topicID, status)
	t.write(ctx, Patch{SyllabusTracker: t.progress})
	view := t.changed()
	t.mu.Unlock()

	if status == StatusDone && t.onComplete != nil {
		t.onComplete()
	}
	return view, nil
}

// AddCustomSubject creates a subject under the active protocol with at most
// one initial topic. A blank name is ignored.
func (t *Tracker) AddCustomSubject(ctx context.Context, name, topicTitle string) (View, error) {
	name = strings.TrimSpace(name)
	topicTitle = strings.TrimSpace(topicTitle)

	t.mu.Lock()
	defer t.mu.Unlock()

	if name == "" {
		return t.view(), nil
	}

	stamp := t.nextStamp()
	subject := CustomSubject{
		ID:       fmt.Sprintf("custom_%d", stamp),
		Name:     name,
		Topics:   []curriculum.Topic{},
		Protocol: t.registry.Active(),
	}
	if topicTitle != "" {
		subject.Topics = append(subject.Topics, curriculum.Topic{
			ID:    fmt.Sprintf("ct_%d", stamp),
			Title: topicTitle,
		})
	}

	custom := make([]CustomSubject, 0, len(t.custom)+1)
	custom = append(custom, t.custom...)
	t.custom = append(custom, subject)
	t.write(ctx, Patch{CustomSyllabus: t.custom})

	slog.Info("custom subject created",
		"subject_id", subject.ID,
		"protocol", subject.Protocol,
		"topics", len(subject.Topics),
	)
	return t.changed(), nil
}

// DeleteCustomSubject removes a user-created subject. Template subjects and
// unknown ids are ignored. Progress recorded for the subject is kept but no
// longer projected.
func (t *Tracker) DeleteCustomSubject(ctx context.Context, subjectID string) (View, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := slices.IndexFunc(t.custom, func(s CustomSubject) bool { return s.ID == subjectID })
	if idx < 0 {
		return t.view(), nil
	}

	custom := make([]CustomSubject, 0, len(t.custom)-1)
	custom = append(custom, t.custom[:idx]...)
	t.custom = append(custom, t.custom[idx+1:]...)
	if t.expanded == subjectID {
		t.expanded = ""
	}
	t.write(ctx, Patch{CustomSyllabus: t.custom})

	slog.Info("custom subject deleted", "subject_id", subjectID)
	return t.changed(), nil
}

// changed projects the active protocol and hands it to the change hook.
// Callers hold t.mu, so hooks observe views in mutation order.
func (t *Tracker) changed() View {
	view := t.view()
	if t.onChange != nil {
		t.onChange(view)
	}
	return view
}

// nextStamp returns a millisecond timestamp strictly greater than any
// previously issued one, so generated ids never collide.
func (t *Tracker) nextStamp() int64 {
	stamp := t.now().UnixMilli()
	if stamp <= t.lastStamp {
		stamp = t.lastStamp + 1
	}
	for t.hasCustomID(fmt.Sprintf("custom_%d", stamp)) {
		stamp++
	}
	t.lastStamp = stamp
	return stamp
}

func (t *Tracker) hasCustomID(id string) bool {
	return slices.ContainsFunc(t.custom, func(s CustomSubject) bool { return s.ID == id })
}

// write persists a patch. Failures are logged and otherwise ignored: the
// in-memory state stays authoritative for this session.
func (t *Tracker) write(ctx context.Context, patch Patch) {
	if err := t.session.Write(ctx, patch); err != nil {
		slog.Warn("persisting syllabus state failed", "error", err)
	}
}
