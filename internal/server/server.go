// Package server exposes per-user syllabus trackers over HTTP and pushes
// fresh projections to WebSocket listeners after every change.
package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-syllabus/internal/activity"
	"github.com/p-n-ai/pai-syllabus/internal/platform/kv"
	"github.com/p-n-ai/pai-syllabus/internal/profile"
	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// Options holds the dependencies of a Server.
type Options struct {
	Catalog    syllabus.Catalog
	Profiles   profile.Store   // in-memory when nil
	KV         kv.Store        // in-memory when nil
	Activity   activity.Logger // discards events when nil
	Builtins   []string
	APIKeyHash string // bcrypt hash; empty disables authentication
	Checks     map[string]Checker

	MaxTrackers int           // trackers held in memory; 10000 when zero
	TrackerIdle time.Duration // idle time before a tracker is dropped; 30m when zero
}

// Server routes HTTP requests to the tracker of the calling user.
type Server struct {
	catalog    syllabus.Catalog
	profiles   profile.Store
	kv         kv.Store
	activity   activity.Logger
	builtins   []string
	apiKeyHash []byte
	checks     map[string]Checker

	trackers *trackers
	hub      *Hub
}

// New creates a server.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil {
		return nil, fmt.Errorf("%w: catalog is nil", syllabus.ErrInvalidArgument)
	}
	s := &Server{
		catalog:    opts.Catalog,
		profiles:   opts.Profiles,
		kv:         opts.KV,
		activity:   opts.Activity,
		builtins:   opts.Builtins,
		apiKeyHash: []byte(opts.APIKeyHash),
		checks:     opts.Checks,
		hub:        NewHub(),
	}
	if s.profiles == nil {
		s.profiles = profile.NewMemoryStore()
	}
	if s.kv == nil {
		s.kv = kv.NewMemoryStore()
	}
	if s.activity == nil {
		s.activity = activity.NopLogger{}
	}
	s.trackers = newTrackers(opts.MaxTrackers, opts.TrackerIdle, s.newTracker)
	return s, nil
}

// Hub returns the live update hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) newTracker(ctx context.Context, userID string) (*syllabus.Tracker, error) {
	tr, err := syllabus.NewTracker(ctx, syllabus.Config{
		Catalog:    s.catalog,
		Session:    profile.NewSession(s.profiles, userID),
		Protocols:  kv.WithPrefix(s.kv, "user:"+userID+":"),
		Builtins:   s.builtins,
		OnComplete: activity.CompletionHook(s.activity, userID),
		OnChange:   func(view syllabus.View) { s.hub.Publish(userID, view) },
	})
	if err != nil {
		return nil, fmt.Errorf("restoring tracker for %s: %w", userID, err)
	}
	slog.Info("tracker restored", "user_id", userID)
	return tr, nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/protocols", s.handleListProtocols)
	api.HandleFunc("POST /v1/protocols", s.handleCreateProtocol)
	api.HandleFunc("DELETE /v1/protocols/{name}", s.handleDeleteProtocol)
	api.HandleFunc("PUT /v1/protocols/active", s.handleSetActiveProtocol)

	api.HandleFunc("GET /v1/syllabus", s.handleView)
	api.HandleFunc("GET /v1/syllabus/summary", s.handleSummary)
	api.HandleFunc("PUT /v1/syllabus/status", s.handleSetStatus)
	api.HandleFunc("POST /v1/syllabus/subjects", s.handleAddSubject)
	api.HandleFunc("DELETE /v1/syllabus/subjects/{id}", s.handleDeleteSubject)
	api.HandleFunc("PUT /v1/syllabus/expanded", s.handleToggle)
	api.HandleFunc("GET /v1/syllabus/export.xlsx", s.handleExport)
	api.HandleFunc("GET /v1/syllabus/ws", s.handleLive)

	mux.Handle("/v1/", s.requireAPIKey(api))
	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
