package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
	"github.com/p-n-ai/pai-syllabus/internal/report"
	"github.com/p-n-ai/pai-syllabus/internal/syllabus"
)

const (
	maxBodyBytes = 64 << 10
	checkTimeout = 2 * time.Second
	xlsxType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type protocolRequest struct {
	Name string `json:"name"`
}

type statusRequest struct {
	SubjectID string `json:"subjectId"`
	TopicID   string `json:"topicId"`
	Status    string `json:"status"`
}

type subjectRequest struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
}

type expandRequest struct {
	SubjectID string `json:"subjectId"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"check":  name,
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleListProtocols(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tr.Protocols())
}

func (s *Server) handleCreateProtocol(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req protocolRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, tr.CreateProtocol(r.Context(), req.Name))
}

func (s *Server) handleDeleteProtocol(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tr.DeleteProtocol(r.Context(), curriculum.ProtocolName(r.PathValue("name"))))
}

func (s *Server) handleSetActiveProtocol(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req protocolRequest
	if !decode(w, r, &req) {
		return
	}
	name := curriculum.ProtocolName(req.Name)
	view := tr.SetActiveProtocol(name)
	if view.Active != name {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown protocol %q", name))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	if protocol := curriculum.ProtocolName(r.URL.Query().Get("protocol")); protocol != "" {
		writeJSON(w, http.StatusOK, tr.ViewProtocol(protocol))
		return
	}
	writeJSON(w, http.StatusOK, tr.View())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tr.Summary())
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := syllabus.ParseStatus(req.Status)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	view, err := tr.SetStatus(r.Context(), req.SubjectID, req.TopicID, status)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAddSubject(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req subjectRequest
	if !decode(w, r, &req) {
		return
	}
	view, err := tr.AddCustomSubject(r.Context(), req.Name, req.Topic)
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	view, err := tr.DeleteCustomSubject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	var req expandRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, tr.Toggle(req.SubjectID))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}
	view := tr.View()
	if protocol := curriculum.ProtocolName(r.URL.Query().Get("protocol")); protocol != "" {
		view = tr.ViewProtocol(protocol)
	}

	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, view); err != nil {
		slog.Error("export failed", "protocol", view.Protocol, "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="syllabus-%s.xlsx"`, view.Protocol))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleLive streams the active projection: once on connect, then after
// every change made by the same user.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	user, tr, ok := s.tracker(w, r)
	if !ok {
		return
	}

	// Live connections outlast the server's per-request timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", user, "error", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.hub.Subscribe(user)
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	if err := wsjson.Write(ctx, conn, tr.View()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case view := <-updates:
			if err := wsjson.Write(ctx, conn, view); err != nil {
				slog.Debug("websocket write failed", "user_id", user, "error", err)
				return
			}
		}
	}
}

// tracker resolves the caller's tracker, writing an error response on failure.
func (s *Server) tracker(w http.ResponseWriter, r *http.Request) (string, *syllabus.Tracker, bool) {
	user, err := userID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", nil, false
	}
	tr, err := s.trackers.get(r.Context(), user)
	if err != nil {
		slog.Error("loading tracker failed", "user_id", user, "error", err)
		writeError(w, http.StatusInternalServerError, "loading syllabus failed")
		return "", nil, false
	}
	return user, tr, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, syllabus.ErrInvalidStatus), errors.Is(err, syllabus.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("syllabus request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
