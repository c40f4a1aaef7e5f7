package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-syllabus/internal/platform/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Store.Backend = "memory"
	cfg.KV.Backend = "file"
	cfg.KV.Path = filepath.Join(t.TempDir(), "kv", "protocols.json")
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing")
	cfg.Auth.APIKeyHash = ""
	return cfg
}

func TestNewApp_HealthEndpoints(t *testing.T) {
	a, err := newApp(t.Context(), testConfig(t))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()
	h := a.server.Handler()

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewApp_PersistsProtocolsToFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	req := httptest.NewRequest(http.MethodPost, "/v1/protocols", strings.NewReader(`{"name":"upsc"}`))
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	restarted, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer restarted.close()

	rec = httptest.NewRecorder()
	restarted.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/protocols", nil))
	if !strings.Contains(rec.Body.String(), `"UPSC"`) {
		t.Errorf("protocols after restart = %s, want UPSC", rec.Body.String())
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantDebug bool
		wantJSON  bool
	}{
		{"json info", config.LogConfig{Level: "info", Format: "json"}, false, true},
		{"text debug", config.LogConfig{Level: "debug", Format: "text"}, true, false},
		{"bad level falls back to info", config.LogConfig{Level: "loud", Format: "json"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(tt.cfg, &buf)

			if got := logger.Enabled(t.Context(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			logger.Info("hello")
			if got := strings.HasPrefix(buf.String(), "{"); got != tt.wantJSON {
				t.Errorf("json output = %v, want %v (%q)", got, tt.wantJSON, buf.String())
			}
		})
	}
}
