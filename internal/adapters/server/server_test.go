package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hylla/flyt/internal/adapters/storage/sqlite"
	"github.com/hylla/flyt/internal/app"
)

func newTestService(t *testing.T) *app.Service {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "flyt.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return app.NewService(repo, uuid.NewString, nil, nil, app.ServiceConfig{})
}

func TestNewHandlerServesHealthAndAPI(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, newTestService(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	if cfg.APIEndpoint != "/api/v1" {
		t.Fatalf("unexpected api endpoint %q", cfg.APIEndpoint)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/boards", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected boards response %d %q", rec.Code, rec.Body.String())
	}
}

func TestNewHandlerRequiresService(t *testing.T) {
	if _, _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("expected error for missing service")
	}
}

func TestNormalizeConfigDefaults(t *testing.T) {
	cfg := normalizeConfig(Config{})
	if cfg.HTTPBind != defaultBindAddress {
		t.Fatalf("unexpected bind %q", cfg.HTTPBind)
	}
	if cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected shutdown timeout %v", cfg.ShutdownTimeout)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/api/v1"},
		{"/", "/api/v1"},
		{"api/v2", "/api/v2"},
		{"/api/v2/", "/api/v2"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.in, "/api/v1"); got != tc.want {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
