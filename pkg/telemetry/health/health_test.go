package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: StatusReady,
		},
		{
			name: "all pass",
			checks: map[string]CheckFunc{
				"a": func(context.Context) error { return nil },
				"b": func(context.Context) error { return nil },
			},
			wantStatus: StatusReady,
		},
		{
			name: "one fails",
			checks: map[string]CheckFunc{
				"a": func(context.Context) error { return nil },
				"b": func(context.Context) error { return errors.New("journal unreadable") },
			},
			wantStatus: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.RegisterCheck(name, check)
			}
			report := c.CheckReadiness(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", report.Status, tt.wantStatus)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	report := c.CheckReadiness(context.Background())
	res := report.Checks["slow"]
	if res.Status != StatusUnhealthy || !strings.Contains(res.Message, "timeout") {
		t.Errorf("result = %+v, want timeout", res)
	}
}

func TestDirAndWritableChecks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := DirCheck(dir)(ctx); err != nil {
		t.Errorf("DirCheck(dir) = %v", err)
	}
	if err := DirCheck(file)(ctx); err == nil {
		t.Error("DirCheck(file) should fail")
	}
	if err := DirCheck(filepath.Join(dir, "missing"))(ctx); err == nil {
		t.Error("DirCheck(missing) should fail")
	}
	if err := WritableCheck(dir)(ctx); err != nil {
		t.Errorf("WritableCheck = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("WritableCheck left %d entries", len(entries))
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("broken", func(context.Context) error { return errors.New("down") })

	mux := http.NewServeMux()
	Register(mux, c, "1.2.3")

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodHead, "/health", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantCode)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Version != "1.2.3" {
		t.Errorf("version = %q", info.Version)
	}
}
