package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"aitrade-hq/governor/pkg/cli"
	"aitrade-hq/governor/pkg/config"
	"aitrade-hq/governor/pkg/store"
	"aitrade-hq/governor/pkg/telemetry/metrics"
)

const testProfile = `system:
  name: bot
exchange:
  venue: binance
risk:
  max_abs_notional_usd: 100
execution:
  max_order_notional: 50
strategy:
  signal_notional_usd: 10
`

func TestMain(m *testing.M) {
	// Claim the config singleton so tests can swap it with SetConfig.
	if err := config.Initialize(""); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// useConfig points the singleton at a fresh temp layout with a passing run.
func useConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Paths.ControlRoot = filepath.Join(dir, "control")
	cfg.Paths.ConfigRoot = filepath.Join(dir, "config")
	cfg.Paths.ReportsRoot = filepath.Join(dir, "reports")
	cfg.Telemetry.Logging.Level = "error"

	if err := os.MkdirAll(cfg.Paths.ReportsRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"latest_runtime_assess.json":     `{"verdict":"PASS"}`,
		"latest_closed_loop_report.json": `{"overall_status":"PASS"}`,
	} {
		if err := os.WriteFile(filepath.Join(cfg.Paths.ReportsRoot, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	prev := config.GetConfig()
	config.SetConfig(cfg)
	t.Cleanup(func() { config.SetConfig(prev) })
	return cfg
}

// execute runs the CLI with args and returns stdout and the exit code.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		// Flag variables outlive a single Execute.
		stateSetFlags = nil
		stateJSONFlag = ""
	})

	err := rootCmd.Execute()
	return buf.String(), cli.ExitCode(err)
}

func TestDraftLifecycle(t *testing.T) {
	cfg := useConfig(t)
	src := filepath.Join(t.TempDir(), "spot.yaml")
	if err := os.WriteFile(src, []byte(testProfile), 0o644); err != nil {
		t.Fatal(err)
	}

	out, code := execute(t, "-o", "json", "--actor", "alice", "draft", "create", "--profile", "spot.yaml", "--file", src)
	if code != cli.ExitOK {
		t.Fatalf("draft create exit = %d, out = %s", code, out)
	}
	var created struct {
		DraftID string `json:"draft_id"`
	}
	if err := json.Unmarshal([]byte(out), &created); err != nil {
		t.Fatalf("draft create output is not JSON: %v\n%s", err, out)
	}

	out, code = execute(t, "-o", "json", "draft", "preview", created.DraftID)
	if code != cli.ExitOK {
		t.Fatalf("draft preview exit = %d, out = %s", code, out)
	}
	var preview struct {
		PublishGuard struct {
			PreviewDigest string `json:"preview_digest"`
			ConfirmPhrase string `json:"confirm_phrase"`
		} `json:"publish_guard"`
	}
	if err := json.Unmarshal([]byte(out), &preview); err != nil {
		t.Fatal(err)
	}

	_, code = execute(t, "--actor", "alice", "draft", "publish", created.DraftID,
		"--digest", preview.PublishGuard.PreviewDigest, "--confirm", "PUBLISH wrong")
	if code != cli.ExitBlocked {
		t.Errorf("publish with wrong phrase exit = %d, want %d", code, cli.ExitBlocked)
	}

	out, code = execute(t, "--actor", "alice", "draft", "publish", created.DraftID,
		"--digest", preview.PublishGuard.PreviewDigest, "--confirm", preview.PublishGuard.ConfirmPhrase)
	if code != cli.ExitOK {
		t.Fatalf("publish exit = %d, out = %s", code, out)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.ConfigRoot, "spot.yaml"))
	if err != nil || string(data) != testProfile {
		t.Fatalf("live profile = %q, %v", data, err)
	}

	out, code = execute(t, "-o", "text", "last-publish")
	if code != cli.ExitOK || !strings.Contains(out, created.DraftID) {
		t.Errorf("last-publish exit = %d, out = %s", code, out)
	}
}

func TestExitCodes(t *testing.T) {
	useConfig(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing draft", []string{"draft", "show", "20260301T120000Z_abcdef01"}, cli.ExitNotFound},
		{"malformed draft id", []string{"draft", "show", "nope"}, cli.ExitInvalid},
		{"unknown state field", []string{"state", "update", "--set", "colour=blue"}, cli.ExitInvalid},
		{"float in json patch", []string{"state", "update", "--json", `{"high_risk_required_approvals": 2.0}`}, cli.ExitInvalid},
		{"integer in json patch", []string{"-o", "json", "state", "update", "--json", `{"high_risk_required_approvals": 3}`}, cli.ExitOK},
		{"bad output format", []string{"-o", "xml", "state", "get"}, cli.ExitInvalid},
		{"no publish yet", []string{"-o", "text", "last-publish"}, cli.ExitNotFound},
		{"state get", []string{"-o", "text", "state", "get"}, cli.ExitOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, code := execute(t, tt.args...); code != tt.want {
				t.Errorf("exit = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestParsePatch(t *testing.T) {
	patch, err := parsePatch([]string{"publish_frozen=true", "high_risk_cooldown_seconds = 600", "x=1", "y=abc"})
	if err != nil {
		t.Fatalf("parsePatch() error = %v", err)
	}
	if patch["publish_frozen"] != true {
		t.Errorf("publish_frozen = %v", patch["publish_frozen"])
	}
	if patch["high_risk_cooldown_seconds"] != 600 {
		t.Errorf("high_risk_cooldown_seconds = %v", patch["high_risk_cooldown_seconds"])
	}
	if patch["x"] != 1 {
		t.Errorf("x = %#v, want int 1", patch["x"])
	}
	if patch["y"] != "abc" {
		t.Errorf("y = %v", patch["y"])
	}

	if _, err := parsePatch([]string{"novalue"}); err == nil {
		t.Error("parsePatch() accepted a pair without '='")
	}
}

func TestVersionCommand(t *testing.T) {
	out, code := execute(t, "version")
	if code != cli.ExitOK {
		t.Fatalf("version exit = %d", code)
	}
	for _, want := range []string{"Governor " + Version, runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}

func TestCommandsFlushMetricsToSpool(t *testing.T) {
	cfg := useConfig(t)

	for i := 0; i < 2; i++ {
		if out, code := execute(t, "-o", "json", "state", "get"); code != cli.ExitOK {
			t.Fatalf("state get exit = %d, out = %s", code, out)
		}
	}
	if _, code := execute(t, "-o", "json", "draft", "show", "20260101T000000Z_deadbeef"); code != cli.ExitNotFound {
		t.Fatalf("draft show exit = %d, want %d", code, cli.ExitNotFound)
	}

	records, err := store.New(cfg.Paths.ControlRoot)
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	metrics.NewSpool(records, nil).Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`governor_operations_total{operation="get_state",result="ok"} 2`,
		`governor_operations_total{operation="read_draft",result="not_found"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q from spooled metrics:\n%s", want, body)
		}
	}
}
