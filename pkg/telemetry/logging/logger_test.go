package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json", config: Config{Level: "info", Format: "json"}},
		{name: "text", config: Config{Level: "debug", Format: "text"}},
		{name: "defaults", config: Config{}},
		{name: "uppercase", config: Config{Level: "WARN", Format: "JSON"}},
		{name: "invalid level", config: Config{Level: "verbose"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Writer = &buf
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn record missing")
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithActor(context.Background(), "alice")
	ctx = WithOperation(ctx, "publish")
	ctx = WithDraftID(ctx, "20260101T000000Z_abcdef12")

	logger.With("component", "governance").InfoContext(ctx, "published")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v: %s", err, buf.String())
	}
	want := map[string]string{
		"actor":     "alice",
		"operation": "publish",
		"draft_id":  "20260101T000000Z_abcdef12",
		"component": "governance",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
	if _, ok := rec["trace_id"]; ok {
		t.Error("trace_id present without an active span")
	}
	if GetActor(ctx) != "alice" {
		t.Errorf("GetActor = %q", GetActor(ctx))
	}
}

func TestContextAttrs_Empty(t *testing.T) {
	if attrs := ContextAttrs(context.Background()); len(attrs) != 0 {
		t.Errorf("expected no attrs, got %v", attrs)
	}
}
