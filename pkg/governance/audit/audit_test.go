package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newJournals(t *testing.T) map[string]Journal {
	t.Helper()

	dir := t.TempDir()
	file, err := NewFileJournal(filepath.Join(dir, "audit.log"), nil)
	if err != nil {
		t.Fatalf("NewFileJournal failed: %v", err)
	}
	db, err := NewSQLiteJournal(&SQLiteConfig{
		Path:        filepath.Join(dir, "audit.db"),
		WALMode:     true,
		BusyTimeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewSQLiteJournal failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Journal{"file": file, "sqlite": db}
}

func TestJournal_AppendTailVerify(t *testing.T) {
	ctx := context.Background()

	for name, j := range newJournals(t) {
		t.Run(name, func(t *testing.T) {
			actions := []string{ActionDraftCreate, ActionDraftApprove, ActionDraftPublish}
			for i, action := range actions {
				ev := &Event{
					Actor:   "alice",
					Action:  action,
					DraftID: "20260215T010000Z_deadbeef",
					Details: map[string]any{"step": i, "state": map[string]any{"z": true, "a": 2.5}},
				}
				if err := j.Append(ctx, ev); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
				if ev.ID == "" || ev.Hash == "" || ev.Timestamp.IsZero() {
					t.Fatalf("expected event to be stamped, got %+v", ev)
				}
				if ev.Result != ResultOK {
					t.Errorf("expected default result ok, got %q", ev.Result)
				}
			}

			events, err := j.Tail(ctx, 2)
			if err != nil {
				t.Fatalf("Tail failed: %v", err)
			}
			if len(events) != 2 {
				t.Fatalf("expected 2 events, got %d", len(events))
			}
			if events[0].Action != ActionDraftApprove || events[1].Action != ActionDraftPublish {
				t.Errorf("expected chronological tail, got %s, %s", events[0].Action, events[1].Action)
			}
			if events[1].PrevHash != events[0].Hash {
				t.Error("expected events to be chained")
			}

			report, err := j.Verify(ctx)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !report.OK || report.Events != 3 {
				t.Errorf("expected intact chain of 3, got %+v", report)
			}
		})
	}
}

func TestFileJournal_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.log")

	j, err := NewFileJournal(path, nil)
	if err != nil {
		t.Fatalf("NewFileJournal failed: %v", err)
	}
	for _, actor := range []string{"alice", "bob"} {
		if err := j.Append(ctx, &Event{Actor: actor, Action: ActionDraftApprove}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	tampered := strings.Replace(string(data), `"actor":"alice"`, `"actor":"mallory"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	report, err := j.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if report.OK {
		t.Fatal("expected tampering to be detected")
	}
	if report.Reason != "event hash mismatch" {
		t.Errorf("unexpected reason %q", report.Reason)
	}
}

func TestFileJournal_SkipsTornLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.log")

	j, err := NewFileJournal(path, nil)
	if err != nil {
		t.Fatalf("NewFileJournal failed: %v", err)
	}
	if err := j.Append(ctx, &Event{Actor: "alice", Action: ActionStateUpdate}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	f.WriteString(`{"id":"torn","act`)
	f.Close()

	if err := j.Append(ctx, &Event{Actor: "bob", Action: ActionStateUpdate}); err != nil {
		t.Fatalf("Append after torn line failed: %v", err)
	}

	events, err := j.Tail(ctx, 10)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 decodable events, got %d", len(events))
	}

	report, err := j.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.OK || report.Skipped != 1 {
		t.Errorf("expected intact chain with one skipped line, got %+v", report)
	}
}
