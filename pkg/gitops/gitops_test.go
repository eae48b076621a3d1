package gitops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/profile"
)

func TestOpen_InitializesRepository(t *testing.T) {
	dir := t.TempDir()

	repo, err := Open(dir, Config{}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Errorf(".git not created: %v", err)
	}
	history, err := repo.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("new repository has %d commits", len(history))
	}

	if _, err := Open(dir, Config{}, nil); err != nil {
		t.Errorf("reopening existing repository error = %v", err)
	}
}

func TestRecordingStore_CommitsWrites(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir, Config{AuthorName: "governor", AuthorEmail: "ops@example.com"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	fs, err := profile.NewFSStore(dir, profile.NewNameRule(".yaml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	journal, err := audit.NewFileJournal(filepath.Join(t.TempDir(), "audit.jsonl"), nil)
	if err != nil {
		t.Fatal(err)
	}
	s := NewRecordingStore(fs, repo, journal, nil)
	ctx := context.Background()

	if err := s.Write(ctx, "live.yaml", "a: 1\n", "alice"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(ctx, "live.yaml", "a: 1\n", "alice"); err != nil {
		t.Fatalf("unchanged Write() error = %v", err)
	}
	if err := s.Write(ctx, "live.yaml", "a: 2\n", "bob"); err != nil {
		t.Fatal(err)
	}

	history, err := repo.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d commits, want 2", len(history))
	}
	if history[0].Author != "bob" || history[1].Author != "alice" {
		t.Errorf("authors = %s, %s", history[0].Author, history[1].Author)
	}

	events, err := journal.Tail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Action != audit.ActionGitOpsCommit || events[0].Result != audit.ResultOK {
		t.Errorf("unexpected audit events %+v", events)
	}

	content, _, err := s.Read(ctx, "live.yaml")
	if err != nil || content != "a: 2\n" {
		t.Errorf("Read() through wrapper = %q, %v", content, err)
	}
}
