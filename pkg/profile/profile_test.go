package profile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/store"
)

func TestNameRule(t *testing.T) {
	rule := NewNameRule(".yaml")

	tests := []struct {
		name string
		want bool
	}{
		{"bybit.demo.evolution.yaml", true},
		{"a_b-c.yaml", true},
		{"profile.yml", false},
		{".yaml", false},
		{"../x.yaml", false},
		{"a/b.yaml", false},
		{"a b.yaml", false},
		{string(make([]byte, 200)) + ".yaml", false},
	}

	for _, tt := range tests {
		if got := rule.Match(tt.name); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if err := rule.Validate("test", "nope.txt"); !governerr.Is(err, governerr.Invalid) {
		t.Errorf("Validate() error = %v, want invalid", err)
	}
	if NewNameRule("yml").Extension() != ".yml" {
		t.Error("extension without dot should be normalized")
	}
}

func TestFSStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir, NewNameRule(""), nil)
	if err != nil {
		t.Fatalf("NewFSStore() error = %v", err)
	}
	ctx := context.Background()

	if _, ok, err := s.Read(ctx, "a.yaml"); err != nil || ok {
		t.Fatalf("Read(missing) = ok %v err %v", ok, err)
	}

	if err := s.Write(ctx, "a.yaml", "system:\n", "alice"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "b.yaml", "risk:\n", "alice"); err != nil {
		t.Fatal(err)
	}

	content, ok, err := s.Read(ctx, "a.yaml")
	if err != nil || !ok || content != "system:\n" {
		t.Errorf("Read() = %q, %v, %v", content, ok, err)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[0].Name != "a.yaml" || infos[1].Name != "b.yaml" {
		t.Errorf("List() = %+v", infos)
	}
	if infos[0].SizeBytes != int64(len("system:\n")) {
		t.Errorf("SizeBytes = %d", infos[0].SizeBytes)
	}
}

func TestDriftWatcher(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir, NewNameRule(".yaml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "live.yaml"), []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		drifts []Drift
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := NewDriftWatcher(s, 30*time.Millisecond, nil)
	go func() {
		done <- w.Watch(ctx, func(_ context.Context, d Drift) {
			mu.Lock()
			drifts = append(drifts, d)
			mu.Unlock()
		})
	}()
	time.Sleep(150 * time.Millisecond)

	// The engine's own write is not drift.
	if err := s.Write(ctx, "live.yaml", "a: 2\n", "alice"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	// An outside edit is.
	if err := os.WriteFile(filepath.Join(dir, "live.yaml"), []byte("a: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(drifts)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(drifts) != 1 {
		t.Fatalf("got %d drifts, want 1: %+v", len(drifts), drifts)
	}
	d := drifts[0]
	if d.ProfileName != "live.yaml" || d.PreviousSHA256 != Digest("a: 2\n") || d.CurrentSHA256 != Digest("a: 3\n") {
		t.Errorf("unexpected drift %+v", d)
	}
}

// The daemon's store runs the watcher while a second store over the same
// directories, standing in for a CLI process, performs the governed writes.
func TestDriftWatcher_WritesFromAnotherStoreAreNotDrift(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, "config")
	controlDir := filepath.Join(dir, "control")

	open := func() *FSStore {
		records, err := store.New(controlDir)
		if err != nil {
			t.Fatal(err)
		}
		s, err := NewFSStore(configDir, NewNameRule(".yaml"), nil, WithWrittenRecords(records))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	daemon, cli := open(), open()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cli.Write(ctx, "live.yaml", "a: 1\n", "alice"); err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		drifts []Drift
	)
	done := make(chan error, 1)
	w := NewDriftWatcher(daemon, 30*time.Millisecond, nil)
	go func() {
		done <- w.Watch(ctx, func(_ context.Context, d Drift) {
			mu.Lock()
			drifts = append(drifts, d)
			mu.Unlock()
		})
	}()
	time.Sleep(150 * time.Millisecond)

	// A publish and then a rollback, both from the other process.
	if err := cli.Write(ctx, "live.yaml", "a: 2\n", "alice"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	if err := cli.Write(ctx, "live.yaml", "a: 1\n", "bob"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	if len(drifts) != 0 {
		t.Errorf("governed writes reported as drift: %+v", drifts)
	}
	mu.Unlock()

	if err := os.WriteFile(filepath.Join(configDir, "live.yaml"), []byte("a: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(drifts)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(drifts) != 1 {
		t.Fatalf("got %d drifts, want 1: %+v", len(drifts), drifts)
	}
	if d := drifts[0]; d.PreviousSHA256 != Digest("a: 1\n") || d.CurrentSHA256 != Digest("a: 9\n") {
		t.Errorf("unexpected drift %+v", d)
	}

	got, err := daemon.Written("live.yaml")
	if err != nil || got != Digest("a: 1\n") {
		t.Errorf("Written() = %q, %v", got, err)
	}
}
