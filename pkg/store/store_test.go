package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStore_WriteAndRead(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteJSON("drafts/a.json", &record{Name: "a", Count: 3}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var got record
	if err := s.ReadJSON("drafts/a.json", &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Name != "a" || got.Count != 3 {
		t.Errorf("unexpected record %+v", got)
	}

	exists, err := s.Exists("drafts/a.json")
	if err != nil || !exists {
		t.Errorf("expected record to exist, got %v, %v", exists, err)
	}

	// No temp files may be left next to the record.
	entries, err := os.ReadDir(s.Path("drafts"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one file in drafts, got %d", len(entries))
	}
}

func TestStore_ReadMissingAndCorrupt(t *testing.T) {
	s := newTestStore(t)

	var got record
	if err := s.ReadJSON("missing.json", &got); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"malformed", "{not json"},
		{"array", "[1, 2, 3]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := s.Path(tt.name + ".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to seed file: %v", err)
			}

			err := s.ReadJSON(tt.name+".json", &got)
			var corrupt *CorruptError
			if !errors.As(err, &corrupt) {
				t.Fatalf("expected CorruptError, got %v", err)
			}
			if corrupt.Path != path {
				t.Errorf("expected path %q, got %q", path, corrupt.Path)
			}
		})
	}
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"b.json", "a.json", "c.txt", ".hidden.json"} {
		if err := os.WriteFile(filepath.Join(s.Root(), name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}

	names, err := s.List("", ".json")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a.json" || names[1] != "b.json" {
		t.Errorf("unexpected names %v", names)
	}

	missing, err := s.List("nope", ".json")
	if err != nil || len(missing) != 0 {
		t.Errorf("expected empty list for missing dir, got %v, %v", missing, err)
	}
}

func TestCreateExclusive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.yaml")

	if err := CreateExclusive(path, []byte("first"), 0o644); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := CreateExclusive(path, []byte("second"), 0o644); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("existing file was modified: %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestLocker_SerializesAndReleases(t *testing.T) {
	l := NewLocker("")

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock("draft/x")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("expected 50 increments, got %d", counter)
	}
	if n := l.size(); n != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", n)
	}
}

func TestLocker_RejectsEscapingKeys(t *testing.T) {
	l := NewLocker(t.TempDir())
	for _, key := range []string{"", "../x", "/abs", "a/../../b"} {
		if _, err := l.Lock(key); err == nil {
			t.Errorf("Lock(%q) expected error", key)
		}
	}
}

// Two Stores over one root stand in for two governor processes: their
// in-process mutexes are distinct, so only the lock files keep the
// read-modify-write cycles from interleaving.
func TestStore_LockExcludesOtherInstances(t *testing.T) {
	root := t.TempDir()
	a, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.WriteJSON("counter.json", &record{Name: "c"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	const perStore = 40
	var wg sync.WaitGroup
	for _, s := range []*Store{a, b} {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(s *Store) {
				defer wg.Done()
				unlock, err := s.Lock("state")
				if err != nil {
					t.Errorf("Lock failed: %v", err)
					return
				}
				defer unlock()

				var r record
				if err := s.ReadJSON("counter.json", &r); err != nil {
					t.Errorf("ReadJSON failed: %v", err)
					return
				}
				r.Count++
				if err := s.WriteJSON("counter.json", &r); err != nil {
					t.Errorf("WriteJSON failed: %v", err)
				}
			}(s)
		}
	}
	wg.Wait()

	var got record
	if err := a.ReadJSON("counter.json", &got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Count != 2*perStore {
		t.Errorf("expected count %d, got %d (lost updates)", 2*perStore, got.Count)
	}
	if _, err := os.Stat(filepath.Join(root, "locks", "state.lock")); err != nil {
		t.Errorf("expected lock file under locks/: %v", err)
	}
}
