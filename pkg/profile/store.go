// Package profile is the live configuration profile collaborator: the
// directory of named profile files the governance engine publishes into,
// plus a watcher that reports out-of-band edits (drift).
package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"aitrade-hq/governor/pkg/store"
)

// Store reads and writes live profiles by name. Names are validated by the
// caller with a NameRule.
type Store interface {
	// Read returns the profile text and whether the profile exists.
	Read(ctx context.Context, name string) (content string, exists bool, err error)

	// Write atomically replaces the profile.
	Write(ctx context.Context, name, content, actor string) error

	// List returns the profiles, sorted by name.
	List(ctx context.Context) ([]Info, error)
}

// Info describes one live profile.
type Info struct {
	Name       string    `json:"profile_name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at_utc"`
}

// LockKey is the store.Locker key serializing writes to a profile.
func LockKey(name string) string {
	return "profile/" + name
}

// FSStore keeps profiles as files in one directory.
//
// Every write first records the new digest as the profile's written record
// (under records, when configured) and only then replaces the file. The
// drift watcher compares what it reads against that record, so writes made
// by any process sharing the control root are recognized as governed.
type FSStore struct {
	root    string
	names   NameRule
	records *store.Store
	logger  *slog.Logger

	mu sync.Mutex
	// written holds digests this process wrote; it backs the durable
	// record when records is nil.
	written map[string]string
	// baseline holds digests snapshotted for profiles with no written record.
	baseline map[string]string
	// seen holds the digest the watcher last observed.
	seen map[string]string
}

// WrittenRecord is the durable record of the last content the engine wrote
// to a profile.
type WrittenRecord struct {
	ProfileName string    `json:"profile_name"`
	SHA256      string    `json:"sha256"`
	Actor       string    `json:"actor"`
	WrittenAt   time.Time `json:"written_at_utc"`
}

// FSStoreOption configures an FSStore.
type FSStoreOption func(*FSStore)

// WithWrittenRecords keeps the written record of each profile in records
// under profiles/<name>.json.
func WithWrittenRecords(records *store.Store) FSStoreOption {
	return func(s *FSStore) {
		s.records = records
	}
}

// NewFSStore creates a profile store rooted at dir, creating it if needed.
func NewFSStore(dir string, names NameRule, logger *slog.Logger, opts ...FSStoreOption) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("profile root cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile root %q: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &FSStore{
		root:     dir,
		names:    names,
		logger:   logger.With("component", "profile.store"),
		written:  make(map[string]string),
		baseline: make(map[string]string),
		seen:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the profile directory.
func (s *FSStore) Root() string {
	return s.root
}

// Names returns the name rule.
func (s *FSStore) Names() NameRule {
	return s.names
}

// Read implements Store.
func (s *FSStore) Read(ctx context.Context, name string) (string, bool, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read profile %q: %w", name, err)
	}
	return string(data), true, nil
}

// Write implements Store. The written record is updated before the file is
// replaced, so a watcher in any process never reports the write as drift.
// Callers serialize writes per profile with LockKey.
func (s *FSStore) Write(ctx context.Context, name, content, actor string) error {
	digest := Digest(content)

	prev, hadPrev, err := s.recordWritten(name, &WrittenRecord{
		ProfileName: name,
		SHA256:      digest,
		Actor:       actor,
		WrittenAt:   time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		return err
	}

	if err := store.WriteFileAtomic(s.path(name), []byte(content), 0o644); err != nil {
		s.restoreWritten(name, prev, hadPrev)
		return fmt.Errorf("failed to write profile %q: %w", name, err)
	}

	s.logger.Info("profile written", "profile", name, "actor", actor, "sha256", digest)
	return nil
}

// Written returns the digest of the last content the engine wrote to name,
// or "" when it has never written the profile.
func (s *FSStore) Written(name string) (string, error) {
	rec, err := s.readWritten(name)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.SHA256, nil
}

func (s *FSStore) recordKey(name string) string {
	return "profiles/" + filepath.Base(name) + ".json"
}

func (s *FSStore) readWritten(name string) (*WrittenRecord, error) {
	if s.records == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		digest, ok := s.written[name]
		if !ok {
			return nil, nil
		}
		return &WrittenRecord{ProfileName: name, SHA256: digest}, nil
	}

	var rec WrittenRecord
	err := s.records.ReadJSON(s.recordKey(name), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read written record for %q: %w", name, err)
	}
	return &rec, nil
}

// recordWritten stores rec and returns the record it replaced.
func (s *FSStore) recordWritten(name string, rec *WrittenRecord) (*WrittenRecord, bool, error) {
	prev, err := s.readWritten(name)
	if err != nil {
		// An unreadable record is replaced, never restored.
		s.logger.Warn("replacing unreadable written record", "profile", name, "error", err)
		prev = nil
	}

	s.mu.Lock()
	s.written[name] = rec.SHA256
	s.mu.Unlock()

	if s.records != nil {
		if err := s.records.WriteJSON(s.recordKey(name), rec); err != nil {
			s.restoreWritten(name, prev, prev != nil)
			return nil, false, fmt.Errorf("failed to record write of profile %q: %w", name, err)
		}
	}
	return prev, prev != nil, nil
}

func (s *FSStore) restoreWritten(name string, prev *WrittenRecord, hadPrev bool) {
	s.mu.Lock()
	if hadPrev {
		s.written[name] = prev.SHA256
	} else {
		delete(s.written, name)
	}
	s.mu.Unlock()

	if s.records == nil {
		return
	}
	var err error
	if hadPrev {
		err = s.records.WriteJSON(s.recordKey(name), prev)
	} else {
		err = os.Remove(s.records.Path(s.recordKey(name)))
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
	}
	if err != nil {
		s.logger.Error("failed to restore written record", "profile", name, "error", err)
	}
}

// List implements Store.
func (s *FSStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !s.names.Match(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:       entry.Name(),
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime().UTC(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Snapshot records the current digest of every profile as the watcher's
// starting point. Profiles without a written record take it as their
// baseline.
func (s *FSStore) Snapshot(ctx context.Context) error {
	infos, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		content, ok, err := s.Read(ctx, info.Name)
		if err != nil || !ok {
			continue
		}
		digest := Digest(content)
		s.mu.Lock()
		s.baseline[info.Name] = digest
		s.seen[info.Name] = digest
		s.mu.Unlock()
	}
	return nil
}

// observe compares the digest just read for name with the expected one: the
// written record if there is one, otherwise the snapshot baseline. It
// returns the expected digest and whether the content is drift the watcher
// has not reported yet. An empty digest means the profile is gone.
func (s *FSStore) observe(name, digest string) (expected string, drifted bool, err error) {
	// The file was read before the record, and writers record before they
	// replace the file, so a governed write always matches here.
	expected, err = s.Written(name)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if expected == "" {
		expected = s.baseline[name]
	}
	last, hadLast := s.seen[name]
	s.seen[name] = digest

	if digest == expected || (hadLast && last == digest) {
		return expected, false, nil
	}
	return expected, true, nil
}

func (s *FSStore) path(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}

// Digest returns the hex sha256 of content.
func Digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func isHidden(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ".")
}
