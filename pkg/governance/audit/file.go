package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aitrade-hq/governor/pkg/store"
)

// FileJournal stores events as JSON lines in a single append-only file.
type FileJournal struct {
	journal *store.Journal
	now     func() time.Time
	logger  *slog.Logger
}

// NewFileJournal opens (or prepares) the journal file at path.
func NewFileJournal(path string, logger *slog.Logger) (*FileJournal, error) {
	j, err := store.OpenJournal(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileJournal{
		journal: j,
		now:     time.Now,
		logger:  logger.With("component", "audit.file"),
	}, nil
}

// Append implements Journal.
func (f *FileJournal) Append(ctx context.Context, event *Event) error {
	return f.journal.WithLock(func() error {
		prev, err := f.lastHash()
		if err != nil {
			return err
		}

		stamp(event, f.now)
		event.PrevHash = prev
		event.Hash, err = ComputeHash(event)
		if err != nil {
			return err
		}

		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode audit event: %w", err)
		}
		if err := f.journal.AppendLineLocked(line); err != nil {
			return err
		}

		f.logger.Debug("audit event appended", "action", event.Action, "actor", event.Actor, "id", event.ID)
		return nil
	})
}

// Tail implements Journal. Lines that fail to decode are skipped.
func (f *FileJournal) Tail(ctx context.Context, limit int) ([]Event, error) {
	lines, err := f.journal.Tail(limit)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Verify implements Journal.
func (f *FileJournal) Verify(ctx context.Context) (*VerifyReport, error) {
	var (
		events  []storedEvent
		skipped int
	)
	err := f.journal.Scan(func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			skipped++
			return nil
		}
		events = append(events, storedEvent{event: ev, raw: line})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verifyChain(events, skipped), nil
}

// Close implements Journal.
func (f *FileJournal) Close() error {
	return nil
}

// lastHash returns the hash of the newest decodable event.
func (f *FileJournal) lastHash() (string, error) {
	last, err := f.journal.Last()
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", nil
	}

	var ev Event
	if err := json.Unmarshal(last, &ev); err == nil {
		return ev.Hash, nil
	}

	// The newest line is torn; fall back to the newest intact event.
	hash := ""
	err = f.journal.Scan(func(line []byte) error {
		var candidate Event
		if json.Unmarshal(line, &candidate) == nil {
			hash = candidate.Hash
		}
		return nil
	})
	return hash, err
}

func stamp(event *Event, now func() time.Time) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now().UTC().Truncate(time.Second)
	}
	if event.Result == "" {
		event.Result = ResultOK
	}
}
