package profile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed profile is re-read.
const DefaultDebounce = 200 * time.Millisecond

// Drift is an out-of-band change to a live profile.
type Drift struct {
	ProfileName    string `json:"profile_name"`
	PreviousSHA256 string `json:"previous_sha256"`
	CurrentSHA256  string `json:"current_sha256"`
	Removed        bool   `json:"removed"`
}

// DriftWatcher watches the profile directory and reports profiles whose
// content no longer matches the last content the engine wrote to them.
type DriftWatcher struct {
	store    *FSStore
	debounce time.Duration
	logger   *slog.Logger
}

// NewDriftWatcher creates a watcher over store. A non-positive debounce uses
// DefaultDebounce.
func NewDriftWatcher(store *FSStore, debounce time.Duration, logger *slog.Logger) *DriftWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DriftWatcher{
		store:    store,
		debounce: debounce,
		logger:   logger.With("component", "profile.watcher"),
	}
}

// Watch blocks until ctx is done, calling onDrift for every detected drift.
// The current profiles are snapshotted as the baseline before watching.
func (w *DriftWatcher) Watch(ctx context.Context, onDrift func(context.Context, Drift)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.store.Root()); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.store.Root(), err)
	}
	if err := w.store.Snapshot(ctx); err != nil {
		return fmt.Errorf("failed to snapshot profiles: %w", err)
	}

	deb := newDebouncer(w.debounce)
	defer deb.stop()

	w.logger.Info("profile drift watcher started",
		"path", w.store.Root(),
		"debounce_ms", w.debounce.Milliseconds(),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("profile drift watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			name := filepath.Base(event.Name)
			if !w.relevant(event, name) {
				continue
			}
			w.logger.Debug("profile event", "profile", name, "op", event.Op.String())
			deb.trigger(name, func() {
				if drift, ok := w.check(ctx, name); ok {
					onDrift(ctx, drift)
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("profile watcher error", "error", err)
		}
	}
}

func (w *DriftWatcher) relevant(event fsnotify.Event, name string) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !isHidden(name) && w.store.Names().Match(name)
}

// check re-reads name and compares it with the written record.
func (w *DriftWatcher) check(ctx context.Context, name string) (Drift, bool) {
	content, exists, err := w.store.Read(ctx, name)
	if err != nil {
		w.logger.Error("failed to read changed profile", "profile", name, "error", err)
		return Drift{}, false
	}
	current := ""
	if exists {
		current = Digest(content)
	}
	prev, drifted, err := w.store.observe(name, current)
	if err != nil {
		w.logger.Error("failed to read written record", "profile", name, "error", err)
		return Drift{}, false
	}
	if !drifted {
		return Drift{}, false
	}

	drift := Drift{
		ProfileName:    name,
		PreviousSHA256: prev,
		CurrentSHA256:  current,
		Removed:        !exists,
	}
	w.logger.Warn("profile drift detected",
		"profile", name,
		"previous_sha256", prev,
		"current_sha256", current,
		"removed", !exists,
	)
	return drift, true
}
