package gitops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/profile"
)

// RecordingStore is a profile.Store that commits every successful write.
// A failed commit is logged and audited but never fails the write: the
// profile is already live by then.
type RecordingStore struct {
	profile.Store

	repo    *Repository
	journal audit.Journal
	logger  *slog.Logger
}

// NewRecordingStore wraps inner. journal may be nil.
func NewRecordingStore(inner profile.Store, repo *Repository, journal audit.Journal, logger *slog.Logger) *RecordingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingStore{
		Store:   inner,
		repo:    repo,
		journal: journal,
		logger:  logger.With("component", "gitops"),
	}
}

// Write implements profile.Store.
func (s *RecordingStore) Write(ctx context.Context, name, content, actor string) error {
	if err := s.Store.Write(ctx, name, content, actor); err != nil {
		return err
	}

	info, err := s.repo.Commit(ctx, name, actor, fmt.Sprintf("governor: update %s", name))
	switch {
	case errors.Is(err, ErrNoChanges):
		return nil
	case err != nil:
		s.logger.Error("failed to commit profile", "profile", name, "actor", actor, "error", err)
		audit.Record(ctx, s.journal, s.logger, &audit.Event{
			Actor:       actor,
			Action:      audit.ActionGitOpsCommit,
			Result:      audit.ResultError,
			ProfileName: name,
			Details:     map[string]any{"error": err.Error()},
		})
	default:
		audit.Record(ctx, s.journal, s.logger, &audit.Event{
			Actor:       actor,
			Action:      audit.ActionGitOpsCommit,
			ProfileName: name,
			Details:     map[string]any{"sha": info.SHA},
		})
	}
	return nil
}
