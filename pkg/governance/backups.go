package governance

import (
	"context"

	"aitrade-hq/governor/pkg/governance/backup"
	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

// ListBackups returns up to limit backups, newest first, optionally only
// those of profileFilter.
func (s *Service) ListBackups(ctx context.Context, profileFilter string, limit int) (_ []backup.Summary, err error) {
	ctx, done := s.begin(ctx, OpListBackups, "", tracing.Profile(profileFilter))
	defer func() { done(err) }()

	if len(profileFilter) > MaxProfileFilterLength {
		return nil, governerr.Invalidf(OpListBackups, "profile filter longer than %d characters", MaxProfileFilterLength)
	}
	limit, err = checkLimit(OpListBackups, limit, DefaultBackupLimit, MaxBackupLimit)
	if err != nil {
		return nil, err
	}
	return s.backups.ListBackups(ctx, profileFilter, limit)
}

// Rollback restores backupFile over targetProfile after backing up whatever
// is live. Rollback is a write and is refused under the same conditions as
// publish: read-only, publish-frozen or inside a freeze window.
func (s *Service) Rollback(ctx context.Context, backupFile, targetProfile, actor string) (_ *backup.RollbackResult, err error) {
	actor = NormalizeActor(actor)
	ctx, done := s.begin(ctx, OpRollback, actor, tracing.BackupFile(backupFile), tracing.Profile(targetProfile))
	defer func() { done(err) }()

	return s.backups.Rollback(ctx, backupFile, targetProfile, actor)
}
