// Package backup snapshots live profiles before they are overwritten and
// restores them on rollback. Backups are immutable: a file is created
// exclusively and never rewritten or removed by the engine.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"aitrade-hq/governor/pkg/governance/audit"
	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/store"
)

const (
	backupsDir     = "backups"
	nameTimeLayout = "20060102T150405Z"
	maxSequence    = 999

	// MaxFileNameLength bounds a backup file name.
	MaxFileNameLength = 260
)

// Backup reasons recorded in the audit journal.
const (
	ReasonBeforePublish  = "before_publish"
	ReasonBeforeRollback = "before_rollback"
)

// Backups written here are {timestamp}-{seq}_{profile}. Older unsequenced
// {timestamp}_{profile} backups are still listed; the distinct separator
// keeps a numeric profile prefix from reading as a sequence.
var (
	namePattern       = regexp.MustCompile(`^([0-9]{8}T[0-9]{6}Z)-[0-9]{3}_(.+)$`)
	legacyNamePattern = regexp.MustCompile(`^([0-9]{8}T[0-9]{6}Z)_(.+)$`)
)

// WriteGate decides whether profile writes are currently allowed.
type WriteGate interface {
	CheckWrite(ctx context.Context, op string) error
}

// Summary describes one backup file.
type Summary struct {
	BackupFile  string    `json:"backup_file"`
	ProfileName string    `json:"profile_name"`
	CreatedAt   time.Time `json:"created_at_utc"`
	SizeBytes   int64     `json:"size_bytes"`
}

// RollbackResult is returned by a successful rollback.
type RollbackResult struct {
	RolledBack       bool      `json:"rolled_back"`
	TargetProfile    string    `json:"target_profile"`
	SourceBackupFile string    `json:"source_backup_file"`
	BeforeBackupFile string    `json:"before_backup_file,omitempty"`
	RolledBackAt     time.Time `json:"rolled_back_at"`
	ContentSHA256    string    `json:"content_sha256"`
}

// Manager creates, lists and restores backups.
type Manager struct {
	records  *store.Store
	profiles profile.Store
	names    profile.NameRule
	journal  audit.Journal
	gate     WriteGate
	now      func() time.Time
	logger   *slog.Logger
}

// Config wires a Manager.
type Config struct {
	Records  *store.Store
	Profiles profile.Store
	Names    profile.NameRule
	Journal  audit.Journal
	Gate     WriteGate
	Now      func() time.Time
	Logger   *slog.Logger
}

// NewManager creates a backup manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Records == nil || cfg.Profiles == nil {
		return nil, fmt.Errorf("backup manager requires a record store and a profile store")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Records.EnsureDir(backupsDir); err != nil {
		return nil, err
	}
	return &Manager{
		records:  cfg.Records,
		profiles: cfg.Profiles,
		names:    cfg.Names,
		journal:  cfg.Journal,
		gate:     cfg.Gate,
		now:      cfg.Now,
		logger:   cfg.Logger.With("component", "governance.backup"),
	}, nil
}

// BackupTarget writes content to a new backup file for profileName and
// audits config.backup. The name is {timestamp}-{seq}_{profile}; seq
// separates backups taken within the same second. Callers hold the profile
// lock.
func (m *Manager) BackupTarget(ctx context.Context, profileName, content, actor, reason string) (string, error) {
	stamp := m.now().UTC().Format(nameTimeLayout)

	for seq := 0; seq <= maxSequence; seq++ {
		name := fmt.Sprintf("%s-%03d_%s", stamp, seq, profileName)
		err := store.CreateExclusive(m.records.Path(backupsDir+"/"+name), []byte(content), 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to write backup for %s: %w", profileName, err)
		}

		m.logger.Info("profile backed up", "profile", profileName, "backup_file", name, "reason", reason)
		audit.Record(ctx, m.journal, m.logger, &audit.Event{
			Actor:       actor,
			Action:      audit.ActionConfigBackup,
			ProfileName: profileName,
			BackupFile:  name,
			Details: map[string]any{
				"reason":         reason,
				"content_sha256": profile.Digest(content),
			},
		})
		return name, nil
	}
	return "", fmt.Errorf("too many backups for %s within %s", profileName, stamp)
}

// ListBackups returns up to limit backups, newest first. A non-empty
// profileFilter keeps only backups of that exact profile.
func (m *Manager) ListBackups(ctx context.Context, profileFilter string, limit int) ([]Summary, error) {
	names, err := m.records.List(backupsDir, "")
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit < 1 {
		limit = 1
	}

	out := make([]Summary, 0, min(limit, len(names)))
	for _, name := range names {
		if len(out) >= limit {
			break
		}
		if profileFilter != "" && !strings.HasSuffix(name, "_"+profileFilter) {
			continue
		}
		sum, ok := m.summarize(name)
		if !ok {
			continue
		}
		if profileFilter != "" && sum.ProfileName != profileFilter {
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}

// Rollback restores backupFile over targetProfile. The current live content,
// if any, is backed up first with reason before_rollback.
func (m *Manager) Rollback(ctx context.Context, backupFile, targetProfile, actor string) (*RollbackResult, error) {
	const op = "rollback"
	if err := ValidateFileName(op, backupFile); err != nil {
		return nil, err
	}
	if err := m.names.Validate(op, targetProfile); err != nil {
		return nil, err
	}
	if m.gate != nil {
		if err := m.gate.CheckWrite(ctx, op); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(m.records.Path(backupsDir + "/" + backupFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, governerr.NotFoundf(op, "backup not found: %s", backupFile)
		}
		return nil, fmt.Errorf("failed to read backup %s: %w", backupFile, err)
	}
	content := string(data)

	unlock, err := m.records.Lock(profile.LockKey(targetProfile))
	if err != nil {
		return nil, err
	}
	defer unlock()

	live, exists, err := m.profiles.Read(ctx, targetProfile)
	if err != nil {
		return nil, err
	}
	result := &RollbackResult{
		RolledBack:       true,
		TargetProfile:    targetProfile,
		SourceBackupFile: backupFile,
		ContentSHA256:    profile.Digest(content),
	}
	if exists {
		before, err := m.BackupTarget(ctx, targetProfile, live, actor, ReasonBeforeRollback)
		if err != nil {
			return nil, err
		}
		result.BeforeBackupFile = before
	}

	if err := m.profiles.Write(ctx, targetProfile, content, actor); err != nil {
		return nil, err
	}
	result.RolledBackAt = m.now().UTC().Truncate(time.Second)

	m.logger.Info("profile rolled back",
		"profile", targetProfile,
		"backup_file", backupFile,
		"before_backup_file", result.BeforeBackupFile,
		"actor", actor,
	)
	audit.Record(ctx, m.journal, m.logger, &audit.Event{
		Actor:       actor,
		Action:      audit.ActionConfigRollback,
		ProfileName: targetProfile,
		BackupFile:  backupFile,
		Details: map[string]any{
			"before_backup_file": result.BeforeBackupFile,
			"content_sha256":     result.ContentSHA256,
		},
	})
	return result, nil
}

// ValidateFileName rejects empty, overlong and path-like backup names.
func ValidateFileName(op, name string) error {
	switch {
	case name == "":
		return governerr.Invalidf(op, "backup_file is required")
	case len(name) > MaxFileNameLength:
		return governerr.Invalidf(op, "backup_file longer than %d characters", MaxFileNameLength)
	case strings.ContainsAny(name, `/\`) || strings.Contains(name, ".."):
		return governerr.Invalidf(op, "invalid backup_file: %s", name)
	}
	return nil
}

func (m *Manager) summarize(name string) (Summary, bool) {
	match := namePattern.FindStringSubmatch(name)
	if match == nil {
		match = legacyNamePattern.FindStringSubmatch(name)
	}
	if match == nil {
		return Summary{}, false
	}
	created, err := time.Parse(nameTimeLayout, match[1])
	if err != nil {
		return Summary{}, false
	}
	fi, err := os.Stat(m.records.Path(backupsDir + "/" + name))
	if err != nil {
		return Summary{}, false
	}
	return Summary{
		BackupFile:  name,
		ProfileName: match[2],
		CreatedAt:   created.UTC(),
		SizeBytes:   fi.Size(),
	}, true
}
