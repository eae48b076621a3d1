package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite journal backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite journal configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:        "data/control_plane/audit.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteJournal stores events in a SQLite table ordered by insertion sequence.
type SQLiteJournal struct {
	db     *sql.DB
	config *SQLiteConfig
	now    func() time.Time
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteJournal opens the database and creates the schema.
func NewSQLiteJournal(config *SQLiteConfig, logger *slog.Logger) (*SQLiteJournal, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dsn(config.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// One writer keeps the chain append strictly sequential.
	db.SetMaxOpenConns(1)

	j := &SQLiteJournal{
		db:     db,
		config: config,
		now:    time.Now,
		logger: logger.With("component", "audit.sqlite"),
	}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	j.logger.Info("SQLite audit journal initialized", "path", config.Path, "wal_mode", config.WALMode)
	return j, nil
}

// dsn opens write transactions with BEGIN IMMEDIATE, so a second process
// waits on busy_timeout instead of reading a chain head that is about to move.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

func (j *SQLiteJournal) initialize() error {
	if j.config.WALMode {
		if _, err := j.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := j.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", j.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := j.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	if _, err := j.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	var version int
	if err := j.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("audit schema version mismatch: expected %d, got %d", SchemaVersion, version)
	}
	return nil
}

// Append implements Journal.
func (j *SQLiteJournal) Append(ctx context.Context, event *Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	var prev sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT hash FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read chain head: %w", err)
	}

	stamp(event, j.now)
	event.PrevHash = prev.String
	event.Hash, err = ComputeHash(event)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, ts, actor, action, result, draft_id, profile_name, backup_file, payload, prev_hash, hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, event.Actor, event.Action, event.Result,
		nullable(event.DraftID), nullable(event.ProfileName), nullable(event.BackupFile),
		string(payload), event.PrevHash, event.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit event: %w", err)
	}
	return nil
}

// Tail implements Journal.
func (j *SQLiteJournal) Tail(ctx context.Context, limit int) ([]Event, error) {
	if limit < 1 {
		limit = 1
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT payload FROM audit_events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var newestFirst []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		newestFirst = append(newestFirst, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	events := make([]Event, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		events = append(events, newestFirst[i])
	}
	return events, nil
}

// Verify implements Journal.
func (j *SQLiteJournal) Verify(ctx context.Context) (*VerifyReport, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT payload FROM audit_events ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var (
		events  []storedEvent
		skipped int
	)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			skipped++
			continue
		}
		events = append(events, storedEvent{event: ev, raw: []byte(payload)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}
	return verifyChain(events, skipped), nil
}

// Close implements Journal.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
