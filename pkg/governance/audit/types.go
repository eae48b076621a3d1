// Package audit records every state-changing governance operation in an
// append-only, hash-chained journal.
//
// Each event carries the hash of its predecessor (PrevHash) and its own hash
// (Hash), computed over the canonical JSON form of the event without the Hash
// field. Verify walks the chain and reports the first broken link. The
// journal is diagnostic, not authoritative: nothing in the publish path reads
// it back.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Actions recorded by the governance engine.
const (
	ActionStateUpdate    = "state.update"
	ActionDraftCreate    = "draft.create"
	ActionDraftValidate  = "draft.validate"
	ActionDraftApprove   = "draft.approve"
	ActionDraftPublish   = "draft.publish"
	ActionConfigBackup   = "config.backup"
	ActionConfigRollback = "config.rollback"
	ActionProfileDrift   = "profile.drift"
	ActionGitOpsCommit   = "gitops.commit"
)

// Results recorded on events.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Event is a single immutable audit record.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"ts"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	Result      string         `json:"result"`
	DraftID     string         `json:"draft_id,omitempty"`
	ProfileName string         `json:"profile_name,omitempty"`
	BackupFile  string         `json:"backup_file,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHash    string         `json:"prev_hash"`
	Hash        string         `json:"hash"`
}

// VerifyReport summarizes a hash-chain verification.
type VerifyReport struct {
	// Events is the number of decodable events checked.
	Events int `json:"events"`

	// Skipped is the number of lines that could not be decoded.
	Skipped int `json:"skipped"`

	// OK is true when every link matched.
	OK bool `json:"ok"`

	// BrokenAt is the id of the first event whose link or hash mismatched.
	BrokenAt string `json:"broken_at,omitempty"`

	// Reason describes the mismatch.
	Reason string `json:"reason,omitempty"`
}

// Journal is an append-only audit store.
// Implementations must be safe for concurrent use.
type Journal interface {
	// Append stamps the event (id, timestamp if zero, chain hashes) and
	// persists it.
	Append(ctx context.Context, event *Event) error

	// Tail returns up to limit of the most recent events, oldest first.
	Tail(ctx context.Context, limit int) ([]Event, error)

	// Verify walks the whole chain.
	Verify(ctx context.Context) (*VerifyReport, error)

	// Close releases resources held by the journal.
	Close() error
}

// ComputeHash returns the hex sha256 of the event's canonical JSON form,
// excluding the Hash field.
func ComputeHash(event *Event) (string, error) {
	clone := *event
	clone.Hash = ""
	raw, err := json.Marshal(&clone)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit event: %w", err)
	}
	return hashRaw(raw)
}

// hashRaw hashes an encoded event as stored, ignoring its hash field.
func hashRaw(raw []byte) (string, error) {
	canonical, err := canonicalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize re-encodes JSON through a generic value so object keys are
// sorted regardless of how the payload was produced.
func canonicalize(raw []byte) ([]byte, error) {
	var generic map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit event: %w", err)
	}
	delete(generic, "hash")
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize audit event: %w", err)
	}
	return out, nil
}

// storedEvent pairs a decoded event with its stored encoding.
type storedEvent struct {
	event Event
	raw   []byte
}

// verifyChain checks a sequence of stored events in append order.
func verifyChain(events []storedEvent, skipped int) *VerifyReport {
	report := &VerifyReport{Events: len(events), Skipped: skipped, OK: true}
	prev := ""
	for i := range events {
		ev := &events[i].event
		if ev.PrevHash != prev {
			report.OK = false
			report.BrokenAt = ev.ID
			report.Reason = fmt.Sprintf("prev_hash mismatch: expected %q, got %q", prev, ev.PrevHash)
			return report
		}
		want, err := hashRaw(events[i].raw)
		if err != nil || want != ev.Hash {
			report.OK = false
			report.BrokenAt = ev.ID
			report.Reason = "event hash mismatch"
			return report
		}
		prev = ev.Hash
	}
	return report
}

// Record appends event to j and logs, rather than returns, a failure: the
// operation being audited has already taken effect.
func Record(ctx context.Context, j Journal, logger *slog.Logger, event *Event) {
	if j == nil {
		return
	}
	if err := j.Append(ctx, event); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("failed to append audit event",
			"action", event.Action,
			"actor", event.Actor,
			"error", err,
		)
	}
}
