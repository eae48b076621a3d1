package governance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/governance/backup"
	"aitrade-hq/governor/pkg/governance/diff"
	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/governance/state"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/reports"
	"aitrade-hq/governor/pkg/store"
	"aitrade-hq/governor/pkg/telemetry/logging"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

// PublishResult is returned by a successful publish and persisted as the
// last publish record.
type PublishResult struct {
	Published     bool          `json:"published"`
	DraftID       string        `json:"draft_id"`
	ProfileName   string        `json:"profile_name"`
	PublishedAt   time.Time     `json:"published_at_utc"`
	PublishedBy   string        `json:"published_by"`
	BackupFile    *string       `json:"backup_file"`
	ContentSHA256 string        `json:"content_sha256"`
	PreviewDigest string        `json:"preview_digest"`
	RiskLevel     diff.Severity `json:"risk_level"`
}

// PublishDraft makes the draft's content live. The caller must echo the
// preview digest and confirmation phrase of a current preview. Every gate is
// checked before anything is written:
//
//  1. read-only, publish-frozen and freeze windows
//  2. the latest run verdict, when require_latest_pass is on
//  3. digest and confirmation phrase against a freshly computed preview
//  4. the high-risk approval quorum and cooldown
//  5. content validation
//
// The live profile, if any, is then backed up and atomically replaced.
func (s *Service) PublishDraft(ctx context.Context, id, actor, previewDigest, confirmPhrase string) (_ *PublishResult, err error) {
	actor = NormalizeActor(actor)
	const op = OpPublishDraft
	ctx, done := s.begin(logging.WithDraftID(ctx, id), op, actor, tracing.DraftID(id))
	defer func() { done(err) }()

	if err := checkLength(op, "preview_digest", previewDigest, MinPreviewDigestLength, MaxPreviewDigestLength); err != nil {
		return nil, err
	}
	if err := checkLength(op, "confirm_phrase", confirmPhrase, MinConfirmPhraseLength, MaxConfirmPhraseLength); err != nil {
		return nil, err
	}

	st, err := s.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkWrite(op, st); err != nil {
		return nil, err
	}
	if err := s.checkLatestRun(ctx, st); err != nil {
		return nil, err
	}

	d, err := s.drafts.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.names.Validate(op, d.ProfileName); err != nil {
		return nil, err
	}

	// The preview, backup and write all see the same live content.
	unlock, err := s.records.Lock(profile.LockKey(d.ProfileName))
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, live, err := s.preview(ctx, op, d, st)
	if err != nil {
		return nil, err
	}
	g := p.PublishGuard
	tracing.SetPreview(trace.SpanFromContext(ctx), string(p.RiskLevel), g.HighRiskEnforced, g.CurrentApprovalCount)

	if strings.TrimSpace(previewDigest) != g.PreviewDigest {
		return nil, s.blocked("stale_digest", "preview digest mismatch, refresh preview")
	}
	if strings.TrimSpace(confirmPhrase) != g.ConfirmPhrase {
		return nil, s.blocked("confirm_phrase", "confirmation phrase mismatch")
	}
	if !g.ApprovalSatisfied {
		return nil, s.blocked("approvals", "high-risk approvals not satisfied: %d/%d",
			g.CurrentApprovalCount, g.RequiredApprovalCount)
	}
	if g.CooldownRemainingSeconds > 0 {
		return nil, s.blocked("cooldown", "cooldown active, remaining=%ds", g.CooldownRemainingSeconds)
	}
	if v := diff.ValidateConfigText(d.Content); !v.OK {
		return nil, s.blocked("validation", "draft validation failed%s", validationDetail(v))
	}

	result := &PublishResult{
		Published:     true,
		DraftID:       id,
		ProfileName:   d.ProfileName,
		PublishedBy:   actor,
		ContentSHA256: profile.Digest(d.Content),
		PreviewDigest: g.PreviewDigest,
		RiskLevel:     p.RiskLevel,
	}
	if p.BaseExists {
		name, err := s.backups.BackupTarget(ctx, d.ProfileName, live, actor, backup.ReasonBeforePublish)
		if err != nil {
			return nil, err
		}
		result.BackupFile = &name
	}
	if err := s.profiles.Write(ctx, d.ProfileName, d.Content, actor); err != nil {
		return nil, err
	}
	result.PublishedAt = s.timestamp()

	if err := s.records.WriteJSON(lastPublishKey, result); err != nil {
		// The profile is live; losing the summary record must not hide that.
		s.logger.ErrorContext(ctx, "failed to persist last publish record", "error", err)
	}

	s.logger.InfoContext(ctx, "draft published",
		"profile", d.ProfileName,
		"risk_level", p.RiskLevel,
		"backup_file", derefOr(result.BackupFile, ""),
	)
	s.audit(ctx, &audit.Event{
		Actor:       actor,
		Action:      audit.ActionDraftPublish,
		DraftID:     id,
		ProfileName: d.ProfileName,
		BackupFile:  derefOr(result.BackupFile, ""),
		Details: map[string]any{
			"content_sha256": result.ContentSHA256,
			"preview_digest": result.PreviewDigest,
			"risk_level":     result.RiskLevel,
		},
	})
	return result, nil
}

// LastPublish returns the record of the most recent publish.
func (s *Service) LastPublish(ctx context.Context) (_ *PublishResult, err error) {
	ctx, done := s.begin(ctx, OpLastPublish, "")
	defer func() { done(err) }()

	var result PublishResult
	err = s.records.ReadJSON(lastPublishKey, &result)
	var corrupt *store.CorruptError
	switch {
	case err == nil:
		return &result, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, governerr.NotFoundf(OpLastPublish, "no publish recorded")
	case errors.As(err, &corrupt):
		return nil, governerr.Wrap(governerr.Invalid, OpLastPublish, corrupt.Cause, "last publish record invalid")
	default:
		return nil, err
	}
}

// checkLatestRun requires both the runtime verdict and the closed-loop
// status of the latest run to be in the allowed set.
func (s *Service) checkLatestRun(ctx context.Context, st *state.State) error {
	if !st.RequireLatestPass {
		return nil
	}

	bundle := &reports.Bundle{}
	if s.reports != nil {
		b, err := s.reports.LatestBundle(ctx)
		if err != nil {
			return fmt.Errorf("failed to read latest run reports: %w", err)
		}
		bundle = b
	}

	allowed := reports.Allowed(st.AllowPassWithActions)
	required := "[" + strings.Join(allowed, ", ") + "]"
	if !slices.Contains(allowed, bundle.RuntimeVerdict) {
		return s.blocked("latest_run", "runtime verdict=%s, required one of %s",
			orNone(bundle.RuntimeVerdict), required)
	}
	if !slices.Contains(allowed, bundle.OverallStatus) {
		return s.blocked("latest_run", "closed_loop overall_status=%s, required one of %s",
			orNone(bundle.OverallStatus), required)
	}
	return nil
}

func validationDetail(v diff.Validation) string {
	var parts []string
	if len(v.Checks.MissingSections) > 0 {
		parts = append(parts, "missing sections ["+strings.Join(v.Checks.MissingSections, ", ")+"]")
	}
	if v.Checks.ConflictDemoAndTestnet {
		parts = append(parts, "demo and testnet both enabled")
	}
	if len(parts) == 0 {
		return ""
	}
	return ": " + strings.Join(parts, "; ")
}

func orNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}

func derefOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
