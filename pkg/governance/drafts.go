package governance

import (
	"context"

	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/governance/diff"
	"aitrade-hq/governor/pkg/governance/draft"
	"aitrade-hq/governor/pkg/governance/guard"
	"aitrade-hq/governor/pkg/governance/state"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/telemetry/logging"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

// Preview is the diff, risk assessment and publish guard of a draft against
// the live profile. It is recomputed on every call and never stored.
type Preview struct {
	DraftID            string              `json:"draft_id"`
	ProfileName        string              `json:"profile_name"`
	BaseExists         bool                `json:"base_exists"`
	BaseContentSHA256  *string             `json:"base_content_sha256"`
	DraftContentSHA256 string              `json:"draft_content_sha256"`
	Diff               diff.Diff           `json:"diff"`
	RiskFlags          []diff.RiskFlag     `json:"risk_flags"`
	RiskLevel          diff.Severity       `json:"risk_level"`
	Approvals          []draft.Approval    `json:"approvals"`
	FreezeWindow       *guard.ActiveWindow `json:"freeze_window,omitempty"`
	PublishGuard       *guard.Decision     `json:"publish_guard"`
}

// ApprovalSummary reports the quorum after an approval.
type ApprovalSummary struct {
	DraftID                  string           `json:"draft_id"`
	Approvals                []draft.Approval `json:"approvals"`
	RequiredApprovalCount    int              `json:"required_approval_count"`
	CurrentApprovalCount     int              `json:"current_approval_count"`
	ApprovalSatisfied        bool             `json:"approval_satisfied"`
	CooldownRemainingSeconds int              `json:"cooldown_remaining_seconds"`
}

// ListDrafts returns up to limit draft summaries, newest first.
func (s *Service) ListDrafts(ctx context.Context, limit int) (_ []draft.Summary, err error) {
	ctx, done := s.begin(ctx, OpListDrafts, "")
	defer func() { done(err) }()

	limit, err = checkLimit(OpListDrafts, limit, DefaultDraftLimit, MaxDraftLimit)
	if err != nil {
		return nil, err
	}
	return s.drafts.List(ctx, limit)
}

// CreateDraft stores a new draft for profileName with its validation result.
func (s *Service) CreateDraft(ctx context.Context, profileName, content, actor, note string) (_ *draft.Draft, err error) {
	actor = NormalizeActor(actor)
	ctx, done := s.begin(ctx, OpCreateDraft, actor, tracing.Profile(profileName))
	defer func() { done(err) }()

	if err := checkNote(OpCreateDraft, note); err != nil {
		return nil, err
	}
	d, created, err := s.drafts.Create(ctx, profileName, content, actor, note)
	if err != nil {
		return nil, err
	}
	if created {
		s.audit(ctx, &audit.Event{
			Actor:       actor,
			Action:      audit.ActionDraftCreate,
			DraftID:     d.DraftID,
			ProfileName: d.ProfileName,
			Details:     map[string]any{"validation_ok": d.Validation.OK},
		})
	}
	return d, nil
}

// ReadDraft returns the draft with id.
func (s *Service) ReadDraft(ctx context.Context, id string) (_ *draft.Draft, err error) {
	ctx, done := s.begin(ctx, OpReadDraft, "", tracing.DraftID(id))
	defer func() { done(err) }()

	return s.drafts.Read(ctx, id)
}

// ValidateDraft re-runs the validation check on the draft's content.
func (s *Service) ValidateDraft(ctx context.Context, id, actor string) (_ *draft.Draft, err error) {
	actor = NormalizeActor(actor)
	ctx, done := s.begin(ctx, OpValidateDraft, actor, tracing.DraftID(id))
	defer func() { done(err) }()

	d, err := s.drafts.Validate(logging.WithDraftID(ctx, id), id, actor)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, &audit.Event{
		Actor:       actor,
		Action:      audit.ActionDraftValidate,
		DraftID:     id,
		ProfileName: d.ProfileName,
		Details:     map[string]any{"validation_ok": d.Validation.OK},
	})
	return d, nil
}

// PreviewDraft computes the diff, risk and publish guard for the draft.
func (s *Service) PreviewDraft(ctx context.Context, id string) (_ *Preview, err error) {
	ctx, done := s.begin(ctx, OpPreviewDraft, "", tracing.DraftID(id))
	defer func() { done(err) }()

	d, err := s.drafts.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	p, _, err := s.preview(ctx, OpPreviewDraft, d, st)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPreviewRisk(string(p.RiskLevel))
	return p, nil
}

// ApproveDraft records actor's approval, replacing any earlier one by the
// same actor, and reports the resulting quorum.
func (s *Service) ApproveDraft(ctx context.Context, id, actor, note string) (_ *ApprovalSummary, err error) {
	actor = NormalizeActor(actor)
	ctx, done := s.begin(ctx, OpApproveDraft, actor, tracing.DraftID(id))
	defer func() { done(err) }()

	if err := checkNote(OpApproveDraft, note); err != nil {
		return nil, err
	}
	d, err := s.drafts.Approve(ctx, id, actor, note)
	if err != nil {
		return nil, err
	}
	st, err := s.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	p, _, err := s.preview(ctx, OpApproveDraft, d, st)
	if err != nil {
		return nil, err
	}
	g := p.PublishGuard

	s.audit(ctx, &audit.Event{
		Actor:       actor,
		Action:      audit.ActionDraftApprove,
		DraftID:     id,
		ProfileName: d.ProfileName,
		Details: map[string]any{
			"required_approval_count": g.RequiredApprovalCount,
			"current_approval_count":  g.CurrentApprovalCount,
		},
	})
	return &ApprovalSummary{
		DraftID:                  id,
		Approvals:                d.Approvals,
		RequiredApprovalCount:    g.RequiredApprovalCount,
		CurrentApprovalCount:     g.CurrentApprovalCount,
		ApprovalSatisfied:        g.ApprovalSatisfied,
		CooldownRemainingSeconds: g.CooldownRemainingSeconds,
	}, nil
}

// preview assesses d against the current live profile under st and also
// returns the live text it compared against.
func (s *Service) preview(ctx context.Context, op string, d *draft.Draft, st *state.State) (*Preview, string, error) {
	if err := s.names.Validate(op, d.ProfileName); err != nil {
		return nil, "", err
	}
	live, exists, err := s.profiles.Read(ctx, d.ProfileName)
	if err != nil {
		return nil, "", err
	}

	assessment := diff.Assess(live, d.Content)
	decision, err := guard.Evaluate(guard.Input{
		DraftID:   d.DraftID,
		State:     *st,
		Diff:      assessment.Diff,
		RiskFlags: assessment.RiskFlags,
		Approvals: d.Approvals,
		Now:       s.now(),
	})
	if err != nil {
		return nil, "", err
	}

	p := &Preview{
		DraftID:            d.DraftID,
		ProfileName:        d.ProfileName,
		BaseExists:         exists,
		DraftContentSHA256: profile.Digest(d.Content),
		Diff:               assessment.Diff,
		RiskFlags:          assessment.RiskFlags,
		RiskLevel:          assessment.RiskLevel,
		Approvals:          d.Approvals,
		PublishGuard:       decision,
	}
	if exists {
		sum := profile.Digest(live)
		p.BaseContentSHA256 = &sum
	}
	if w, active := s.freeze.Active(s.now()); active {
		p.FreezeWindow = w
	}
	if p.RiskFlags == nil {
		p.RiskFlags = []diff.RiskFlag{}
	}
	return p, live, nil
}
