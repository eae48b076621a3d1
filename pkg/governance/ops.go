package governance

import (
	"context"

	"aitrade-hq/governor/pkg/governance/audit"
	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/governance/state"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

// ProfileContent is a live profile and its digest.
type ProfileContent struct {
	ProfileName   string `json:"profile_name"`
	Content       string `json:"content"`
	ContentSHA256 string `json:"content_sha256"`
}

// GetState returns the governance state, materializing defaults on first use.
func (s *Service) GetState(ctx context.Context) (_ *state.State, err error) {
	ctx, done := s.begin(ctx, OpGetState, "")
	defer func() { done(err) }()

	return s.state.Get(ctx)
}

// UpdateState applies a patch of allow-listed fields.
func (s *Service) UpdateState(ctx context.Context, patch map[string]any, actor string) (_ *state.State, err error) {
	actor = NormalizeActor(actor)
	ctx, done := s.begin(ctx, OpUpdateState, actor)
	defer func() { done(err) }()

	return s.state.Update(ctx, patch, actor)
}

// ReadAudit returns up to limit of the most recent audit events, oldest first.
func (s *Service) ReadAudit(ctx context.Context, limit int) (_ []audit.Event, err error) {
	ctx, done := s.begin(ctx, OpReadAudit, "")
	defer func() { done(err) }()

	limit, err = checkLimit(OpReadAudit, limit, DefaultAuditLimit, MaxAuditLimit)
	if err != nil {
		return nil, err
	}
	if s.journal == nil {
		return []audit.Event{}, nil
	}
	return s.journal.Tail(ctx, limit)
}

// VerifyAudit walks the audit hash chain.
func (s *Service) VerifyAudit(ctx context.Context) (_ *audit.VerifyReport, err error) {
	ctx, done := s.begin(ctx, OpVerifyAudit, "")
	defer func() { done(err) }()

	if s.journal == nil {
		return &audit.VerifyReport{OK: true}, nil
	}
	return s.journal.Verify(ctx)
}

// ListProfiles returns the live profiles.
func (s *Service) ListProfiles(ctx context.Context) (_ []profile.Info, err error) {
	ctx, done := s.begin(ctx, OpListProfiles, "")
	defer func() { done(err) }()

	return s.profiles.List(ctx)
}

// ReadProfile returns the live content of name.
func (s *Service) ReadProfile(ctx context.Context, name string) (_ *ProfileContent, err error) {
	ctx, done := s.begin(ctx, OpReadProfile, "", tracing.Profile(name))
	defer func() { done(err) }()

	if err := s.names.Validate(OpReadProfile, name); err != nil {
		return nil, err
	}
	content, exists, err := s.profiles.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, governerr.NotFoundf(OpReadProfile, "profile not found: %s", name)
	}
	return &ProfileContent{
		ProfileName:   name,
		Content:       content,
		ContentSHA256: profile.Digest(content),
	}, nil
}

// RecordDrift audits a live profile change made outside the engine.
func (s *Service) RecordDrift(ctx context.Context, d profile.Drift) {
	ctx, done := s.begin(ctx, OpRecordDrift, "", tracing.Profile(d.ProfileName))
	defer done(nil)

	s.metrics.RecordDrift(d.ProfileName)
	s.logger.WarnContext(ctx, "live profile changed outside governance",
		"profile", d.ProfileName,
		"previous_sha256", d.PreviousSHA256,
		"current_sha256", d.CurrentSHA256,
		"removed", d.Removed,
	)
	s.audit(ctx, &audit.Event{
		Actor:       "watcher",
		Action:      audit.ActionProfileDrift,
		ProfileName: d.ProfileName,
		Details: map[string]any{
			"previous_sha256": d.PreviousSHA256,
			"current_sha256":  d.CurrentSHA256,
			"removed":         d.Removed,
		},
	})
}
