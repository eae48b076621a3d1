// Package guard evaluates the publish guard for a draft: the preview digest
// a publisher must echo back, the confirmation phrase, the approval quorum
// and the cooldown since the latest approval.
//
// Evaluate is a pure function of its input. Nothing it returns is persisted.
package guard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"aitrade-hq/governor/pkg/governance/diff"
	"aitrade-hq/governor/pkg/governance/draft"
	"aitrade-hq/governor/pkg/governance/state"
)

// ConfirmPrefix prefixes the draft id in the confirmation phrase.
const ConfirmPrefix = "PUBLISH "

// Input is everything the guard looks at.
type Input struct {
	DraftID   string
	State     state.State
	Diff      diff.Diff
	RiskFlags []diff.RiskFlag
	Approvals []draft.Approval
	Now       time.Time
}

// Decision is the guard outcome reported by preview and enforced by publish.
type Decision struct {
	ConfirmPhrase            string     `json:"confirm_phrase"`
	PreviewDigest            string     `json:"preview_digest"`
	HighRiskEnforced         bool       `json:"high_risk_enforced"`
	RequiredApprovalCount    int        `json:"required_approval_count"`
	CurrentApprovalCount     int        `json:"current_approval_count"`
	ApprovalSatisfied        bool       `json:"approval_satisfied"`
	CooldownSeconds          int        `json:"cooldown_seconds"`
	CooldownRemainingSeconds int        `json:"cooldown_remaining_seconds"`
	LatestApprovalAt         *time.Time `json:"latest_approval_at_utc"`
	ApprovedActors           []string   `json:"approved_actors"`
}

// Evaluate computes the guard decision. The quorum and cooldown only bind
// when a HIGH flag is present and the two-man rule is on; otherwise approval
// is satisfied and no cooldown applies.
func Evaluate(in Input) (*Decision, error) {
	digest, err := Digest(in.DraftID, in.Diff, in.RiskFlags)
	if err != nil {
		return nil, err
	}

	enforced := diff.HasHigh(in.RiskFlags) && in.State.HighRiskTwoManRule
	actors := uniqueActors(in.Approvals)

	d := &Decision{
		ConfirmPhrase:         ConfirmPhrase(in.DraftID),
		PreviewDigest:         digest,
		HighRiskEnforced:      enforced,
		RequiredApprovalCount: state.Clamp(in.State.HighRiskRequiredApprovals, state.MinRequiredApprovals, state.MaxRequiredApprovals),
		CurrentApprovalCount:  len(actors),
		ApprovedActors:        actors,
		LatestApprovalAt:      latestApproval(in.Approvals),
	}

	if !enforced {
		d.ApprovalSatisfied = true
		return d, nil
	}

	d.ApprovalSatisfied = d.CurrentApprovalCount >= d.RequiredApprovalCount
	d.CooldownSeconds = state.Clamp(in.State.HighRiskCooldownSeconds, state.MinCooldownSeconds, state.MaxCooldownSeconds)
	if d.LatestApprovalAt != nil && d.CooldownSeconds > 0 {
		elapsed := int(in.Now.Sub(*d.LatestApprovalAt) / time.Second)
		if remaining := d.CooldownSeconds - elapsed; remaining > 0 {
			d.CooldownRemainingSeconds = remaining
		}
	}
	return d, nil
}

// ConfirmPhrase returns the phrase a publisher must type for draftID.
func ConfirmPhrase(draftID string) string {
	return ConfirmPrefix + draftID
}

// Digest hashes the canonical JSON of {draft_id, diff, risk_flags}: object
// keys sorted, no insignificant whitespace.
func Digest(draftID string, d diff.Diff, flags []diff.RiskFlag) (string, error) {
	if flags == nil {
		flags = []diff.RiskFlag{}
	}
	payload, err := canonicalJSON(map[string]any{
		"draft_id":   draftID,
		"diff":       d,
		"risk_flags": flags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode preview digest payload: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON re-encodes v through a generic value so struct fields are
// emitted in sorted key order like map keys.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

func uniqueActors(approvals []draft.Approval) []string {
	seen := make(map[string]struct{}, len(approvals))
	actors := make([]string, 0, len(approvals))
	for _, a := range approvals {
		if a.Actor == "" {
			continue
		}
		if _, ok := seen[a.Actor]; ok {
			continue
		}
		seen[a.Actor] = struct{}{}
		actors = append(actors, a.Actor)
	}
	sort.Strings(actors)
	return actors
}

func latestApproval(approvals []draft.Approval) *time.Time {
	var latest *time.Time
	for i := range approvals {
		at := approvals[i].ApprovedAt
		if at.IsZero() {
			continue
		}
		if latest == nil || at.After(*latest) {
			t := at
			latest = &t
		}
	}
	return latest
}
