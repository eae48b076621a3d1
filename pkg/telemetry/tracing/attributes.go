package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on governance spans.
const (
	AttrActor        = "governor.actor"
	AttrDraftID      = "governor.draft_id"
	AttrProfile      = "governor.profile"
	AttrRiskLevel    = "governor.risk_level"
	AttrBackupFile   = "governor.backup_file"
	AttrErrorKind    = "governor.error_kind"
	AttrHighRisk     = "governor.high_risk_enforced"
	AttrApprovals    = "governor.approvals"
	AttrFreezeWindow = "governor.freeze_window"
)

// Actor returns the actor attribute.
func Actor(actor string) attribute.KeyValue {
	return attribute.String(AttrActor, actor)
}

// DraftID returns the draft id attribute.
func DraftID(id string) attribute.KeyValue {
	return attribute.String(AttrDraftID, id)
}

// Profile returns the profile attribute.
func Profile(name string) attribute.KeyValue {
	return attribute.String(AttrProfile, name)
}

// BackupFile returns the backup file attribute.
func BackupFile(name string) attribute.KeyValue {
	return attribute.String(AttrBackupFile, name)
}

// SetPreview annotates span with the outcome of a publish preview.
func SetPreview(span trace.Span, riskLevel string, highRisk bool, approvals int) {
	span.SetAttributes(
		attribute.String(AttrRiskLevel, riskLevel),
		attribute.Bool(AttrHighRisk, highRisk),
		attribute.Int(AttrApprovals, approvals),
	)
}

// SetErrorKind tags span with the governance error kind.
func SetErrorKind(span trace.Span, kind string) {
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
}
