// Package governance is the facade over the governance engine: it mediates
// every change to a live profile through the draft, validate, preview,
// approve and publish pipeline, and restores backups on rollback.
//
// Every operation re-reads durable state; nothing is cached between calls,
// so a preview digest always reflects what is on disk.
package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/governance/backup"
	"aitrade-hq/governor/pkg/governance/draft"
	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/governance/guard"
	"aitrade-hq/governor/pkg/governance/state"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/reports"
	"aitrade-hq/governor/pkg/store"
	"aitrade-hq/governor/pkg/telemetry/logging"
	"aitrade-hq/governor/pkg/telemetry/metrics"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

// Operation names used for logs, metrics, spans and error ops.
const (
	OpGetState      = "get_state"
	OpUpdateState   = "update_state"
	OpReadAudit     = "read_audit"
	OpVerifyAudit   = "verify_audit"
	OpListDrafts    = "list_drafts"
	OpCreateDraft   = "create_draft"
	OpReadDraft     = "read_draft"
	OpPreviewDraft  = "preview_draft"
	OpValidateDraft = "validate_draft"
	OpApproveDraft  = "approve_draft"
	OpPublishDraft  = "publish"
	OpListBackups   = "list_backups"
	OpRollback      = "rollback"
	OpListProfiles  = "list_profiles"
	OpReadProfile   = "read_profile"
	OpLastPublish   = "last_publish"
	OpRecordDrift   = "record_drift"
)

const lastPublishKey = "last_publish.json"

// Deps wires a Service. Records and Profiles are required; everything else
// has a usable zero value.
type Deps struct {
	// Records holds state, drafts, backups and the last publish record.
	Records *store.Store

	// Profiles is the live profile collaborator.
	Profiles profile.Store

	// Names validates profile names. The zero value requires ".yaml".
	Names profile.NameRule

	// Reports supplies the latest run verdict. Nil means no reports, which
	// blocks publishing while require_latest_pass is on.
	Reports reports.Source

	// Journal receives audit events. Nil disables auditing.
	Journal audit.Journal

	// StateDefaults seeds a freshly materialized governance state.
	StateDefaults state.Defaults

	// Freeze holds recurring freeze windows. Nil means none.
	Freeze *guard.FreezeCalendar

	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Now     func() time.Time
	Logger  *slog.Logger
}

// Service implements the governance operations.
type Service struct {
	records  *store.Store
	profiles profile.Store
	names    profile.NameRule
	reports  reports.Source
	journal  audit.Journal
	freeze   *guard.FreezeCalendar

	state   *state.Store
	drafts  *draft.Repository
	backups *backup.Manager

	metrics *metrics.Collector
	tracer  *tracing.Tracer
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a Service.
func New(d Deps) (*Service, error) {
	if d.Records == nil || d.Profiles == nil {
		return nil, errors.New("governance service requires a record store and a profile store")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.StateDefaults == (state.Defaults{}) {
		d.StateDefaults = state.DefaultDefaults()
	}

	s := &Service{
		records:  d.Records,
		profiles: d.Profiles,
		names:    d.Names,
		reports:  d.Reports,
		journal:  d.Journal,
		freeze:   d.Freeze,
		metrics:  d.Metrics,
		tracer:   d.Tracer,
		now:      d.Now,
		logger:   d.Logger.With("component", "governance"),
	}

	s.state = state.NewStore(d.Records, d.Journal, d.StateDefaults,
		state.WithClock(d.Now),
		state.WithLogger(d.Logger),
	)
	s.drafts = draft.NewRepository(d.Records, d.Names, d.Now, d.Logger)

	backups, err := backup.NewManager(backup.Config{
		Records:  d.Records,
		Profiles: d.Profiles,
		Names:    d.Names,
		Journal:  d.Journal,
		Gate:     s,
		Now:      d.Now,
		Logger:   d.Logger,
	})
	if err != nil {
		return nil, err
	}
	s.backups = backups

	return s, nil
}

// begin starts the span and context fields for op. The returned func records
// the outcome; call it with the operation's final error.
func (s *Service) begin(ctx context.Context, op, actor string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx = logging.WithOperation(ctx, op)
	if actor != "" {
		ctx = logging.WithActor(ctx, actor)
		attrs = append(attrs, tracing.Actor(actor))
	}
	ctx, span := s.tracer.Start(ctx, "governance."+op, attrs...)

	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			kind := governerr.KindOf(err)
			result = kind.String()
			if kind == governerr.Internal {
				result = "error"
			}
			tracing.SetErrorKind(span, kind.String())

			switch kind {
			case governerr.Blocked:
				s.logger.WarnContext(ctx, "operation blocked", "error", err)
			case governerr.Internal:
				s.logger.ErrorContext(ctx, "operation failed", "error", err)
			default:
				s.logger.DebugContext(ctx, "operation rejected", "error", err)
			}
		}
		s.metrics.RecordOperation(op, result, time.Since(start))
		tracing.End(span, err)
	}
}

// blocked counts a refused publish under reason and returns the error.
func (s *Service) blocked(reason, format string, args ...any) error {
	s.metrics.RecordPublishBlocked(reason)
	return governerr.Blockedf(OpPublishDraft, format, args...)
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *Service) audit(ctx context.Context, event *audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.timestamp()
	}
	audit.Record(ctx, s.journal, s.logger, event)
}

// CheckWrite refuses profile writes while the state is read-only or publish
// is frozen, or while a freeze window is active.
func (s *Service) CheckWrite(ctx context.Context, op string) error {
	st, err := s.state.Get(ctx)
	if err != nil {
		return err
	}
	return s.checkWrite(op, st)
}

func (s *Service) checkWrite(op string, st *state.State) error {
	var reason, msg string
	switch {
	case st.ReadOnlyMode:
		reason, msg = "read_only", "read_only_mode=true"
	case st.PublishFrozen:
		reason, msg = "publish_frozen", "publish_frozen=true"
	default:
		w, active := s.freeze.Active(s.now())
		if !active {
			return nil
		}
		reason = "freeze_window"
		msg = fmt.Sprintf("freeze window %q active until %s", w.Name, w.Until.Format(time.RFC3339))
	}
	if op == OpPublishDraft {
		s.metrics.RecordPublishBlocked(reason)
	}
	return governerr.Blockedf(op, "%s", msg)
}
