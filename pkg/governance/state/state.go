// Package state owns the governance-wide toggles: read-only mode, publish
// freeze, the latest-run gate policy and the two-man-rule parameters.
//
// The state is a singleton record. It is materialized with defaults on first
// read and only ever changed through whitelisted patches, each field carrying
// its own typed validator.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/store"
)

const (
	recordKey = "state.json"
	lockKey   = "state"
)

// Bounds for the integer fields.
const (
	MinRequiredApprovals = 2
	MaxRequiredApprovals = 5
	MinCooldownSeconds   = 0
	MaxCooldownSeconds   = 86400
)

// State is the governance state singleton.
type State struct {
	ReadOnlyMode              bool      `json:"read_only_mode"`
	PublishFrozen             bool      `json:"publish_frozen"`
	RequireLatestPass         bool      `json:"require_latest_pass"`
	AllowPassWithActions      bool      `json:"allow_pass_with_actions"`
	HighRiskTwoManRule        bool      `json:"high_risk_two_man_rule"`
	HighRiskRequiredApprovals int       `json:"high_risk_required_approvals"`
	HighRiskCooldownSeconds   int       `json:"high_risk_cooldown_seconds"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Defaults seeds a freshly materialized state.
type Defaults struct {
	RequireLatestPass         bool
	AllowPassWithActions      bool
	HighRiskTwoManRule        bool
	HighRiskRequiredApprovals int
	HighRiskCooldownSeconds   int
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		RequireLatestPass:         true,
		AllowPassWithActions:      false,
		HighRiskTwoManRule:        true,
		HighRiskRequiredApprovals: 2,
		HighRiskCooldownSeconds:   180,
	}
}

// Store reads and patches the state record.
type Store struct {
	records  *store.Store
	journal  audit.Journal
	defaults Defaults
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a state store over records. journal may be nil.
func NewStore(records *store.Store, journal audit.Journal, defaults Defaults, opts ...Option) *Store {
	s := &Store{
		records:  records,
		journal:  journal,
		defaults: defaults,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "governance.state")
	return s
}

// Get returns the current state. A missing record is materialized from the
// defaults and persisted; a malformed record is an Invalid error.
func (s *Store) Get(ctx context.Context) (*State, error) {
	unlock, err := s.records.Lock(lockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.load()
}

// Update validates patch against the field table, merges it into the current
// state, stamps UpdatedAt, persists atomically and audits the full result.
func (s *Store) Update(ctx context.Context, patch map[string]any, actor string) (*State, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	unlock, err := s.records.Lock(lockKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	st, err := s.load()
	if err != nil {
		return nil, err
	}

	for name, raw := range patch {
		fields[name].apply(st, raw)
	}
	st.UpdatedAt = s.timestamp()

	if err := s.records.WriteJSON(recordKey, st); err != nil {
		return nil, fmt.Errorf("failed to persist governance state: %w", err)
	}

	s.logger.Info("governance state updated", "actor", actor, "fields", patchKeys(patch))
	audit.Record(ctx, s.journal, s.logger, &audit.Event{
		Actor:   actor,
		Action:  audit.ActionStateUpdate,
		Details: map[string]any{"state": st, "fields": patchKeys(patch)},
	})
	return st, nil
}

func (s *Store) load() (*State, error) {
	st := s.defaultState()
	err := s.records.ReadJSON(recordKey, st)
	switch {
	case err == nil:
		return st, nil
	case errors.Is(err, store.ErrNotFound):
		st = s.defaultState()
		if err := s.records.WriteJSON(recordKey, st); err != nil {
			return nil, fmt.Errorf("failed to persist default governance state: %w", err)
		}
		s.logger.Info("governance state materialized with defaults")
		return st, nil
	default:
		var corrupt *store.CorruptError
		if errors.As(err, &corrupt) {
			return nil, governerr.Wrap(governerr.Invalid, "state.get", corrupt.Cause, "state json invalid")
		}
		return nil, err
	}
}

func (s *Store) defaultState() *State {
	return &State{
		RequireLatestPass:         s.defaults.RequireLatestPass,
		AllowPassWithActions:      s.defaults.AllowPassWithActions,
		HighRiskTwoManRule:        s.defaults.HighRiskTwoManRule,
		HighRiskRequiredApprovals: clamp(s.defaults.HighRiskRequiredApprovals, MinRequiredApprovals, MaxRequiredApprovals),
		HighRiskCooldownSeconds:   clamp(s.defaults.HighRiskCooldownSeconds, MinCooldownSeconds, MaxCooldownSeconds),
		UpdatedAt:                 s.timestamp(),
	}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func patchKeys(patch map[string]any) []string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	return clamp(v, lo, hi)
}

func joinQuoted(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
