package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/store"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T) (*Store, *store.Store, *audit.FileJournal, *clock) {
	t.Helper()
	dir := t.TempDir()
	records, err := store.New(dir)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	journal, err := audit.NewFileJournal(filepath.Join(dir, "audit.jsonl"), nil)
	if err != nil {
		t.Fatalf("NewFileJournal() error = %v", err)
	}
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(records, journal, DefaultDefaults(), WithClock(c.now)), records, journal, c
}

func TestGet_MaterializesDefaults(t *testing.T) {
	s, records, _, _ := newTestStore(t)

	st, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if st.ReadOnlyMode || st.PublishFrozen {
		t.Error("fresh state should not be read-only or frozen")
	}
	if !st.RequireLatestPass || !st.HighRiskTwoManRule {
		t.Error("fresh state should require latest pass and two-man rule")
	}
	if st.HighRiskRequiredApprovals != 2 || st.HighRiskCooldownSeconds != 180 {
		t.Errorf("approvals/cooldown = %d/%d, want 2/180", st.HighRiskRequiredApprovals, st.HighRiskCooldownSeconds)
	}

	ok, err := records.Exists(recordKey)
	if err != nil || !ok {
		t.Errorf("state record should be persisted, exists=%v err=%v", ok, err)
	}
}

func TestGet_FillsMissingKeys(t *testing.T) {
	s, records, _, _ := newTestStore(t)
	if err := os.WriteFile(records.Path(recordKey), []byte(`{"read_only_mode": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !st.ReadOnlyMode {
		t.Error("stored read_only_mode should be kept")
	}
	if st.HighRiskRequiredApprovals != 2 {
		t.Errorf("missing key should default, got %d", st.HighRiskRequiredApprovals)
	}
}

func TestGet_CorruptRecord(t *testing.T) {
	s, records, _, _ := newTestStore(t)
	if err := os.WriteFile(records.Path(recordKey), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Get(context.Background())
	if !governerr.Is(err, governerr.Invalid) {
		t.Fatalf("Get() error = %v, want invalid", err)
	}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name    string
		patch   map[string]any
		wantErr string
		check   func(t *testing.T, st *State)
	}{
		{
			name:  "freeze",
			patch: map[string]any{"publish_frozen": true},
			check: func(t *testing.T, st *State) {
				if !st.PublishFrozen {
					t.Error("publish_frozen not applied")
				}
			},
		},
		{
			name:    "integral float rejected",
			patch:   map[string]any{"high_risk_required_approvals": float64(3)},
			wantErr: "state field must be int: high_risk_required_approvals",
		},
		{
			name:    "float json number rejected",
			patch:   map[string]any{"high_risk_required_approvals": json.Number("3.0")},
			wantErr: "state field must be int: high_risk_required_approvals",
		},
		{
			name:  "cooldown json number",
			patch: map[string]any{"high_risk_cooldown_seconds": json.Number("0")},
			check: func(t *testing.T, st *State) {
				if st.HighRiskCooldownSeconds != 0 {
					t.Errorf("cooldown = %d, want 0", st.HighRiskCooldownSeconds)
				}
			},
		},
		{
			name:    "unknown field",
			patch:   map[string]any{"foo": 1, "bar": true},
			wantErr: `unsupported state fields: ["bar", "foo"]`,
		},
		{
			name:    "bool for int",
			patch:   map[string]any{"high_risk_required_approvals": true},
			wantErr: "must be int",
		},
		{
			name:    "int for bool",
			patch:   map[string]any{"read_only_mode": 1},
			wantErr: "must be bool",
		},
		{
			name:    "approvals too low",
			patch:   map[string]any{"high_risk_required_approvals": 1},
			wantErr: "[2, 5]",
		},
		{
			name:    "cooldown too high",
			patch:   map[string]any{"high_risk_cooldown_seconds": 86401},
			wantErr: "[0, 86400]",
		},
		{
			name:    "fractional int",
			patch:   map[string]any{"high_risk_cooldown_seconds": 1.5},
			wantErr: "must be int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, _ := newTestStore(t)
			st, err := s.Update(context.Background(), tt.patch, "alice")
			if tt.wantErr != "" {
				if !governerr.Is(err, governerr.Invalid) {
					t.Fatalf("Update() error = %v, want invalid", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			tt.check(t, st)
		})
	}
}

func TestUpdate_RejectedPatchLeavesStateUnchanged(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, map[string]any{"read_only_mode": true, "high_risk_required_approvals": 9}, "alice")
	if err == nil {
		t.Fatal("expected error")
	}
	st, err := s.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.ReadOnlyMode {
		t.Error("partial patch must not be applied")
	}
}

func TestUpdate_StampsAndAudits(t *testing.T) {
	s, _, journal, c := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx); err != nil {
		t.Fatal(err)
	}
	c.t = c.t.Add(90 * time.Second)

	st, err := s.Update(ctx, map[string]any{"read_only_mode": true}, "alice")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !st.UpdatedAt.Equal(c.t) {
		t.Errorf("UpdatedAt = %v, want %v", st.UpdatedAt, c.t)
	}

	events, err := journal.Tail(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d audit events, want 1", len(events))
	}
	if events[0].Action != audit.ActionStateUpdate || events[0].Actor != "alice" {
		t.Errorf("unexpected event %+v", events[0])
	}
	snapshot, ok := events[0].Details["state"].(map[string]any)
	if !ok || snapshot["read_only_mode"] != true {
		t.Errorf("audit details should carry the full state, got %v", events[0].Details)
	}
}

// Separate Store values over one control root behave like separate CLI
// processes; concurrent patches to different fields must both survive and
// the shared audit chain must stay linear.
func TestUpdate_ConcurrentStoresOverOneRoot(t *testing.T) {
	dir := t.TempDir()
	open := func() (*Store, *audit.FileJournal) {
		records, err := store.New(dir)
		if err != nil {
			t.Fatalf("store.New() error = %v", err)
		}
		journal, err := audit.NewFileJournal(filepath.Join(dir, "audit.jsonl"), nil)
		if err != nil {
			t.Fatalf("NewFileJournal() error = %v", err)
		}
		return NewStore(records, journal, DefaultDefaults()), journal
	}
	a, journal := open()
	b, _ := open()
	ctx := context.Background()

	for round := 0; round < 25; round++ {
		reset := map[string]any{"publish_frozen": false, "high_risk_cooldown_seconds": 180}
		if _, err := a.Update(ctx, reset, "ops"); err != nil {
			t.Fatalf("reset Update() error = %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := a.Update(ctx, map[string]any{"publish_frozen": true}, "alice"); err != nil {
				t.Errorf("Update(publish_frozen) error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := b.Update(ctx, map[string]any{"high_risk_cooldown_seconds": 600}, "bob"); err != nil {
				t.Errorf("Update(cooldown) error = %v", err)
			}
		}()
		wg.Wait()

		st, err := b.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !st.PublishFrozen || st.HighRiskCooldownSeconds != 600 {
			t.Fatalf("round %d lost a patch: publish_frozen=%v cooldown=%d",
				round, st.PublishFrozen, st.HighRiskCooldownSeconds)
		}
	}

	report, err := journal.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.OK || report.Events != 75 {
		t.Errorf("audit chain after concurrent updates = %+v, want ok with 75 events", report)
	}
}

func TestDecodePatch(t *testing.T) {
	s, _, _, _ := newTestStore(t)
	ctx := context.Background()

	patch, err := DecodePatch([]byte(`{"high_risk_required_approvals": 3, "publish_frozen": true}`))
	if err != nil {
		t.Fatalf("DecodePatch() error = %v", err)
	}
	st, err := s.Update(ctx, patch, "alice")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if st.HighRiskRequiredApprovals != 3 || !st.PublishFrozen {
		t.Errorf("patch not applied: %+v", st)
	}

	for _, raw := range []string{
		`{"high_risk_required_approvals": 2.0}`,
		`{"high_risk_required_approvals": 2e0}`,
		`{"high_risk_cooldown_seconds": "60"}`,
	} {
		patch, err := DecodePatch([]byte(raw))
		if err != nil {
			t.Fatalf("DecodePatch(%s) error = %v", raw, err)
		}
		if _, err := s.Update(ctx, patch, "alice"); !governerr.Is(err, governerr.Invalid) {
			t.Errorf("Update(%s) error = %v, want invalid", raw, err)
		}
	}

	for _, raw := range []string{`[1]`, `null`, `{"a":1} {"b":2}`, `{`} {
		if _, err := DecodePatch([]byte(raw)); !governerr.Is(err, governerr.Invalid) {
			t.Errorf("DecodePatch(%s) error = %v, want invalid", raw, err)
		}
	}
}
