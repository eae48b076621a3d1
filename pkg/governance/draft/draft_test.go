package draft

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/store"
)

const sampleContent = "system:\n  id: x\nexchange:\n  testnet: true\nrisk:\n  max_abs_notional_usd: 100\nexecution:\n  max_order_notional: 50\nstrategy:\n  signal_notional_usd: 10\n"

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRepo(t *testing.T) (*Repository, *store.Store, *clock) {
	t.Helper()
	records, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRepository(records, profile.NewNameRule(".yaml"), c.now, nil), records, c
}

func TestCreate(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	d, created, err := repo.Create(ctx, "bybit.demo.evolution.yaml", sampleContent, "alice", "raise limits")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	wantID := "20260301T120000Z_" + ContentSHA256(sampleContent)[:8]
	if d.DraftID != wantID {
		t.Errorf("DraftID = %s, want %s", d.DraftID, wantID)
	}
	if !ValidID(d.DraftID) {
		t.Errorf("DraftID %s does not match the id shape", d.DraftID)
	}
	if !d.Validation.OK {
		t.Errorf("validation should pass, got %+v", d.Validation)
	}

	got, err := repo.Read(ctx, d.DraftID)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Content != sampleContent || got.ProfileName != "bybit.demo.evolution.yaml" || got.Actor != "alice" {
		t.Errorf("Read() returned %+v", got)
	}
}

func TestCreate_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		content string
	}{
		{"traversal", "../etc.yaml", sampleContent},
		{"wrong extension", "profile.json", sampleContent},
		{"slash", "dir/profile.yaml", sampleContent},
		{"blank content", "ok.yaml", "  \n\t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, _ := newTestRepo(t)
			_, _, err := repo.Create(context.Background(), tt.profile, tt.content, "alice", "")
			if !governerr.Is(err, governerr.Invalid) {
				t.Errorf("Create() error = %v, want invalid", err)
			}
		})
	}
}

func TestCreate_SameSecond(t *testing.T) {
	repo, records, _ := newTestRepo(t)
	ctx := context.Background()

	first, _, err := repo.Create(ctx, "a.yaml", sampleContent, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	again, created, err := repo.Create(ctx, "a.yaml", sampleContent, "bob", "")
	if err != nil {
		t.Fatalf("identical Create() error = %v", err)
	}
	if created || again.Actor != "alice" {
		t.Errorf("identical create should return the stored draft, got created=%v actor=%s", created, again.Actor)
	}

	// Same id, different profile.
	if err := records.WriteJSON(recordKey(first.DraftID), &Draft{DraftID: first.DraftID, ProfileName: "b.yaml", Content: sampleContent}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := repo.Create(ctx, "a.yaml", sampleContent, "alice", ""); !governerr.Is(err, governerr.Invalid) {
		t.Errorf("colliding Create() error = %v, want invalid", err)
	}
}

func TestRead_Errors(t *testing.T) {
	repo, records, _ := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Read(ctx, "not-an-id"); !governerr.Is(err, governerr.Invalid) {
		t.Errorf("bad id error = %v, want invalid", err)
	}
	if _, err := repo.Read(ctx, "20260101T000000Z_deadbeef"); !governerr.Is(err, governerr.NotFound) {
		t.Errorf("missing draft error = %v, want not found", err)
	}

	if err := records.EnsureDir(draftsDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(records.Path(recordKey("20260101T000000Z_0badf00d")), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Read(ctx, "20260101T000000Z_0badf00d"); !governerr.Is(err, governerr.Invalid) {
		t.Errorf("corrupt draft error = %v, want invalid", err)
	}
}

func TestList(t *testing.T) {
	repo, records, c := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for i, content := range []string{sampleContent, sampleContent + "# two\n", sampleContent + "# three\n"} {
		d, _, err := repo.Create(ctx, "a.yaml", content, "alice", "")
		if err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
		ids = append(ids, d.DraftID)
		c.advance(time.Minute)
	}
	if err := os.WriteFile(records.Path(recordKey("20260301T115959Z_ffffffff")), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("List() returned %d drafts, want 3", len(got))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if got[i].DraftID != want {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].DraftID, want)
		}
	}

	limited, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].DraftID != ids[2] {
		t.Errorf("List(0) = %+v, want newest only", limited)
	}
}

func TestApprove_OneEntryPerActor(t *testing.T) {
	repo, _, c := newTestRepo(t)
	ctx := context.Background()

	d, _, err := repo.Create(ctx, "a.yaml", sampleContent, "alice", "")
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		actor string
		note  string
	}{
		{"bob", "first look"},
		{"carol", "ok"},
		{"bob", "second look"},
	}
	for _, s := range steps {
		c.advance(10 * time.Second)
		if _, err := repo.Approve(ctx, d.DraftID, s.actor, s.note); err != nil {
			t.Fatalf("Approve(%s) error = %v", s.actor, err)
		}
	}

	got, err := repo.Read(ctx, d.DraftID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Approvals) != 2 {
		t.Fatalf("got %d approvals, want 2: %+v", len(got.Approvals), got.Approvals)
	}
	if got.Approvals[0].Actor != "carol" || got.Approvals[1].Actor != "bob" {
		t.Errorf("approvals not ordered by time: %+v", got.Approvals)
	}
	if got.Approvals[1].Note != "second look" || !got.Approvals[1].ApprovedAt.Equal(c.t) {
		t.Errorf("latest bob approval should win, got %+v", got.Approvals[1])
	}
}

func TestValidate_RecordsValidator(t *testing.T) {
	repo, _, c := newTestRepo(t)
	ctx := context.Background()

	d, _, err := repo.Create(ctx, "a.yaml", "system:\n  id: x\n", "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Validation.OK {
		t.Fatal("incomplete draft should fail validation")
	}

	c.advance(time.Minute)
	got, err := repo.Validate(ctx, d.DraftID, "bob")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.ValidatedBy != "bob" || got.ValidatedAt == nil || !got.ValidatedAt.Equal(c.t) {
		t.Errorf("validator metadata not recorded: %+v", got)
	}
	if len(got.Validation.Checks.MissingSections) != 4 {
		t.Errorf("MissingSections = %v", got.Validation.Checks.MissingSections)
	}
}

// Two repositories over one root stand in for two `draft approve` processes.
func TestApprove_ConcurrentRepositoriesKeepBothApprovals(t *testing.T) {
	root := t.TempDir()
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	open := func() *Repository {
		records, err := store.New(root)
		if err != nil {
			t.Fatalf("store.New() error = %v", err)
		}
		return NewRepository(records, profile.NewNameRule(".yaml"), c.now, nil)
	}
	a, b := open(), open()
	ctx := context.Background()

	for round := 0; round < 30; round++ {
		c.advance(time.Second)
		d, _, err := a.Create(ctx, "live.yaml", sampleContent, "carol", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		var wg sync.WaitGroup
		for actor, repo := range map[string]*Repository{"alice": a, "bob": b} {
			wg.Add(1)
			go func(actor string, repo *Repository) {
				defer wg.Done()
				if _, err := repo.Approve(ctx, d.DraftID, actor, ""); err != nil {
					t.Errorf("Approve(%s) error = %v", actor, err)
				}
			}(actor, repo)
		}
		wg.Wait()

		got, err := b.Read(ctx, d.DraftID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Approvals) != 2 {
			t.Fatalf("round %d: got %d approvals, want 2: %+v", round, len(got.Approvals), got.Approvals)
		}
	}
}
