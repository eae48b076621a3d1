// Package draft persists configuration drafts: proposed full-text
// replacements of a live profile, their last validation result and their
// approvals.
package draft

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"aitrade-hq/governor/pkg/governance/diff"
	governerr "aitrade-hq/governor/pkg/governance/errors"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/store"
)

const (
	draftsDir      = "drafts"
	recordExt      = ".json"
	idTimeLayout   = "20060102T150405Z"
	idDigestLength = 8
)

var idPattern = regexp.MustCompile(`^[0-9]{8}T[0-9]{6}Z_[a-f0-9]{8}$`)

// Approval is one actor's sign-off on a draft.
type Approval struct {
	Actor      string    `json:"actor"`
	ApprovedAt time.Time `json:"approved_at_utc"`
	Note       string    `json:"note"`
}

// Draft is a proposed profile replacement.
type Draft struct {
	DraftID       string          `json:"draft_id"`
	ProfileName   string          `json:"profile_name"`
	Note          string          `json:"note"`
	Actor         string          `json:"actor"`
	CreatedAt     time.Time       `json:"created_at_utc"`
	ContentSHA256 string          `json:"content_sha256"`
	Content       string          `json:"content"`
	Validation    diff.Validation `json:"validation"`
	ValidatedAt   *time.Time      `json:"validated_at_utc,omitempty"`
	ValidatedBy   string          `json:"validated_by,omitempty"`
	Approvals     []Approval      `json:"approvals"`
}

// Summary is the listing view of a draft.
type Summary struct {
	DraftID      string    `json:"draft_id"`
	ProfileName  string    `json:"profile_name"`
	CreatedAt    time.Time `json:"created_at_utc"`
	Actor        string    `json:"actor"`
	ValidationOK bool      `json:"validation_ok"`
}

// Repository stores drafts as one JSON record each. Writes to a draft are
// serialized per draft id.
type Repository struct {
	records *store.Store
	names   profile.NameRule
	now     func() time.Time
	logger  *slog.Logger
}

// NewRepository creates a draft repository. A nil now uses time.Now.
func NewRepository(records *store.Store, names profile.NameRule, now func() time.Time, logger *slog.Logger) *Repository {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		records: records,
		names:   names,
		now:     now,
		logger:  logger.With("component", "governance.draft"),
	}
}

// ValidID reports whether id has the draft id shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ContentSHA256 returns the hex sha256 of content.
func ContentSHA256(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Create validates and stores a new draft. The id is the creation second
// followed by the first eight hex digits of the content digest. Creating the
// same profile and content twice in one second returns the stored draft with
// created=false; any other collision is Invalid.
func (r *Repository) Create(ctx context.Context, profileName, content, actor, note string) (d *Draft, created bool, err error) {
	const op = "draft.create"
	if err := r.names.Validate(op, profileName); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, false, governerr.Invalidf(op, "draft content is empty")
	}

	now := r.timestamp()
	digest := ContentSHA256(content)
	id := now.Format(idTimeLayout) + "_" + digest[:idDigestLength]

	unlock, err := r.records.Lock(lockKey(id))
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	existing, err := r.load(op, id)
	switch {
	case err == nil:
		if existing.ProfileName == profileName && existing.Content == content {
			return existing, false, nil
		}
		return nil, false, governerr.Invalidf(op, "draft id collision: %s", id)
	case !governerr.Is(err, governerr.NotFound):
		return nil, false, err
	}

	d = &Draft{
		DraftID:       id,
		ProfileName:   profileName,
		Note:          note,
		Actor:         actor,
		CreatedAt:     now,
		ContentSHA256: digest,
		Content:       content,
		Validation:    diff.ValidateConfigText(content),
		Approvals:     []Approval{},
	}
	if err := r.save(d); err != nil {
		return nil, false, err
	}
	r.logger.Info("draft created", "draft_id", id, "profile", profileName, "actor", actor, "validation_ok", d.Validation.OK)
	return d, true, nil
}

// Read returns the draft with id.
func (r *Repository) Read(ctx context.Context, id string) (*Draft, error) {
	const op = "draft.read"
	if !ValidID(id) {
		return nil, governerr.Invalidf(op, "invalid draft_id: %s", id)
	}
	return r.load(op, id)
}

// List returns up to limit drafts, newest first. Unreadable records are
// skipped. A limit below one is treated as one.
func (r *Repository) List(ctx context.Context, limit int) ([]Summary, error) {
	names, err := r.records.List(draftsDir, recordExt)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit < 1 {
		limit = 1
	}

	summaries := make([]Summary, 0, min(limit, len(names)))
	for _, name := range names {
		if len(summaries) >= limit {
			break
		}
		var d Draft
		if err := r.records.ReadJSON(draftsDir+"/"+name, &d); err != nil {
			r.logger.Warn("skipping unreadable draft", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, Summary{
			DraftID:      d.DraftID,
			ProfileName:  d.ProfileName,
			CreatedAt:    d.CreatedAt,
			Actor:        d.Actor,
			ValidationOK: d.Validation.OK,
		})
	}
	return summaries, nil
}

// Validate re-runs the validation check on the stored content and records
// who ran it.
func (r *Repository) Validate(ctx context.Context, id, actor string) (*Draft, error) {
	return r.update(ctx, "draft.validate", id, func(d *Draft) {
		now := r.timestamp()
		d.Validation = diff.ValidateConfigText(d.Content)
		d.ValidatedAt = &now
		d.ValidatedBy = actor
	})
}

// Approve replaces any earlier approval by actor with a fresh one and keeps
// approvals ordered by time.
func (r *Repository) Approve(ctx context.Context, id, actor, note string) (*Draft, error) {
	return r.update(ctx, "draft.approve", id, func(d *Draft) {
		d.Approvals = withApproval(d.Approvals, Approval{
			Actor:      actor,
			ApprovedAt: r.timestamp(),
			Note:       note,
		})
	})
}

func (r *Repository) update(ctx context.Context, op, id string, mutate func(*Draft)) (*Draft, error) {
	if !ValidID(id) {
		return nil, governerr.Invalidf(op, "invalid draft_id: %s", id)
	}
	unlock, err := r.records.Lock(lockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	d, err := r.load(op, id)
	if err != nil {
		return nil, err
	}
	mutate(d)
	if err := r.save(d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Repository) load(op, id string) (*Draft, error) {
	var d Draft
	err := r.records.ReadJSON(recordKey(id), &d)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, governerr.NotFoundf(op, "draft not found: %s", id)
		}
		var corrupt *store.CorruptError
		if errors.As(err, &corrupt) {
			return nil, governerr.Wrap(governerr.Invalid, op, corrupt.Cause, "draft json invalid: %s", id)
		}
		return nil, err
	}
	d.Approvals = normalizeApprovals(d.Approvals)
	return &d, nil
}

func (r *Repository) save(d *Draft) error {
	if err := r.records.WriteJSON(recordKey(d.DraftID), d); err != nil {
		return fmt.Errorf("failed to persist draft %s: %w", d.DraftID, err)
	}
	return nil
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Second)
}

// withApproval drops any approval by a.Actor, appends a and re-sorts.
func withApproval(approvals []Approval, a Approval) []Approval {
	out := make([]Approval, 0, len(approvals)+1)
	for _, existing := range approvals {
		if existing.Actor != a.Actor {
			out = append(out, existing)
		}
	}
	out = append(out, a)
	sortApprovals(out)
	return out
}

// normalizeApprovals drops entries without an actor or time and sorts the
// rest by time.
func normalizeApprovals(approvals []Approval) []Approval {
	out := make([]Approval, 0, len(approvals))
	for _, a := range approvals {
		a.Actor = strings.TrimSpace(a.Actor)
		if a.Actor == "" || a.ApprovedAt.IsZero() {
			continue
		}
		out = append(out, a)
	}
	sortApprovals(out)
	return out
}

func sortApprovals(approvals []Approval) {
	sort.SliceStable(approvals, func(i, j int) bool {
		return approvals[i].ApprovedAt.Before(approvals[j].ApprovedAt)
	})
}

func recordKey(id string) string {
	return draftsDir + "/" + id + recordExt
}

func lockKey(id string) string {
	return "draft/" + id
}
