package governance

import (
	"regexp"
	"strings"
	"unicode/utf8"

	governerr "aitrade-hq/governor/pkg/governance/errors"
)

// Actors.
const (
	AnonymousActor = "anonymous"
	InvalidActor   = "invalid-actor"
)

// Input bounds.
const (
	MaxNoteLength          = 400
	MinPreviewDigestLength = 16
	MaxPreviewDigestLength = 128
	MinConfirmPhraseLength = 4
	MaxConfirmPhraseLength = 160
	MaxProfileFilterLength = 120

	DefaultAuditLimit  = 200
	MaxAuditLimit      = 2000
	DefaultDraftLimit  = 100
	MaxDraftLimit      = 1000
	DefaultBackupLimit = 200
	MaxBackupLimit     = 2000
)

var actorPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,64}$`)

// NormalizeActor maps a caller-supplied identity to the actor recorded on
// drafts, approvals and audit events. Blank becomes "anonymous"; anything
// outside [A-Za-z0-9_.:@-]{1,64} becomes "invalid-actor". Service write
// operations apply it to their actor argument.
func NormalizeActor(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return AnonymousActor
	case !actorPattern.MatchString(raw):
		return InvalidActor
	default:
		return raw
	}
}

func checkNote(op, note string) error {
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return governerr.Invalidf(op, "note longer than %d characters", MaxNoteLength)
	}
	return nil
}

func checkLength(op, field, value string, lo, hi int) error {
	if n := utf8.RuneCountInString(value); n < lo || n > hi {
		return governerr.Invalidf(op, "%s length must be in [%d, %d], got %d", field, lo, hi, n)
	}
	return nil
}

// checkLimit rejects limits outside [1, max]; zero selects def.
func checkLimit(op string, limit, def, max int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 1 || limit > max {
		return 0, governerr.Invalidf(op, "limit must be in [1, %d], got %d", max, limit)
	}
	return limit, nil
}
