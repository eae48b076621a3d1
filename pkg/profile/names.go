package profile

import (
	"regexp"
	"strings"

	governerr "aitrade-hq/governor/pkg/governance/errors"
)

// DefaultExtension is the profile file extension.
const DefaultExtension = ".yaml"

// MaxNameLength bounds a profile name.
const MaxNameLength = 120

// NameRule validates profile names: a safe file name made of letters,
// digits, '_', '.' and '-' ending in the profile extension.
type NameRule struct {
	ext     string
	pattern *regexp.Regexp
}

// NewNameRule builds the rule for ext (e.g. ".yaml"). An empty ext uses
// DefaultExtension.
func NewNameRule(ext string) NameRule {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return NameRule{
		ext:     ext,
		pattern: regexp.MustCompile(`^[A-Za-z0-9_.-]+` + regexp.QuoteMeta(ext) + `$`),
	}
}

// Extension returns the required extension.
func (r NameRule) Extension() string {
	if r.pattern == nil {
		return DefaultExtension
	}
	return r.ext
}

// Match reports whether name is a valid profile name.
func (r NameRule) Match(name string) bool {
	if r.pattern == nil {
		r = NewNameRule("")
	}
	return len(name) <= MaxNameLength && r.pattern.MatchString(name) && !strings.Contains(name, "..")
}

// Validate returns an Invalid error for a bad name.
func (r NameRule) Validate(op, name string) error {
	if !r.Match(name) {
		return governerr.Invalidf(op, "invalid profile name: %s", name)
	}
	return nil
}
