// Package diff is the pure diff and risk engine. It validates profile text,
// extracts dotted scalar paths with a small indentation-aware scanner, diffs
// two profiles and derives risk flags for sensitive keys.
package diff

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RequiredSections are the top-level sections every profile must declare.
var RequiredSections = []string{"system", "exchange", "risk", "execution", "strategy"}

const (
	minExpectedLines = 20
	maxExpectedBytes = 512 * 1024
)

var (
	sectionPatterns = compileSectionPatterns(RequiredSections)
	demoTradingOn   = regexp.MustCompile(`(?m)^\s*demo_trading\s*:\s*true\s*$`)
	testnetOn       = regexp.MustCompile(`(?m)^\s*testnet\s*:\s*true\s*$`)
)

// Checks are the individual results behind a validation verdict.
type Checks struct {
	RequiredSections       []string `json:"required_sections"`
	MissingSections        []string `json:"missing_sections"`
	HasRequiredSections    bool     `json:"has_required_sections"`
	ConflictDemoAndTestnet bool     `json:"conflict_demo_and_testnet"`
	ParsesAsYAML           bool     `json:"parses_as_yaml"`
	LineCount              int      `json:"line_count"`
	SizeBytes              int      `json:"size_bytes"`
}

// Validation is the outcome of ValidateConfigText. Warnings never affect OK.
type Validation struct {
	OK       bool     `json:"ok"`
	Checks   Checks   `json:"checks"`
	Warnings []string `json:"warnings"`
}

// ValidateConfigText checks content for the required sections and for the
// demo_trading/testnet conflict. A document that does not parse as YAML only
// produces a warning: the scalar scanner is forgiving of partial documents.
func ValidateConfigText(content string) Validation {
	checks := Checks{
		RequiredSections: append([]string(nil), RequiredSections...),
		MissingSections:  []string{},
		LineCount:        countLines(content),
		SizeBytes:        len(content),
	}
	for i, section := range RequiredSections {
		if !sectionPatterns[i].MatchString(content) {
			checks.MissingSections = append(checks.MissingSections, section)
		}
	}
	checks.HasRequiredSections = len(checks.MissingSections) == 0
	checks.ConflictDemoAndTestnet = demoTradingOn.MatchString(content) && testnetOn.MatchString(content)

	warnings := []string{}
	var doc any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		warnings = append(warnings, fmt.Sprintf("config does not parse as yaml: %v", err))
	} else {
		checks.ParsesAsYAML = true
	}
	if checks.LineCount < minExpectedLines {
		warnings = append(warnings, "config lines too short, verify template completeness")
	}
	if checks.SizeBytes > maxExpectedBytes {
		warnings = append(warnings, "config file unusually large")
	}

	return Validation{
		OK:       checks.HasRequiredSections && !checks.ConflictDemoAndTestnet,
		Checks:   checks,
		Warnings: warnings,
	}
}

func compileSectionPatterns(sections []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(sections))
	for i, s := range sections {
		patterns[i] = regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(s) + `:\s*$`)
	}
	return patterns
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
