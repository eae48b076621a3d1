package diff

import "sort"

// Addition is a key present only in the draft.
type Addition struct {
	Key   string `json:"key"`
	After any    `json:"after"`
}

// Removal is a key present only in the live profile.
type Removal struct {
	Key    string `json:"key"`
	Before any    `json:"before"`
}

// Change is a key present in both with a different value.
type Change struct {
	Key    string `json:"key"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Counts summarizes a Diff.
type Counts struct {
	BeforeScalarCount int `json:"before_scalar_count"`
	AfterScalarCount  int `json:"after_scalar_count"`
	AddedCount        int `json:"added_count"`
	RemovedCount      int `json:"removed_count"`
	ChangedCount      int `json:"changed_count"`
}

// Diff is the structural difference between two profiles. Entries are sorted
// by key.
type Diff struct {
	Counts  Counts     `json:"counts"`
	Added   []Addition `json:"added"`
	Removed []Removal  `json:"removed"`
	Changed []Change   `json:"changed"`
}

// Compare diffs the scalar paths of before and after.
func Compare(before, after Scalars) Diff {
	d := Diff{
		Added:   []Addition{},
		Removed: []Removal{},
		Changed: []Change{},
	}

	for _, key := range sortedKeys(after) {
		old, ok := before[key]
		switch {
		case !ok:
			d.Added = append(d.Added, Addition{Key: key, After: after[key]})
		case !Equal(old, after[key]):
			d.Changed = append(d.Changed, Change{Key: key, Before: old, After: after[key]})
		}
	}
	for _, key := range sortedKeys(before) {
		if _, ok := after[key]; !ok {
			d.Removed = append(d.Removed, Removal{Key: key, Before: before[key]})
		}
	}

	d.Counts = Counts{
		BeforeScalarCount: len(before),
		AfterScalarCount:  len(after),
		AddedCount:        len(d.Added),
		RemovedCount:      len(d.Removed),
		ChangedCount:      len(d.Changed),
	}
	return d
}

// Assessment bundles the diff and risk outcome for a pair of profile texts.
type Assessment struct {
	Diff      Diff       `json:"diff"`
	RiskFlags []RiskFlag `json:"risk_flags"`
	RiskLevel Severity   `json:"risk_level"`
}

// Assess runs extraction, diff and risk scoring over live and draft text.
// live may be empty when the profile does not exist yet.
func Assess(live, draft string) Assessment {
	before := ExtractScalarPaths(live)
	after := ExtractScalarPaths(draft)
	flags := RiskFlags(before, after)
	return Assessment{
		Diff:      Compare(before, after),
		RiskFlags: flags,
		RiskLevel: RiskLevel(flags),
	}
}

func sortedKeys(m Scalars) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
