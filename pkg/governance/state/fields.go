package state

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	governerr "aitrade-hq/governor/pkg/governance/errors"
)

// Field names accepted in a state patch.
const (
	FieldReadOnlyMode              = "read_only_mode"
	FieldPublishFrozen             = "publish_frozen"
	FieldRequireLatestPass         = "require_latest_pass"
	FieldAllowPassWithActions      = "allow_pass_with_actions"
	FieldHighRiskTwoManRule        = "high_risk_two_man_rule"
	FieldHighRiskRequiredApprovals = "high_risk_required_approvals"
	FieldHighRiskCooldownSeconds   = "high_risk_cooldown_seconds"
)

type fieldKind int

const (
	kindBool fieldKind = iota
	kindInt
)

// field describes one patchable state field.
type field struct {
	kind     fieldKind
	min, max int
	apply    func(st *State, v any)
}

var fields = map[string]field{
	FieldReadOnlyMode: boolField(func(st *State, b bool) { st.ReadOnlyMode = b }),
	FieldPublishFrozen: boolField(func(st *State, b bool) { st.PublishFrozen = b }),
	FieldRequireLatestPass: boolField(func(st *State, b bool) { st.RequireLatestPass = b }),
	FieldAllowPassWithActions: boolField(func(st *State, b bool) { st.AllowPassWithActions = b }),
	FieldHighRiskTwoManRule: boolField(func(st *State, b bool) { st.HighRiskTwoManRule = b }),
	FieldHighRiskRequiredApprovals: intField(MinRequiredApprovals, MaxRequiredApprovals,
		func(st *State, n int) { st.HighRiskRequiredApprovals = n }),
	FieldHighRiskCooldownSeconds: intField(MinCooldownSeconds, MaxCooldownSeconds,
		func(st *State, n int) { st.HighRiskCooldownSeconds = n }),
}

func boolField(set func(*State, bool)) field {
	return field{
		kind:  kindBool,
		apply: func(st *State, v any) { set(st, v.(bool)) },
	}
}

func intField(min, max int, set func(*State, int)) field {
	return field{
		kind: kindInt,
		min:  min,
		max:  max,
		apply: func(st *State, v any) {
			n, _ := asInt(v)
			set(st, n)
		},
	}
}

// Fields returns the patchable field names, sorted.
func Fields() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validatePatch rejects unknown keys, wrong value types and out-of-range
// integers. A boolean never satisfies an integer field.
func validatePatch(patch map[string]any) error {
	var unknown []string
	for name := range patch {
		if _, ok := fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return governerr.Invalidf("state.update", "unsupported state fields: %s", joinQuoted(unknown))
	}

	for _, name := range patchKeys(patch) {
		f := fields[name]
		v := patch[name]
		switch f.kind {
		case kindBool:
			if _, ok := v.(bool); !ok {
				return governerr.Invalidf("state.update", "state field must be bool: %s", name)
			}
		case kindInt:
			n, ok := asInt(v)
			if !ok {
				return governerr.Invalidf("state.update", "state field must be int: %s", name)
			}
			if n < f.min || n > f.max {
				return governerr.Invalidf("state.update", "%s must be in [%d, %d]", name, f.min, f.max)
			}
		}
	}
	return nil
}

// DecodePatch decodes a JSON object into a patch. Numbers are kept as
// json.Number so that 2.0 or 2e0 are told apart from 2 and rejected for
// integer fields.
func DecodePatch(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var patch map[string]any
	if err := dec.Decode(&patch); err != nil {
		return nil, governerr.Wrap(governerr.Invalid, "state.update", err, "state patch must be a JSON object")
	}
	if dec.More() {
		return nil, governerr.Invalidf("state.update", "state patch must be a single JSON object")
	}
	if patch == nil {
		return nil, governerr.Invalidf("state.update", "state patch must be a JSON object")
	}
	return patch, nil
}

// asInt accepts Go integers and json.Numbers written as integers. Floats,
// booleans and strings are rejected, even when integral.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil || i > math.MaxInt32 || i < math.MinInt32 {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
