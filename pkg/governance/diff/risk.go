package diff

// Severity ranks a risk flag.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Risk flag reasons.
const (
	ReasonIncrease100Pct = "numeric_limit_increase_ge_100pct"
	ReasonIncrease20Pct  = "numeric_limit_increase_ge_20pct"
	ReasonToggleChanged  = "environment_toggle_changed"
)

// LimitKeys are numeric limits whose relative increase is scored.
var LimitKeys = []string{
	"risk.max_abs_notional_usd",
	"execution.max_order_notional",
	"strategy.signal_notional_usd",
}

// ToggleKeys are environment switches flagged on any change.
var ToggleKeys = []string{
	"exchange.testnet",
	"exchange.demo_trading",
}

// RiskFlag is a change that crosses a risk threshold.
type RiskFlag struct {
	Key      string   `json:"key"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
	Before   any      `json:"before"`
	After    any      `json:"after"`
}

// RiskFlags scores the limit and toggle keys. Limits are flagged only when
// both sides are numeric and the old value is positive; decreases are never
// flagged. Toggles are flagged on any difference, including addition and
// removal; a missing key reads as null.
func RiskFlags(before, after Scalars) []RiskFlag {
	flags := []RiskFlag{}

	for _, key := range LimitKeys {
		old, okOld := asFloat(before[key])
		cur, okNew := asFloat(after[key])
		if !okOld || !okNew || old <= 0 {
			continue
		}
		ratio := (cur - old) / old
		switch {
		case ratio >= 1.0:
			flags = append(flags, RiskFlag{Key: key, Severity: SeverityHigh, Reason: ReasonIncrease100Pct, Before: old, After: cur})
		case ratio >= 0.2:
			flags = append(flags, RiskFlag{Key: key, Severity: SeverityMedium, Reason: ReasonIncrease20Pct, Before: old, After: cur})
		}
	}

	for _, key := range ToggleKeys {
		old, cur := before[key], after[key]
		if Equal(old, cur) {
			continue
		}
		flags = append(flags, RiskFlag{Key: key, Severity: SeverityHigh, Reason: ReasonToggleChanged, Before: old, After: cur})
	}
	return flags
}

// RiskLevel returns the highest severity in flags, or LOW.
func RiskLevel(flags []RiskFlag) Severity {
	level := SeverityLow
	for _, f := range flags {
		switch f.Severity {
		case SeverityHigh:
			return SeverityHigh
		case SeverityMedium:
			level = SeverityMedium
		}
	}
	return level
}

// HasHigh reports whether any flag is HIGH.
func HasHigh(flags []RiskFlag) bool {
	return RiskLevel(flags) == SeverityHigh
}
