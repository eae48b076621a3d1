package diff

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	keyLine    = regexp.MustCompile(`^([A-Za-z0-9_.-]+)\s*:\s*(.*)$`)
	intLiteral = regexp.MustCompile(`^-?\d+$`)
	floatLit   = regexp.MustCompile(`^-?(?:\d+\.\d*|\.\d+)(?:[eE][+-]?\d+)?$`)

	numericString = regexp.MustCompile(`^-?(?:\d+|\d+\.\d*|\.\d+)(?:[eE][+-]?\d+)?$`)
)

// Scalars maps dotted key paths to leaf values. Values are nil, bool, int64,
// float64 or string.
type Scalars map[string]any

type frame struct {
	indent int
	key    string
}

// ExtractScalarPaths walks content line by line and records leaf scalars
// under their dotted path. Comments are stripped, list items are skipped and
// a value-less "key:" opens a nested mapping. Lines that are not mappings are
// ignored.
func ExtractScalarPaths(content string) Scalars {
	values := Scalars{}
	var stack []frame

	for _, raw := range strings.Split(content, "\n") {
		line := raw
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "- ") {
			continue
		}

		m := keyLine.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " "))
		key, value := m[1], strings.TrimSpace(m[2])

		for len(stack) > 0 && indent <= stack[len(stack)-1].indent {
			stack = stack[:len(stack)-1]
		}
		if value == "" {
			stack = append(stack, frame{indent: indent, key: key})
			continue
		}

		parts := make([]string, 0, len(stack)+1)
		for _, f := range stack {
			parts = append(parts, f.key)
		}
		values[strings.Join(append(parts, key), ".")] = ParseScalar(value)
	}
	return values
}

// ParseScalar converts a raw value to nil, bool, int64, float64 or string.
// Matching surrounding quotes are dropped first.
func ParseScalar(raw string) any {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	if len(text) >= 2 && (text[0] == '"' && text[len(text)-1] == '"' || text[0] == '\'' && text[len(text)-1] == '\'') {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}

	switch strings.ToLower(text) {
	case "true":
		return true
	case "false":
		return false
	case "null", "~":
		return nil
	}
	if intLiteral.MatchString(text) {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		return text
	}
	if floatLit.MatchString(text) {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	}
	return text
}

// Equal compares two scalars. Numbers compare by value, so 100 and 100.0 are
// equal; a bool is never equal to a number.
func Equal(a, b any) bool {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// asFloat is number plus numeric strings, used by the risk thresholds.
func asFloat(v any) (float64, bool) {
	if f, ok := number(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if !numericString.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
