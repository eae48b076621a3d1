package cli

import (
	"errors"
	"fmt"
	"testing"

	governerr "aitrade-hq/governor/pkg/governance/errors"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "paths.control_root",
		Message: "missing required field",
	}

	expected := "config error in paths.control_root: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandError(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("publish", underlyingErr)

	expected := "command publish failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("disk full"), ExitFailure},
		{"invalid", governerr.Invalidf("create_draft", "bad name"), ExitInvalid},
		{"blocked", governerr.Blockedf("publish", "read_only_mode=true"), ExitBlocked},
		{"not found", governerr.NotFoundf("read_draft", "draft not found"), ExitNotFound},
		{"wrapped blocked", NewCommandError("publish", governerr.Blockedf("publish", "cooldown")), ExitBlocked},
		{"wrapped with fmt", fmt.Errorf("ctx: %w", governerr.NotFoundf("rollback", "missing")), ExitNotFound},
		{"config", NewConfigError("output", "unknown format"), ExitInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
