package cli

import (
	"errors"
	"fmt"

	governerr "aitrade-hq/governor/pkg/governance/errors"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitInvalid  = 2
	ExitBlocked  = 3
	ExitNotFound = 4
)

// ConfigError represents an error in configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode returns the exit status for err. Configuration errors are
// treated as invalid input.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ExitInvalid
	}
	switch governerr.KindOf(err) {
	case governerr.Invalid:
		return ExitInvalid
	case governerr.Blocked:
		return ExitBlocked
	case governerr.NotFound:
		return ExitNotFound
	default:
		return ExitFailure
	}
}
