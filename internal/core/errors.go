package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey-austin/echo_remote/internal/connection"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Exit codes.
const (
	ExitOK        = 0
	ExitRuntime   = 1
	ExitUsage     = 2
	ExitRejected  = 3
	ExitNotFound  = 4
	ExitExtension = 5
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// UsageError reports bad arguments.
func UsageError(format string, args ...any) *CLIError {
	return &CLIError{Code: ExitUsage, Msg: fmt.Sprintf(format, args...)}
}

// ErrorForRemote maps a protocol Error from the player to a CLI error.
func ErrorForRemote(msg remote.Error) *CLIError {
	text := msg.Message
	if msg.Details != nil && *msg.Details != "" {
		text = fmt.Sprintf("%s (%s)", text, *msg.Details)
	}
	switch msg.Code {
	case remote.ErrorExtensionNotFound, remote.ErrorIncompatibleExtension:
		return &CLIError{Code: ExitExtension, Msg: text}
	default:
		return &CLIError{Code: ExitRuntime, Msg: text}
	}
}

// ErrorForConnect maps a session setup failure to a CLI error.
func ErrorForConnect(device remote.DeviceRecord, err error) *CLIError {
	var rejected *connection.RejectedError
	switch {
	case errors.As(err, &rejected):
		return &CLIError{Code: ExitRejected, Msg: fmt.Sprintf("%s rejected the connection: %s", device.Name, rejected.Reason)}
	case errors.Is(err, context.DeadlineExceeded):
		return &CLIError{Code: ExitRuntime, Msg: fmt.Sprintf("timed out connecting to %s", device.Name), Err: err}
	default:
		return WrapError(ExitRuntime, fmt.Sprintf("connect to %s", device.Name), err)
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntime
}
