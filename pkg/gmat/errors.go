package gmat

import (
	"errors"
	"fmt"
)

var (
	// ErrConsoleNotFound is returned when no engine console executable can be located.
	ErrConsoleNotFound = errors.New("GMAT console not found")

	// ErrReportMissing is returned when the engine exits cleanly but wrote no report.
	ErrReportMissing = errors.New("engine finished but produced no report")
)

// ExecError describes a failed engine operation.
type ExecError struct {
	// Op is the step that failed: "stat", "exec", "copy", "connect",
	// "upload", "download".
	Op string

	// Err is the underlying error.
	Err error

	// Temporary reports whether retrying may succeed, e.g. a dropped
	// connection as opposed to a script the engine rejected.
	Temporary bool

	// AuthError reports an SSH authentication failure.
	AuthError bool

	// ExitCode is the engine's exit status, or -1 when it did not exit.
	ExitCode int

	// Output holds the tail of the engine's combined output.
	Output string
}

func (e *ExecError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("gmat %s: exit code %d: %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("gmat %s: %v", e.Op, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is an ExecError marked temporary.
func IsTemporary(err error) bool {
	var e *ExecError
	return errors.As(err, &e) && e.Temporary
}

const maxOutputTail = 4096

// tail trims engine output to the last few kilobytes.
func tail(out []byte) string {
	if len(out) > maxOutputTail {
		out = out[len(out)-maxOutputTail:]
	}
	return string(out)
}
