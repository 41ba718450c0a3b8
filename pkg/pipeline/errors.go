package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/plot"
	"github.com/gmatflow/gmatflow/pkg/report"
	"github.com/gmatflow/gmatflow/pkg/scenario"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may succeed on retry,
	// such as a dropped SSH connection or an engine timeout.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a failure that retrying will not fix,
	// such as a malformed scenario or a script the engine rejects.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassCancelled indicates the run was cancelled by the caller.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodePolicy          = "POLICY_VIOLATION"
	ErrCodeOverrides       = "OVERRIDES_FAILED"
	ErrCodeConsoleNotFound = "CONSOLE_NOT_FOUND"
	ErrCodeAuth            = "AUTH_FAILED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeEngineFailed    = "ENGINE_FAILED"
	ErrCodeReportMissing   = "REPORT_MISSING"
	ErrCodeReportInvalid   = "REPORT_INVALID"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// Error is a classified pipeline failure.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is the stage that failed.
	Stage string `json:"stage,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s (stage=%s)", e.Class, e.Message, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same class and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// NewCancelledError creates a new cancellation error.
func NewCancelledError(message string, err error) *Error {
	return &Error{Class: ErrorClassCancelled, Code: ErrCodeCancelled, Message: message, Err: err}
}

// WithStage sets the failing stage.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassTransient
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassPermanent
}

// IsCancelled returns true if the error is classified as cancelled.
func IsCancelled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Class == ErrorClassCancelled
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

// Classify wraps err in an *Error for stage. Errors that are already
// classified keep their class and code.
func Classify(stage string, err error) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		if pe.Stage == "" {
			pe.Stage = stage
		}
		return pe
	}

	var exec *gmat.ExecError

	switch {
	case errors.Is(err, context.Canceled):
		return NewCancelledError("run cancelled", err).WithStage(stage)

	case errors.As(err, &exec):
		return classifyExec(exec, err).WithStage(stage)

	case errors.Is(err, context.DeadlineExceeded):
		return NewTransientError("deadline exceeded", err).WithStage(stage).WithCode(ErrCodeTimeout)

	case errors.Is(err, gmat.ErrConsoleNotFound):
		return NewPermanentError("engine console not found", err).WithStage(stage).WithCode(ErrCodeConsoleNotFound)

	case errors.Is(err, scenario.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return NewPermanentError("input file not found", err).WithStage(stage).WithCode(ErrCodeNotFound)

	case errors.Is(err, report.ErrEmpty), errors.Is(err, report.ErrTooFewColumns), errors.Is(err, plot.ErrTooFewRows):
		return NewPermanentError("report cannot be used", err).WithStage(stage).WithCode(ErrCodeReportInvalid)
	}

	return NewPermanentError(stage+" failed", err).WithStage(stage).WithCode(ErrCodeInternal)
}

func classifyExec(exec *gmat.ExecError, err error) *Error {
	var e *Error
	switch {
	case errors.Is(err, context.Canceled):
		e = NewCancelledError("run cancelled", err)
	case exec.AuthError:
		e = NewPermanentError("remote authentication failed", err).WithCode(ErrCodeAuth)
	case errors.Is(err, gmat.ErrReportMissing):
		e = NewPermanentError("engine produced no report", err).WithCode(ErrCodeReportMissing)
	case errors.Is(err, fs.ErrNotExist):
		e = NewPermanentError("script not found", err).WithCode(ErrCodeNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		e = NewTransientError("engine timed out", err).WithCode(ErrCodeTimeout)
	case exec.Temporary:
		e = NewTransientError("engine unavailable", err).WithCode(ErrCodeEngineFailed)
	default:
		e = NewPermanentError("engine failed", err).WithCode(ErrCodeEngineFailed)
	}

	e.WithDetail("op", exec.Op)
	if exec.ExitCode > 0 {
		e.WithDetail("exit_code", exec.ExitCode)
	}
	if exec.Output != "" {
		e.WithDetail("output", exec.Output)
	}
	return e
}
