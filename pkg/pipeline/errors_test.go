package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/gmatflow/gmatflow/pkg/gmat"
	"github.com/gmatflow/gmatflow/pkg/plot"
	"github.com/gmatflow/gmatflow/pkg/report"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
		code  string
	}{
		{"cancelled", context.Canceled, ErrorClassCancelled, ErrCodeCancelled},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), ErrorClassTransient, ErrCodeTimeout},
		{"console missing", gmat.ErrConsoleNotFound, ErrorClassPermanent, ErrCodeConsoleNotFound},
		{"file missing", fmt.Errorf("open: %w", fs.ErrNotExist), ErrorClassPermanent, ErrCodeNotFound},
		{"empty report", report.ErrEmpty, ErrorClassPermanent, ErrCodeReportInvalid},
		{"narrow report", report.ErrTooFewColumns, ErrorClassPermanent, ErrCodeReportInvalid},
		{"short report", plot.ErrTooFewRows, ErrorClassPermanent, ErrCodeReportInvalid},
		{"unknown", errors.New("boom"), ErrorClassPermanent, ErrCodeInternal},
		{
			"auth",
			&gmat.ExecError{Op: "connect", Err: errors.New("unable to authenticate"), AuthError: true, ExitCode: -1},
			ErrorClassPermanent, ErrCodeAuth,
		},
		{
			"report missing",
			&gmat.ExecError{Op: "copy", Err: gmat.ErrReportMissing, ExitCode: -1},
			ErrorClassPermanent, ErrCodeReportMissing,
		},
		{
			"engine timeout",
			&gmat.ExecError{Op: "exec", Err: context.DeadlineExceeded, ExitCode: -1},
			ErrorClassTransient, ErrCodeTimeout,
		},
		{
			"dropped connection",
			&gmat.ExecError{Op: "upload", Err: errors.New("EOF"), Temporary: true, ExitCode: -1},
			ErrorClassTransient, ErrCodeEngineFailed,
		},
		{
			"engine rejected script",
			&gmat.ExecError{Op: "exec", Err: errors.New("exit status 1"), ExitCode: 1},
			ErrorClassPermanent, ErrCodeEngineFailed,
		},
		{
			"already classified",
			NewTransientError("flaky", nil).WithCode("CUSTOM"),
			ErrorClassTransient, "CUSTOM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(StageEngine, tt.err)
			if got.Class != tt.class {
				t.Errorf("class = %s, want %s", got.Class, tt.class)
			}
			if got.Code != tt.code {
				t.Errorf("code = %s, want %s", got.Code, tt.code)
			}
			if got.Stage != StageEngine {
				t.Errorf("stage = %s", got.Stage)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error should wrap the original")
			}
		})
	}

	if Classify(StageParse, nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestError_Format(t *testing.T) {
	err := NewPermanentError("engine failed", errors.New("exit status 1")).
		WithStage(StageEngine).
		WithCode(ErrCodeEngineFailed).
		WithDetail("exit_code", 1)

	want := "[permanent] engine failed (stage=engine): exit status 1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Details["exit_code"] != 1 {
		t.Errorf("details = %v", err.Details)
	}

	wrapped := fmt.Errorf("run: %w", err)
	if !IsPermanent(wrapped) || IsTransient(wrapped) || IsCancelled(wrapped) {
		t.Error("class helpers should see through wrapping")
	}
	if !errors.Is(wrapped, &Error{Class: ErrorClassPermanent, Code: ErrCodeEngineFailed}) {
		t.Error("errors.Is should match class and code")
	}
	if errors.Is(wrapped, &Error{Class: ErrorClassPermanent, Code: ErrCodeAuth}) {
		t.Error("errors.Is should not match a different code")
	}
}

func TestClassify_ExecDetails(t *testing.T) {
	err := Classify(StageEngine, &gmat.ExecError{
		Op:       "exec",
		Err:      errors.New("exit status 2"),
		ExitCode: 2,
		Output:   "Error: unknown object",
	})

	if err.Details["op"] != "exec" || err.Details["exit_code"] != 2 {
		t.Errorf("details = %v", err.Details)
	}
	if !strings.Contains(err.Details["output"].(string), "unknown object") {
		t.Errorf("output = %v", err.Details["output"])
	}
}
