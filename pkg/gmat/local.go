package gmat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// LocalRunner runs a console installed on this machine.
type LocalRunner struct {
	console string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewLocalRunner creates a runner for console. A zero timeout uses DefaultTimeout.
func NewLocalRunner(console string, timeout time.Duration, logger zerolog.Logger) *LocalRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LocalRunner{
		console: console,
		timeout: timeout,
		logger:  logger.With().Str("component", "gmat").Str("console", console).Logger(),
	}
}

// Console returns the console executable path.
func (r *LocalRunner) Console() string {
	return r.console
}

// Run executes the console on script and copies the report into outDir.
func (r *LocalRunner) Run(ctx context.Context, script, outDir string) (string, error) {
	abs, err := filepath.Abs(script)
	if err != nil {
		return "", &ExecError{Op: "stat", Err: err, ExitCode: -1}
	}
	if _, err := os.Stat(abs); err != nil {
		return "", &ExecError{Op: "stat", Err: fmt.Errorf("script %s: %w", abs, err), ExitCode: -1}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var output bytes.Buffer
	cmd := exec.CommandContext(execCtx, r.console, abs)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = 2 * time.Second

	r.logger.Info().Str("script", abs).Msg("Running GMAT")
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	r.logger.Debug().
		Dur("duration", duration).
		Str("output", tail(output.Bytes())).
		Msg("GMAT finished")

	if runErr != nil {
		return "", r.classify(execCtx, ctx, runErr, output.Bytes())
	}

	src := ReportSource(r.console)
	dst := filepath.Join(outDir, ReportFileName)
	if err := copyReport(src, dst); err != nil {
		return "", err
	}

	r.logger.Info().
		Str("report", dst).
		Dur("duration", duration).
		Msg("GMAT report collected")

	return dst, nil
}

func (r *LocalRunner) classify(execCtx, parent context.Context, runErr error, output []byte) error {
	if parent.Err() != nil {
		return &ExecError{Op: "exec", Err: parent.Err(), ExitCode: -1, Output: tail(output)}
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return &ExecError{
			Op:        "exec",
			Err:       fmt.Errorf("timed out after %s: %w", r.timeout, context.DeadlineExceeded),
			Temporary: true,
			ExitCode:  -1,
			Output:    tail(output),
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &ExecError{
			Op:       "exec",
			Err:      runErr,
			ExitCode: exitErr.ExitCode(),
			Output:   tail(output),
		}
	}

	return &ExecError{Op: "exec", Err: runErr, ExitCode: -1, Output: tail(output)}
}

func copyReport(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrReportMissing, src)
		}
		return &ExecError{Op: "copy", Err: err, ExitCode: -1}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &ExecError{Op: "copy", Err: fmt.Errorf("failed to create output directory: %w", err), ExitCode: -1}
	}

	out, err := os.Create(dst)
	if err != nil {
		return &ExecError{Op: "copy", Err: err, ExitCode: -1}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &ExecError{Op: "copy", Err: err, ExitCode: -1}
	}
	if err := out.Close(); err != nil {
		return &ExecError{Op: "copy", Err: err, ExitCode: -1}
	}
	return nil
}
