package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Command is an argv-style invocation. Env, when non-nil, is the complete
// environment of the child process.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	// Label names the command in errors and logs. Defaults to Name and Args.
	Label string
}

func (c Command) String() string {
	if c.Label != "" {
		return c.Label
	}
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ProcessError reports a command that could not be started, timed out or
// exited nonzero. ExitCode is -1 when the process never produced one.
type ProcessError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Runner executes external commands and captures their output.
type Runner struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Runner {
	return &Runner{logger: logger.With().Str("component", "runner").Logger()}
}

// Run executes cmd and waits for it. A nonzero exit is returned as a
// *ProcessError carrying both output streams.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env
	}
	// children that inherit the pipes must not hold Wait past the deadline
	c.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	duration := time.Since(start)

	r.logger.Debug().Str("command", cmd.String()).Dur("duration", duration).Err(err).Msg("command finished")

	if err != nil {
		perr := &ProcessError{
			Command:  cmd.String(),
			ExitCode: exitCode(err),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		if cmd.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			perr.ExitCode = -1
			perr.Err = fmt.Errorf("timed out after %s: %w", cmd.Timeout, ctx.Err())
		}
		return nil, perr
	}

	return &Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: duration}, nil
}

// exitCode maps a Wait error to a shell-style exit code: 128+signal for
// killed processes, -1 when the process did not run.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}
