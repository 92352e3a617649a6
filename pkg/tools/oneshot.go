package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"toolbridge/pkg/action"
)

// waitDelay bounds how long Wait blocks on output pipes after the child is
// killed, in case grandchildren keep them open.
const waitDelay = 2 * time.Second

// Command is one fully substituted process invocation.
type Command struct {
	// Tool is the configured tool identifier, used for logs and errors.
	Tool string
	Path string
	Args []string
	// Env is appended to the bridge's own environment.
	Env map[string]string
	Dir string
}

// Executor runs a tool as a single process per request and keeps no state
// between calls.
type Executor struct {
	Timeout time.Duration
}

// NewExecutor creates an Executor with the given wall-clock limit.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{Timeout: timeout}
}

// Run spawns c, waits for it under the executor's timeout and returns its
// standard output. Failures are *action.InvokeError values:
// ProcessSpawnFailure when the process cannot start, ProcessTimeout when the
// limit is hit, ProcessExitFailure with up to 200 characters of stderr on a
// non-zero exit.
func (e *Executor) Run(ctx context.Context, c Command) (string, error) {
	if strings.TrimSpace(c.Path) == "" {
		return "", action.NewError(action.ProcessSpawnFailure, nil, "tool %q has no command", c.Tool)
	}

	runCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	ConfigureProcess(cmd)
	cmd.WaitDelay = waitDelay
	cmd.Dir = c.Dir
	cmd.Env = MergeEnv(c.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", action.NewError(action.ProcessSpawnFailure, err, "failed to start tool %q", c.Tool)
	}
	slog.Debug("One-shot tool started", "tool", c.Tool, "pid", cmd.Process.Pid)

	err := cmd.Wait()
	elapsed := time.Since(start)

	if runCtx.Err() != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			slog.Warn("One-shot tool timed out", "tool", c.Tool, "timeout", e.Timeout)
			return "", action.NewError(action.ProcessTimeout, nil, "tool %q timed out after %s", c.Tool, e.Timeout)
		}
		return "", action.NewError(action.ProcessTimeout, runCtx.Err(), "tool %q canceled", c.Tool)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			diag := strings.TrimSpace(stderr.String())
			if diag == "" {
				diag = strings.TrimSpace(stdout.String())
			}
			slog.Warn("One-shot tool failed", "tool", c.Tool, "exit_code", exitErr.ExitCode(), "elapsed", elapsed)
			return "", action.NewError(action.ProcessExitFailure, nil, "tool %q exited with code %d: %s",
				c.Tool, exitErr.ExitCode(), action.Truncate(diag, action.MaxDiagnosticLen))
		}
		return "", action.NewError(action.ProcessExitFailure, err, "tool %q failed", c.Tool)
	}

	slog.Debug("One-shot tool finished", "tool", c.Tool, "elapsed", elapsed, "stdout_bytes", stdout.Len())
	return stdout.String(), nil
}

// MergeEnv returns the bridge environment with extra appended.
func MergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
