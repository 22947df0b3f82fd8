// Package runner runs the model binary as a child process under a deadline
// and captures its output.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/sparcflow/sparcflow/internal/artifacts"
)

// DefaultWaitDelay is how long a real process may keep its output pipes
// open after exiting.
const DefaultWaitDelay = 5 * time.Second

// Interpreter consumes stdout chunks as they arrive and returns the artifact
// paths first seen in each chunk.
type Interpreter interface {
	OnChunk(chunk string) []string
}

// Spec describes one process invocation.
type Spec struct {
	Binary string
	Args   []string
	Env    Environment
	Dir    string
	// Timeout is the deadline measured from spawn. Zero or negative
	// disables the deadline.
	Timeout time.Duration
	// Interpreter receives every stdout chunk. Defaults to an
	// artifacts.Scanner.
	Interpreter Interpreter
	// Tee, when set, receives a copy of every stdout chunk.
	Tee io.Writer
}

// Outcome is the result of a process that exited on its own.
type Outcome struct {
	Stdout string
	Stderr string
	// ExitCode is nil when the process was killed by a signal.
	ExitCode *int
	// Signal names the signal that killed the process, if any.
	Signal    string
	Artifacts []string
	// Error is set when the process exited non-zero or was killed: stderr,
	// or a generic message when stderr was empty.
	Error string
	State State
	Pid   int
}

// Succeeded reports whether the process exited 0.
func (o *Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Runner spawns processes. The zero value uses os/exec and the wall clock.
// A Runner holds no per-run state and is safe for concurrent use.
type Runner struct {
	Launcher Launcher
	Clock    Clock
	Logger   *slog.Logger
}

// New returns a Runner backed by os/exec.
func New(logger *slog.Logger) *Runner {
	return &Runner{
		Launcher: ExecLauncher{WaitDelay: DefaultWaitDelay},
		Clock:    realClock{},
		Logger:   logger,
	}
}

type exitResult struct {
	status ExitStatus
	err    error
}

// Run starts the process described by spec and blocks until it exits, the
// deadline fires, or ctx is done.
//
// A failure to start returns *SpawnError. When the deadline fires the
// process receives a single SIGTERM and Run returns *TimeoutError without
// waiting for it to exit; cancellation of ctx is handled the same way and
// returns the context error. Non-zero exits are not errors: they produce an
// Outcome in StateFailed with Error populated.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Outcome, error) {
	logger := r.logger()
	lc := newLifecycle()

	interp := spec.Interpreter
	if interp == nil {
		interp = artifacts.NewScanner()
	}

	stdout := &stdoutCapture{interp: interp, tee: spec.Tee, logger: logger}
	stderr := &lockedBuffer{}

	proc := r.launcher().Launch(spec, stdout, stderr)
	if err := proc.Start(); err != nil {
		lc.fire(EventSpawnFailed)
		logger.Error("failed to start model process", "binary", spec.Binary, "error", err)
		return nil, &SpawnError{Binary: spec.Binary, Err: err}
	}
	lc.fire(EventStarted)

	pid := proc.Pid()
	logger.Debug("model process started", "binary", spec.Binary, "pid", pid, "timeout", spec.Timeout)

	exited := make(chan exitResult, 1)
	go func() {
		status, err := proc.Wait()
		exited <- exitResult{status: status, err: err}
	}()

	var (
		deadline <-chan struct{}
		timer    Timer
	)
	if spec.Timeout > 0 {
		fired := make(chan struct{})
		timer = r.clock().AfterFunc(spec.Timeout, func() { close(fired) })
		deadline = fired
	}

	select {
	case res := <-exited:
		if timer != nil {
			timer.Stop()
		}
		return r.finish(lc, spec, pid, res, stdout, stderr)

	case <-deadline:
		lc.fire(EventTimerFired)
		logger.Warn("model process timed out, sending SIGTERM", "binary", spec.Binary, "pid", pid, "timeout", spec.Timeout)
		r.terminate(proc, pid)
		return nil, &TimeoutError{Binary: spec.Binary, Timeout: spec.Timeout}

	case <-ctx.Done():
		if timer != nil {
			timer.Stop()
		}
		lc.fire(EventCancelled)
		logger.Warn("model process cancelled, sending SIGTERM", "binary", spec.Binary, "pid", pid)
		r.terminate(proc, pid)
		return nil, fmt.Errorf("run %s: %w", spec.Binary, ctx.Err())
	}
}

func (r *Runner) finish(lc *lifecycle, spec Spec, pid int, res exitResult, stdout *stdoutCapture, stderr *lockedBuffer) (*Outcome, error) {
	if res.err != nil {
		lc.fire(EventExitedFailure)
		return nil, fmt.Errorf("wait for %s: %w", spec.Binary, res.err)
	}

	out := &Outcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Artifacts: stdout.Artifacts(),
		Pid:       pid,
	}

	status := res.status
	if status.Signaled() {
		out.Signal = status.Signal.String()
		out.State, _ = lc.fire(EventExitedFailure)
		out.Error = out.Stderr
		if out.Error == "" {
			out.Error = fmt.Sprintf("Command terminated by signal: %s", out.Signal)
		}
		r.logger().Warn("model process killed by signal", "binary", spec.Binary, "pid", pid, "signal", out.Signal)
		return out, nil
	}

	code := status.Code
	out.ExitCode = &code

	if code == 0 {
		out.State, _ = lc.fire(EventExited)
		r.logger().Debug("model process exited", "binary", spec.Binary, "pid", pid, "artifacts", len(out.Artifacts))
		return out, nil
	}

	out.State, _ = lc.fire(EventExitedFailure)
	out.Error = out.Stderr
	if out.Error == "" {
		out.Error = fmt.Sprintf("Command exited with code %d", code)
	}
	r.logger().Warn("model process exited with error", "binary", spec.Binary, "pid", pid, "exit_code", code)
	return out, nil
}

func (r *Runner) terminate(proc Process, pid int) {
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		r.logger().Warn("failed to signal model process", "pid", pid, "error", err)
	}
}

func (r *Runner) launcher() Launcher {
	if r.Launcher == nil {
		return ExecLauncher{WaitDelay: DefaultWaitDelay}
	}
	return r.Launcher
}

func (r *Runner) clock() Clock {
	if r.Clock == nil {
		return realClock{}
	}
	return r.Clock
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

// stdoutCapture appends every chunk to the captured output and forwards it to
// the interpreter before the write returns.
type stdoutCapture struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	artifacts []string
	interp    Interpreter
	tee       io.Writer
	logger    *slog.Logger
	teeFailed bool
}

func (c *stdoutCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	if added := c.interp.OnChunk(string(p)); len(added) > 0 {
		c.artifacts = append(c.artifacts, added...)
	}
	if c.tee != nil && !c.teeFailed {
		// A broken tee stops the copy but never the capture.
		if _, err := c.tee.Write(p); err != nil {
			c.teeFailed = true
			c.logger.Warn("stopped streaming model output", "error", err)
		}
	}
	return len(p), nil
}

func (c *stdoutCapture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *stdoutCapture) Artifacts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.artifacts...)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
