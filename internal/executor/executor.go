// Package executor turns a task into a single model invocation and a
// TaskResult.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sparcflow/sparcflow/internal/checksum"
	"github.com/sparcflow/sparcflow/internal/metrics"
	"github.com/sparcflow/sparcflow/internal/protocol"
	"github.com/sparcflow/sparcflow/internal/runner"
	"github.com/sparcflow/sparcflow/internal/sparc"
)

const (
	DefaultBinary         = "ollama"
	DefaultModel          = "gemma3n:e2b"
	DefaultHost           = "localhost:11434"
	DefaultTimeoutMinutes = 59

	// Scores reported for every result that carries no error.
	SuccessQuality      = 0.95
	SuccessCompleteness = 0.90
)

// Environment keys set on every model process.
const (
	EnvHost           = "OLLAMA_HOST"
	EnvNonInteractive = "GEMMA_FLOW_NON_INTERACTIVE"
	EnvAutoConfirm    = "GEMMA_FLOW_AUTO_CONFIRM"
)

// ProcessRunner runs one model process. *runner.Runner implements it.
type ProcessRunner interface {
	Run(ctx context.Context, spec runner.Spec) (*runner.Outcome, error)
}

// Config is supplied once at construction time.
type Config struct {
	Binary         string
	Model          string
	Host           string
	Verbose        bool
	TimeoutMinutes int

	// ExtraEnv is overlaid on every spawned process after the fixed keys.
	ExtraEnv map[string]string
	// BaseEnv replaces the parent environment as the base of the overlay.
	// Nil means os.Environ().
	BaseEnv []string
	// Dir is the working directory of the model process.
	Dir string

	// ModeOverride, when valid, skips classification.
	ModeOverride *sparc.Mode

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Runner  ProcessRunner
	// Stream receives model stdout as it arrives. When nil and Verbose is
	// set, stdout is streamed to os.Stderr.
	Stream io.Writer
}

// Executor is safe for concurrent use. Every ExecuteTask call builds its own
// environment and owns its own child process.
type Executor struct {
	cfg     Config
	runner  ProcessRunner
	logger  *slog.Logger
	metrics *metrics.Metrics
	baseEnv runner.Environment
	stream  io.Writer

	render func(sparc.Mode, protocol.TaskDefinition, string) sparc.Prompt
	now    func() time.Time
}

// New applies defaults to cfg and returns an Executor.
func New(cfg Config) *Executor {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.TimeoutMinutes <= 0 {
		cfg.TimeoutMinutes = DefaultTimeoutMinutes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	base := cfg.BaseEnv
	if base == nil {
		base = os.Environ()
	}

	r := cfg.Runner
	if r == nil {
		r = runner.New(logger)
	}

	stream := cfg.Stream
	if stream == nil && cfg.Verbose {
		stream = os.Stderr
	}

	return &Executor{
		cfg:     cfg,
		runner:  r,
		logger:  logger,
		metrics: cfg.Metrics,
		baseEnv: runner.NewEnvironment(base, nil),
		stream:  stream,
		render:  sparc.Render,
		now:     time.Now,
	}
}

// Model returns the model identifier passed to the binary.
func (e *Executor) Model() string { return e.cfg.Model }

// Invocation is everything needed to spawn the model for one task.
type Invocation struct {
	Mode    sparc.Mode
	Prompt  sparc.Prompt
	Args    []string
	Overlay map[string]string
	Timeout time.Duration
}

// Command renders the invocation as a single shell-style command line. The
// prompt is already quote-escaped, so wrapping it in double quotes is safe.
func (inv Invocation) Command(binary string) string {
	return fmt.Sprintf("%s %s %s \"%s\"", binary, inv.Args[0], inv.Args[1], inv.Prompt)
}

// Plan classifies and renders task without spawning anything. extraEnv is
// applied after the executor's own ExtraEnv.
func (e *Executor) Plan(task protocol.TaskDefinition, agent protocol.AgentState, targetDir string, extraEnv map[string]string) Invocation {
	return e.plan(e.mode(task, agent), task, targetDir, extraEnv)
}

func (e *Executor) plan(mode sparc.Mode, task protocol.TaskDefinition, targetDir string, extraEnv map[string]string) Invocation {
	prompt := e.render(mode, task, resolveTargetDir(task, targetDir))
	return Invocation{
		Mode:    mode,
		Prompt:  prompt,
		Args:    []string{"run", e.cfg.Model, prompt.String()},
		Overlay: e.overlay(extraEnv),
		Timeout: time.Duration(e.cfg.TimeoutMinutes) * time.Minute,
	}
}

// ExecuteTask runs task and always returns a result. Failures are reported
// through TaskResult.Error with zeroed scores; ExecuteTask never returns an
// error and never panics. An empty targetDir falls back to the task's
// context hint.
func (e *Executor) ExecuteTask(ctx context.Context, task protocol.TaskDefinition, agent protocol.AgentState, targetDir string) protocol.TaskResult {
	return e.ExecuteTaskWithEnv(ctx, task, agent, targetDir, nil)
}

// ExecuteTaskWithEnv is ExecuteTask with extra environment variables for
// this invocation only.
func (e *Executor) ExecuteTaskWithEnv(ctx context.Context, task protocol.TaskDefinition, agent protocol.AgentState, targetDir string, extraEnv map[string]string) (result protocol.TaskResult) {
	start := e.now()
	meta := protocol.ResultMetadata{Model: e.cfg.Model}
	status := metrics.StatusPanic
	artifactCount := 0

	logger := e.logger.With("task_id", task.ID)
	logger.Info("executing task", "task_name", task.Name, "agent_type", agent.Type, "model", e.cfg.Model, "target_dir", targetDir)

	e.metrics.IncActive()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task execution panicked", "panic", r)
			result = failure(meta, e.now().Sub(start), fmt.Sprintf("internal error: %v", r))
			status = metrics.StatusPanic
		}
		mode := meta.SparcMode
		if mode == "" {
			mode = "unknown"
		}
		e.metrics.DecActive()
		e.metrics.ObserveExecution(mode, status, result.Metadata.ExecutionTime, artifactCount)
	}()

	mode := e.mode(task, agent)
	meta.SparcMode = mode.String()
	inv := e.plan(mode, task, targetDir, extraEnv)
	meta.Command = inv.Command(e.cfg.Binary)
	meta.PromptSHA256 = checksum.SHA256String(inv.Prompt.String())
	logger = logger.With("mode", meta.SparcMode)
	logger.Info("running model", "command", meta.Command)

	out, err := e.runner.Run(ctx, runner.Spec{
		Binary:  e.cfg.Binary,
		Args:    inv.Args,
		Env:     e.baseEnv.With(inv.Overlay),
		Dir:     e.cfg.Dir,
		Timeout: inv.Timeout,
		Tee:     e.stream,
	})
	if err != nil {
		status = statusFor(err)
		logger.Error("task execution failed", "error", err)
		return failure(meta, e.now().Sub(start), err.Error())
	}

	if out.ExitCode != nil {
		code := *out.ExitCode
		meta.ExitCode = &code
	}
	meta.ExecutionTime = e.now().Sub(start)
	artifactCount = len(out.Artifacts)

	result = protocol.TaskResult{
		Output:    out.Stdout,
		Artifacts: out.Artifacts,
		Metadata:  meta,
	}
	if !out.Succeeded() {
		status = metrics.StatusSoftFailure
		result.Error = out.Error
		if meta.ExitCode != nil {
			logger.Warn("model exited with error", "exit_code", *meta.ExitCode)
		} else {
			logger.Warn("model killed by signal", "signal", out.Signal)
		}
		return result
	}

	status = metrics.StatusSuccess
	result.Metadata.Quality = SuccessQuality
	result.Metadata.Completeness = SuccessCompleteness
	logger.Info("task completed", "artifacts", artifactCount, "duration", meta.ExecutionTime)
	return result
}

func (e *Executor) mode(task protocol.TaskDefinition, agent protocol.AgentState) sparc.Mode {
	if e.cfg.ModeOverride != nil && e.cfg.ModeOverride.Valid() {
		return *e.cfg.ModeOverride
	}
	return sparc.Classify(task, agent)
}

// overlay builds a fresh map for one invocation. Later layers win.
func (e *Executor) overlay(extra map[string]string) map[string]string {
	env := map[string]string{
		EnvHost:           e.cfg.Host,
		EnvNonInteractive: "true",
		EnvAutoConfirm:    "true",
	}
	for k, v := range e.cfg.ExtraEnv {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

// OverlayKeys lists an overlay's keys in sorted order.
func OverlayKeys(overlay map[string]string) []string {
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolveTargetDir(task protocol.TaskDefinition, targetDir string) string {
	if strings.TrimSpace(targetDir) != "" {
		return targetDir
	}
	return task.Context.TargetDir
}

func failure(meta protocol.ResultMetadata, elapsed time.Duration, msg string) protocol.TaskResult {
	meta.ExecutionTime = elapsed
	meta.ExitCode = nil
	meta.Quality = 0
	meta.Completeness = 0
	if msg == "" {
		msg = "task execution failed"
	}
	return protocol.TaskResult{
		Output:    "",
		Artifacts: []string{},
		Metadata:  meta,
		Error:     msg,
	}
}

func statusFor(err error) string {
	var spawnErr *runner.SpawnError
	var timeoutErr *runner.TimeoutError
	switch {
	case errors.As(err, &spawnErr):
		return metrics.StatusSpawnError
	case errors.As(err, &timeoutErr):
		return metrics.StatusTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.StatusCanceled
	default:
		return metrics.StatusSoftFailure
	}
}
