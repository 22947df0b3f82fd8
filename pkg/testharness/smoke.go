package testharness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sparcflow/sparcflow/internal/config"
	"github.com/sparcflow/sparcflow/internal/protocol"
	"github.com/sparcflow/sparcflow/internal/resultlog"
)

// Scenario defines a deterministic smoke-test run of `sparcflow execute`
// against the fakemodel binary.
type Scenario struct {
	Name        string
	TaskID      string
	Description string
	Args        []string
	// ModelEnv drives fakemodel (FAKEMODEL_FILES, FAKEMODEL_EXIT_CODE, ...).
	ModelEnv map[string]string
}

var (
	// ScenarioDebugFix exercises the happy path: classification, artifact
	// reporting and inspection, and result recording.
	ScenarioDebugFix = Scenario{
		Name:        "debug-fix",
		TaskID:      "T-SMOKE-0001",
		Description: "Fix the login bug in the session handler",
		Args:        []string{"--type", "coding", "--role", "developer", "--inspect-artifacts"},
		ModelEnv: map[string]string{
			"FAKEMODEL_FILES": "auth/login.go,auth/login_test.go",
			"FAKEMODEL_WRITE": "1",
		},
	}
	// ScenarioModelFailure validates the soft-failure path of a non-zero exit.
	ScenarioModelFailure = Scenario{
		Name:        "model-failure",
		TaskID:      "T-SMOKE-FAIL",
		Description: "Write tests for the parser",
		ModelEnv: map[string]string{
			"FAKEMODEL_EXIT_CODE": "3",
			"FAKEMODEL_STDERR":    "model crashed",
		},
	}
)

// SmokeOptions configures RunSmoke.
type SmokeOptions struct {
	Scenario     Scenario
	Binaries     Binaries
	WorkspaceDir string
	Env          map[string]string
}

// SmokeResult captures the outcome of a smoke scenario.
type SmokeResult struct {
	Scenario   Scenario
	Workspace  string
	Stdout     string
	Stderr     string
	RunErr     error
	Result     *protocol.TaskResult
	Records    []protocol.ResultRecord
	ConfigPath string
}

// RunSmoke executes a smoke scenario using the provided binaries.
func RunSmoke(ctx context.Context, opts SmokeOptions) (*SmokeResult, error) {
	if opts.Binaries.Sparcflow == "" {
		return nil, fmt.Errorf("sparcflow binary path is required")
	}
	if opts.Binaries.FakeModel == "" {
		return nil, fmt.Errorf("fakemodel binary path is required")
	}
	if opts.Scenario.TaskID == "" {
		return nil, fmt.Errorf("scenario task ID is required")
	}

	workspace := opts.WorkspaceDir
	var err error
	if workspace == "" {
		workspace, err = os.MkdirTemp("", "sparcflow-smoke-")
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	} else if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	cfg := config.GenerateDefault()
	cfg.Binary = opts.Binaries.FakeModel
	cfg.ResultsDir = filepath.Join(workspace, "results")
	cfg.Env = opts.Scenario.ModelEnv

	configPath := filepath.Join(workspace, "sparcflow-smoke.yaml")
	if err := cfg.SaveToFile(configPath); err != nil {
		return nil, err
	}

	resultPath := filepath.Join(workspace, "result.json")
	args := []string{"execute", "--config", configPath,
		"--id", opts.Scenario.TaskID,
		"--target-dir", workspace,
		"--output", resultPath,
	}
	args = append(args, opts.Scenario.Args...)
	args = append(args, opts.Scenario.Description)

	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}

	cmd := exec.CommandContext(ctx, opts.Binaries.Sparcflow, args...)
	cmd.Dir = workspace
	cmd.Stdout = stdOut
	cmd.Stderr = stdErr
	cmd.Env = mergeEnv(os.Environ(), opts.Env)

	runErr := cmd.Run()

	result := &SmokeResult{
		Scenario:   opts.Scenario,
		Workspace:  workspace,
		Stdout:     stdOut.String(),
		Stderr:     stdErr.String(),
		RunErr:     runErr,
		ConfigPath: configPath,
	}

	if data, err := os.ReadFile(resultPath); err == nil {
		var tr protocol.TaskResult
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", resultPath, err)
		}
		result.Result = &tr
	}

	logs, err := filepath.Glob(filepath.Join(cfg.ResultsDir, "*.ndjson"))
	if err != nil {
		return nil, err
	}
	for _, path := range logs {
		records, err := resultlog.ReadAll(path)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, records...)
	}

	return result, nil
}

// DetectRepoRoot locates the repository root by searching for go.mod.
func DetectRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found (starting from %s)", dir)
		}
		dir = parent
	}
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	result := append([]string{}, base...)
	for k, v := range overrides {
		result = setEnv(result, k, v)
	}
	return result
}
