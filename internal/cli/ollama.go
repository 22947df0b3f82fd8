package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sparcflow/sparcflow/internal/protocol"
	"github.com/sparcflow/sparcflow/internal/resultlog"
	"github.com/sparcflow/sparcflow/internal/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	devModes         = []string{"full", "backend-only", "frontend-only", "api-only"}
	commitFrequences = []string{"phase", "feature", "manual"}
)

// defaultTaskType is exported as OLLAMA_TASK_TYPE for untyped batch tasks.
const defaultTaskType = "general"

func newOllamaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ollama",
		Short: "Manage Ollama/Gemma instances",
	}
	cmd.AddCommand(newSpawnCmd(a))
	cmd.AddCommand(newBatchCmd(a))
	return cmd
}

func newSpawnCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spawn <task>",
		Short: "Spawn a model instance for one task",
		Long: `Spawn a model instance for one task with development settings exported
to the process as OLLAMA_INSTANCE_ID, OLLAMA_FLOW_MODE, OLLAMA_FLOW_COVERAGE,
OLLAMA_FLOW_COMMIT and OLLAMA_NUM_CTX.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSpawn(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.String("mode", "full", "Development mode ("+strings.Join(devModes, ", ")+")")
	flags.Int("coverage", 80, "Test coverage target in percent")
	flags.String("commit", "phase", "Commit frequency ("+strings.Join(commitFrequences, ", ")+")")
	flags.Int("context", 8192, "Context length exported as OLLAMA_NUM_CTX")
	flags.Bool("dry-run", false, "Print the invocation without running it")

	return cmd
}

func (a *app) runSpawn(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	devMode, _ := flags.GetString("mode")
	coverage, _ := flags.GetInt("coverage")
	commit, _ := flags.GetString("commit")
	numCtx, _ := flags.GetInt("context")
	dryRun, _ := flags.GetBool("dry-run")

	if !oneOf(devMode, devModes) {
		return fmt.Errorf("invalid --mode %q (valid: %s)", devMode, strings.Join(devModes, ", "))
	}
	if !oneOf(commit, commitFrequences) {
		return fmt.Errorf("invalid --commit %q (valid: %s)", commit, strings.Join(commitFrequences, ", "))
	}
	if coverage < 0 || coverage > 100 {
		return fmt.Errorf("invalid --coverage %d (must be between 0 and 100)", coverage)
	}
	if numCtx <= 0 {
		return fmt.Errorf("invalid --context %d (must be positive)", numCtx)
	}

	instanceID := newInstanceID()
	env := map[string]string{
		"OLLAMA_INSTANCE_ID":   instanceID,
		"OLLAMA_FLOW_MODE":     devMode,
		"OLLAMA_FLOW_COVERAGE": strconv.Itoa(coverage),
		"OLLAMA_FLOW_COMMIT":   commit,
		"OLLAMA_NUM_CTX":       strconv.Itoa(numCtx),
	}

	task := protocol.TaskDefinition{
		ID:          instanceID,
		Name:        "spawn",
		Description: strings.Join(args, " "),
	}
	if err := task.Validate(); err != nil {
		return err
	}
	agent := protocol.AgentState{ID: instanceID}

	out := cmd.OutOrStdout()
	exec := a.newExecutor(executorOptions{extraEnv: env, stream: a.stream(cmd)})

	if dryRun {
		printPlan(out, a.cfg.Binary, exec.Plan(task, agent, "", nil))
		fmt.Fprintln(out, "\nConfiguration:")
		printKV(out, "Instance ID", instanceID)
		printKV(out, "Model", a.cfg.Model)
		printKV(out, "Host", a.cfg.Host)
		printKV(out, "Mode", devMode)
		printKV(out, "Context", numCtx)
		printKV(out, "Coverage", fmt.Sprintf("%d%%", coverage))
		printKV(out, "Commit", commit)
		return nil
	}

	fmt.Fprintf(out, "Spawning model instance: %s\n", instanceID)
	result := exec.ExecuteTask(cmd.Context(), task, agent, "")
	if err := a.record(task, agent, result); err != nil {
		a.logger.Error("failed to record result", "task_id", instanceID, "error", err)
	}
	printResult(out, a.cfg.Verbose, result)

	if result.Failed() {
		return fmt.Errorf("instance %s failed: %s", instanceID, strings.TrimSpace(result.Error))
	}
	fmt.Fprintf(out, "Instance %s completed successfully\n", instanceID)
	return nil
}

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <workflow-file>",
		Short: "Run every task of a workflow file",
		Long: `Run every task of a JSON or YAML workflow file. Tasks run one after
another unless the workflow sets "parallel: true", in which case at most
"concurrency" tasks (default: the configured concurrency) run at once.

Each process receives OLLAMA_TASK_ID and OLLAMA_TASK_TYPE.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args[0])
		},
	}
	cmd.Flags().Bool("dry-run", false, "Print the invocation of every task without running them")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, path string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	wf, err := workflow.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loading workflow: %s\n", wf.Name)
	fmt.Fprintf(out, "Tasks: %d\n", len(wf.Tasks))

	exec := a.newExecutor(executorOptions{stream: a.stream(cmd)})

	if dryRun {
		for _, t := range wf.Tasks {
			fmt.Fprintf(out, "\nDRY RUN - Task: %s\n", t.Name)
			inv := exec.Plan(t.Definition(), t.AgentState(), "", batchEnv(t))
			fmt.Fprintln(out, inv.Command(a.cfg.Binary))
		}
		return nil
	}

	var log *resultlog.Log
	if a.cfg.ResultsDir != "" {
		log, err = resultlog.Open(a.cfg.ResultsDir, resultlog.NewRunID(), a.logger)
		if err != nil {
			return err
		}
		defer log.Close()
	}

	results := make([]protocol.TaskResult, len(wf.Tasks))
	run := func(i int) {
		t := wf.Tasks[i]
		def, agent := t.Definition(), t.AgentState()
		results[i] = exec.ExecuteTaskWithEnv(cmd.Context(), def, agent, "", batchEnv(t))
		if log != nil {
			if err := log.Append(def, agent, results[i]); err != nil {
				a.logger.Error("failed to record result", "task_id", t.ID, "error", err)
			}
		}
	}

	start := time.Now()
	if wf.Parallel {
		limit := wf.Concurrency
		if limit == 0 {
			limit = a.cfg.Concurrency
		}
		a.logger.Info("running workflow in parallel", "workflow", wf.Name, "tasks", len(wf.Tasks), "concurrency", limit)

		var g errgroup.Group
		g.SetLimit(limit)
		for i := range wf.Tasks {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range wf.Tasks {
			if err := cmd.Context().Err(); err != nil {
				return fmt.Errorf("workflow %s interrupted: %w", wf.Name, err)
			}
			fmt.Fprintf(out, "\nRunning task: %s\n", wf.Tasks[i].Name)
			run(i)
		}
	}

	failed := printBatchSummary(out, wf.Tasks, results)
	if log != nil {
		fmt.Fprintf(out, "Results: %s\n", log.Path())
	}
	a.logger.Info("workflow finished", "workflow", wf.Name, "failed", failed, "duration", time.Since(start))

	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, len(wf.Tasks))
	}
	return nil
}

func batchEnv(t workflow.Task) map[string]string {
	taskType := t.Type
	if taskType == "" {
		taskType = defaultTaskType
	}
	return map[string]string{
		"OLLAMA_TASK_ID":   t.ID,
		"OLLAMA_TASK_TYPE": taskType,
	}
}

func printBatchSummary(w io.Writer, tasks []workflow.Task, results []protocol.TaskResult) int {
	failed := 0
	fmt.Fprintln(w)
	for i, r := range results {
		status := "ok"
		if r.Failed() {
			status = "FAILED: " + firstLine(r.Error)
			failed++
		}
		fmt.Fprintf(w, "  %-20s %-30s %3d artifacts  %s\n", tasks[i].ID, orDash(r.Metadata.SparcMode), len(r.Artifacts), status)
	}
	return failed
}

func newInstanceID() string {
	return "gemma-" + uuid.NewString()[:8]
}

func oneOf(v string, options []string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
