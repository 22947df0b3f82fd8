package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sparcflow/sparcflow/internal/artifacts"
	"github.com/sparcflow/sparcflow/internal/executor"
	"github.com/sparcflow/sparcflow/internal/fsutil"
	"github.com/sparcflow/sparcflow/internal/protocol"
	"github.com/sparcflow/sparcflow/internal/resultlog"
	"github.com/sparcflow/sparcflow/internal/sparc"
	"github.com/sparcflow/sparcflow/internal/workflow"
	"github.com/spf13/cobra"
)

func newExecuteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <description>",
		Short: "Run one task through the model",
		Long: `Run one development task through the model.

The execution mode is picked from keywords in the description ("design",
"security", "bug", "test", "document", "integrate"), then the agent role,
then the task type. Use --mode to force one.`,
		Example: `  sparcflow execute "Fix the login bug" --type coding --role developer
  sparcflow execute "Add pagination" --target-dir web --inspect-artifacts
  sparcflow execute "Harden the upload handler" --mode security-review --dry-run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExecute(cmd, args)
		},
	}

	flags := cmd.Flags()
	flags.String("id", "", "Task identifier (default: generated)")
	flags.String("name", "", "Task display name (default: the id)")
	flags.String("instructions", "", "Additional instructions appended to the description")
	flags.String("type", "", "Task category (coding, testing, analysis, documentation, research, review, deployment, optimization, integration)")
	flags.String("role", "", "Agent role (developer, tester, analyzer, documenter, reviewer, researcher, coordinator)")
	flags.String("target-dir", "", "Directory the task is about; also the model's working directory")
	flags.String("mode", "", "Force an execution mode instead of classifying")
	flags.StringP("output", "o", "", "Also write the result as JSON to this file")
	flags.Bool("inspect-artifacts", false, "Hash and size every reported artifact")
	flags.Bool("dry-run", false, "Print the invocation without running it")

	return cmd
}

func (a *app) runExecute(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	id, _ := flags.GetString("id")
	name, _ := flags.GetString("name")
	instructions, _ := flags.GetString("instructions")
	taskType, _ := flags.GetString("type")
	role, _ := flags.GetString("role")
	targetDir, _ := flags.GetString("target-dir")
	modeName, _ := flags.GetString("mode")
	outputPath, _ := flags.GetString("output")
	inspect, _ := flags.GetBool("inspect-artifacts")
	dryRun, _ := flags.GetBool("dry-run")

	if id == "" {
		id = workflow.NewTaskID()
	}
	if name == "" {
		name = id
	}

	task := protocol.TaskDefinition{
		ID:           id,
		Name:         name,
		Description:  strings.Join(args, " "),
		Instructions: instructions,
		Type:         protocol.TaskType(taskType),
		Context:      protocol.TaskContext{TargetDir: targetDir},
	}
	if err := task.Validate(); err != nil {
		return err
	}
	agent := protocol.AgentState{ID: "agent-" + id, Type: protocol.AgentType(role)}

	var override *sparc.Mode
	if modeName != "" {
		m, err := sparc.ParseMode(modeName)
		if err != nil {
			return err
		}
		override = &m
	}

	exec := a.newExecutor(executorOptions{mode: override, dir: targetDir, stream: a.stream(cmd)})
	out := cmd.OutOrStdout()

	if dryRun {
		printPlan(out, a.cfg.Binary, exec.Plan(task, agent, "", nil))
		return nil
	}

	result := exec.ExecuteTask(cmd.Context(), task, agent, "")

	if inspect && len(result.Artifacts) > 0 {
		workspace := targetDir
		if workspace == "" {
			workspace = workingDir()
		}
		inspected, errs := artifacts.Inspect(workspace, result.Artifacts)
		for _, err := range errs {
			a.logger.Warn("artifact inspection failed", "task_id", id, "error", err)
		}
		result.Inspected = inspected
	}

	if err := a.record(task, agent, result); err != nil {
		a.logger.Error("failed to record result", "task_id", id, "error", err)
	}
	if outputPath != "" {
		if err := fsutil.AtomicWriteJSON(outputPath, result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	printResult(out, a.cfg.Verbose, result)

	if result.Failed() {
		return fmt.Errorf("task %s failed: %s", id, strings.TrimSpace(result.Error))
	}
	return nil
}

// record appends result to a fresh results log. An empty results dir
// disables recording.
func (a *app) record(task protocol.TaskDefinition, agent protocol.AgentState, result protocol.TaskResult) error {
	if a.cfg.ResultsDir == "" {
		return nil
	}
	log, err := resultlog.Open(a.cfg.ResultsDir, resultlog.NewRunID(), a.logger)
	if err != nil {
		return err
	}
	defer log.Close()
	return log.Append(task, agent, result)
}

func printPlan(w io.Writer, binary string, inv executor.Invocation) {
	fmt.Fprintln(w, "DRY RUN - would execute:")
	fmt.Fprintln(w, inv.Command(binary))
	fmt.Fprintln(w)
	printKV(w, "Mode", inv.Mode)
	printKV(w, "Timeout", inv.Timeout)
	fmt.Fprintln(w, "  Environment:")
	for _, k := range executor.OverlayKeys(inv.Overlay) {
		fmt.Fprintf(w, "    %s=%s\n", k, inv.Overlay[k])
	}
}

// printResult writes the model output (unless it was already streamed) and
// a short summary.
func printResult(w io.Writer, streamed bool, result protocol.TaskResult) {
	if !streamed && result.Output != "" {
		fmt.Fprint(w, result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w)
	printKV(w, "Mode", orDash(result.Metadata.SparcMode))
	printKV(w, "Model", result.Metadata.Model)
	printKV(w, "Duration", result.Metadata.ExecutionTime.Round(time.Millisecond))
	if len(result.Artifacts) > 0 {
		fmt.Fprintln(w, "  Artifacts:")
		for _, p := range result.Artifacts {
			fmt.Fprintf(w, "    %s\n", filepath.ToSlash(p))
		}
	}
	if len(result.Inspected) > 0 {
		fmt.Fprintln(w, "  Inspected:")
		for _, art := range result.Inspected {
			fmt.Fprintf(w, "    %s %d bytes %s\n", art.Path, art.Size, art.SHA256)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
