package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sparcflow/sparcflow/internal/config"
	"github.com/sparcflow/sparcflow/internal/executor"
	"github.com/sparcflow/sparcflow/internal/metrics"
	"github.com/sparcflow/sparcflow/internal/sparc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// baseEnv overrides os.Environ() for spawned processes; tests set it.
	baseEnv []string
}

// NewRootCmd builds the sparcflow command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{v: viper.New()})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sparcflow",
		Short: "Run development tasks through a local Ollama model",
		Long: `sparcflow classifies a development task into a SPARC mode, renders a
mode-specific prompt and runs it through a local model with 'ollama run'.

Files the model reports with "Created file: <path>" lines are collected as
artifacts, and every result is appended to an NDJSON results log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to sparcflow.json or sparcflow.yaml (default: ./sparcflow.* or ~/.sparcflow/sparcflow.*)")
	flags.StringP("model", "m", "", "Model passed to 'ollama run' (default gemma3n:e2b)")
	flags.String("host", "", "Ollama endpoint exported as OLLAMA_HOST (default localhost:11434)")
	flags.String("binary", "", "Model runner binary (default ollama)")
	flags.Int("timeout", 0, "Deadline per task in minutes (default 59)")
	flags.BoolP("verbose", "v", false, "Debug logging and stream model output to stderr")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("results-dir", "", "Directory for NDJSON results logs (empty disables)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464")

	for key, name := range map[string]string{
		"model":           "model",
		"host":            "host",
		"binary":          "binary",
		"timeout_minutes": "timeout",
		"verbose":         "verbose",
		"log_level":       "log-level",
		"results_dir":     "results-dir",
		"metrics_addr":    "metrics-addr",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(newExecuteCmd(a))
	rootCmd.AddCommand(newOllamaCmd(a))
	rootCmd.AddCommand(newReportCmd(a))
	rootCmd.AddCommand(newModesCmd())
	rootCmd.AddCommand(newConfigCmd(a))

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) init(cmd *cobra.Command) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := config.Load(a.v, configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.Verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("loaded configuration", "path", used)
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.MustNewMetrics(a.registry)
	if cfg.MetricsAddr != "" {
		a.serveMetrics(cmd.Context(), cfg.MetricsAddr)
	}
	return nil
}

func (a *app) serveMetrics(ctx context.Context, addr string) {
	if ctx == nil {
		ctx = context.Background()
	}
	a.logger.Info("serving metrics", "addr", addr)
	go func() {
		if err := metrics.Serve(ctx, addr, a.registry); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
}

// executorOptions are the per-command knobs layered over the configuration.
type executorOptions struct {
	extraEnv map[string]string
	mode     *sparc.Mode
	dir      string
	stream   io.Writer
}

func (a *app) newExecutor(opts executorOptions) *executor.Executor {
	extra := make(map[string]string, len(a.cfg.Env)+len(opts.extraEnv))
	for k, v := range a.cfg.Env {
		extra[k] = v
	}
	for k, v := range opts.extraEnv {
		extra[k] = v
	}

	return executor.New(executor.Config{
		Binary:         a.cfg.Binary,
		Model:          a.cfg.Model,
		Host:           a.cfg.Host,
		Verbose:        a.cfg.Verbose,
		TimeoutMinutes: a.cfg.TimeoutMinutes,
		ExtraEnv:       extra,
		BaseEnv:        a.baseEnv,
		Dir:            opts.dir,
		ModeOverride:   opts.mode,
		Logger:         a.logger,
		Metrics:        a.metrics,
		Stream:         opts.stream,
	})
}

// stream returns where model stdout is teed in verbose mode.
func (a *app) stream(cmd *cobra.Command) io.Writer {
	if a.cfg.Verbose {
		return cmd.ErrOrStderr()
	}
	return nil
}

func workingDir() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func printKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %-12s %v\n", key+":", value)
}
