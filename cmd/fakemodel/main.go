// Command fakemodel stands in for `ollama run <model> <prompt>` in smoke
// tests. Its behaviour is driven by environment variables:
//
//	FAKEMODEL_FILES      comma-separated paths reported as "Created file:" lines
//	FAKEMODEL_WRITE      when "1", also write each reported file under the cwd
//	FAKEMODEL_STDERR     text written to stderr
//	FAKEMODEL_EXIT_CODE  exit status (default 0)
//	FAKEMODEL_SLEEP      duration to wait before answering, e.g. 2s
//	FAKEMODEL_LOG_LEVEL  diagnostics level (default warn)
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sparcflow/sparcflow/internal/artifacts"
	"github.com/sparcflow/sparcflow/internal/checksum"
	"github.com/sparcflow/sparcflow/internal/fsutil"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(getenv("FAKEMODEL_LOG_LEVEL"))); err != nil {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if len(args) != 3 || args[0] != "run" {
		fmt.Fprintln(stderr, "usage: fakemodel run <model> <prompt>")
		return 2
	}
	model, prompt := args[1], args[2]

	exitCode := 0
	if raw := strings.TrimSpace(getenv("FAKEMODEL_EXIT_CODE")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fmt.Fprintf(stderr, "invalid FAKEMODEL_EXIT_CODE %q: %v\n", raw, err)
			return 2
		}
		exitCode = n
	}

	if raw := strings.TrimSpace(getenv("FAKEMODEL_SLEEP")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(stderr, "invalid FAKEMODEL_SLEEP %q: %v\n", raw, err)
			return 2
		}
		logger.Debug("sleeping", "duration", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			logger.Warn("interrupted", "error", ctx.Err())
			return 130
		}
	}

	fmt.Fprintf(stdout, "[%s] %s\n", model, firstLine(prompt))
	fmt.Fprintf(stdout, "prompt sha256 %s (%d bytes)\n", checksum.SHA256String(prompt), len(prompt))
	if host := getenv("OLLAMA_HOST"); host != "" {
		fmt.Fprintf(stdout, "host %s\n", host)
	}

	write := getenv("FAKEMODEL_WRITE") == "1"
	for _, p := range splitList(getenv("FAKEMODEL_FILES")) {
		if write {
			if err := writeArtifact(p, prompt); err != nil {
				logger.Error("failed to write artifact", "path", p, "error", err)
				return 1
			}
		}
		fmt.Fprintf(stdout, "%s%s\n", artifacts.Marker, p)
	}

	if msg := getenv("FAKEMODEL_STDERR"); msg != "" {
		fmt.Fprintln(stderr, msg)
	}
	logger.Debug("answered", "model", model, "exit_code", exitCode)
	return exitCode
}

func writeArtifact(p, prompt string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := fsutil.ResolveWorkspacePath(cwd, p)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("// generated by fakemodel\n// %s\n", firstLine(prompt))
	return fsutil.AtomicWrite(path, []byte(content), 0o644)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
