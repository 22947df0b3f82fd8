package testharness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Binaries are the compiled executables a smoke scenario drives.
type Binaries struct {
	Sparcflow string
	FakeModel string
}

// BuildBinaries compiles the sparcflow and fakemodel binaries into outputDir.
func BuildBinaries(ctx context.Context, projectRoot, outputDir string) (Binaries, error) {
	if projectRoot == "" {
		return Binaries{}, fmt.Errorf("project root is required")
	}
	if outputDir == "" {
		return Binaries{}, fmt.Errorf("output directory is required")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Binaries{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	bins := Binaries{
		Sparcflow: filepath.Join(outputDir, "sparcflow"),
		FakeModel: filepath.Join(outputDir, "fakemodel"),
	}
	if err := runGoBuild(ctx, projectRoot, bins.Sparcflow, "./cmd/sparcflow"); err != nil {
		return Binaries{}, err
	}
	if err := runGoBuild(ctx, projectRoot, bins.FakeModel, "./cmd/fakemodel"); err != nil {
		return Binaries{}, err
	}
	return bins, nil
}

func runGoBuild(ctx context.Context, projectRoot, outputPath, pkg string) error {
	cmd := exec.CommandContext(ctx, "go", "build", "-trimpath", "-o", outputPath, pkg)
	cmd.Dir = projectRoot

	env := os.Environ()
	env = setEnv(env, "CGO_ENABLED", "0")
	env = setEnv(env, "GOFLAGS", "-trimpath")
	cmd.Env = env

	if combined, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("go build %s failed: %w\n%s", pkg, err, string(combined))
	}
	return nil
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
