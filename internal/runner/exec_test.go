package runner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes an executable shell script standing in for the model
// binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ollama")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecRunSuccess(t *testing.T) {
	bin := writeScript(t, `echo "model=$2"
echo "host=$OLLAMA_HOST"
echo "Created file: src/app.go"
echo "Created file: src/app_test.go"
`)

	r := New(nil)
	env := NewEnvironment(os.Environ(), map[string]string{"OLLAMA_HOST": "localhost:11434"})
	out, err := r.Run(context.Background(), Spec{
		Binary:  bin,
		Args:    []string{"run", "gemma3n:e2b", `say "hi"`},
		Env:     env,
		Timeout: 30 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "model=gemma3n:e2b\nhost=localhost:11434\nCreated file: src/app.go\nCreated file: src/app_test.go\n", out.Stdout)
	assert.Equal(t, []string{"src/app.go", "src/app_test.go"}, out.Artifacts)
	assert.Equal(t, StateSucceeded, out.State)
	assert.Empty(t, out.Error)
}

func TestExecRunNonZeroExit(t *testing.T) {
	bin := writeScript(t, `echo "pulling manifest"
echo "Error: model 'nope' not found" >&2
exit 1
`)

	out, err := New(nil).Run(context.Background(), Spec{Binary: bin, Timeout: 30 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	require.NotNil(t, out.ExitCode)
	assert.Equal(t, 1, *out.ExitCode)
	assert.Equal(t, "pulling manifest\n", out.Stdout)
	assert.Equal(t, "Error: model 'nope' not found\n", out.Error)
}

func TestExecRunSilentNonZeroExit(t *testing.T) {
	bin := writeScript(t, "exit 7\n")

	out, err := New(nil).Run(context.Background(), Spec{Binary: bin, Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "Command exited with code 7", out.Error)
}

func TestExecRunKilledBySignal(t *testing.T) {
	bin := writeScript(t, "echo hi\nkill -KILL $$\n")

	out, err := New(nil).Run(context.Background(), Spec{Binary: bin, Timeout: 30 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Nil(t, out.ExitCode)
	assert.Equal(t, "killed", out.Signal)
	assert.Equal(t, "hi\n", out.Stdout)
	assert.Equal(t, "Command terminated by signal: killed", out.Error)
}

func TestExecRunMissingBinary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-ollama")

	out, err := New(nil).Run(context.Background(), Spec{Binary: missing, Timeout: 30 * time.Second})
	assert.Nil(t, out)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestExecRunTimeout(t *testing.T) {
	bin := writeScript(t, "echo started\nexec sleep 30\n")

	start := time.Now()
	out, err := New(nil).Run(context.Background(), Spec{Binary: bin, Timeout: 200 * time.Millisecond})
	assert.Nil(t, out)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecRunEnvironmentIsolation(t *testing.T) {
	bin := writeScript(t, `printf "%s" "$GEMMA_FLOW_AUTO_CONFIRM"`)

	base := []string{"PATH=" + os.Getenv("PATH")}
	withFlag := NewEnvironment(base, map[string]string{"GEMMA_FLOW_AUTO_CONFIRM": "true"})
	without := NewEnvironment(base, nil)

	r := New(nil)
	out, err := r.Run(context.Background(), Spec{Binary: bin, Env: withFlag, Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "true", out.Stdout)

	out, err = r.Run(context.Background(), Spec{Binary: bin, Env: without, Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Empty(t, out.Stdout)
}
