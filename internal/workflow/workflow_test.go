package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sparcflow/sparcflow/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "release.yaml", `
name: release
parallel: true
concurrency: 2
tasks:
  - id: api
    description: Integrate the payments API
    agent: developer
    type: integration
    targetDir: services/payments
  - name: Write changelog
    type: documentation
`)

	wf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "release", wf.Name)
	assert.True(t, wf.Parallel)
	assert.Equal(t, 2, wf.Concurrency)
	require.Len(t, wf.Tasks, 2)

	def := wf.Tasks[0].Definition()
	assert.Equal(t, "api", def.ID)
	assert.Equal(t, protocol.TaskTypeIntegration, def.Type)
	assert.Equal(t, "services/payments", def.Context.TargetDir)
	assert.Equal(t, protocol.AgentTypeDeveloper, wf.Tasks[0].AgentState().Type)

	second := wf.Tasks[1]
	assert.Equal(t, "Write changelog", second.Description, "description falls back to name")
	assert.True(t, strings.HasPrefix(second.ID, "task-"))
	assert.Len(t, second.ID, len("task-")+8)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "nightly.json", `{
  "tasks": [
    {"id": "t1", "description": "Add tests for the parser", "instructions": "Use table tests"}
  ]
}`)

	wf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", wf.Name, "name defaults to the file name")
	assert.False(t, wf.Parallel)
	assert.Equal(t, "t1", wf.Tasks[0].Name)
	assert.Equal(t, "Use table tests", wf.Tasks[0].Definition().Instructions)
	assert.Equal(t, "agent-t1", wf.Tasks[0].AgentState().ID)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad json", "wf.json", "{", "failed to parse workflow"},
		{"bad yaml", "wf.yml", "tasks: [", "failed to parse workflow"},
		{"no tasks", "wf.json", `{"name": "empty"}`, "no tasks"},
		{"no description or name", "wf.json", `{"tasks": [{"id": "x"}]}`, "needs a description or a name"},
		{"duplicate ids", "wf.json", `{"tasks": [{"id": "x", "name": "a"}, {"id": "x", "name": "b"}]}`, "duplicate id"},
		{"negative concurrency", "wf.json", `{"concurrency": -1, "tasks": [{"name": "a"}]}`, "invalid concurrency"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
