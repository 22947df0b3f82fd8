package fsutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteCreatesNestedFileWithPerm(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "result.txt")

	require.NoError(t, AtomicWrite(path, []byte("hello"), 0o600))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestAtomicWriteOverwritesWithoutLeavingTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.txt")

	for i := 0; i < 5; i++ {
		require.NoError(t, AtomicWrite(path, []byte{byte('a' + i)}, 0o644))
	}

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "e", string(content))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.txt", entries[0].Name())
}

func TestAtomicWriteConcurrentWriters(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "shared.json")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- AtomicWriteJSON(path, map[string]int{"writer": n})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var decoded map[string]int
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded), "file must always hold one complete document")
}

func TestAtomicWriteJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "result.json")

	require.NoError(t, AtomicWriteJSON(path, struct {
		Name string `json:"name"`
	}{Name: "stack"}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"stack\"\n}\n", string(content))

	assert.Error(t, AtomicWriteJSON(filepath.Join(tmpDir, "nil.json"), nil))
}

func TestResolveWorkspacePath(t *testing.T) {
	workspace := t.TempDir()
	root, err := filepath.EvalSymlinks(workspace)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(workspace, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "src", "main.go"), []byte("package main\n"), 0o644))

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr string
	}{
		{name: "relative existing", path: "src/main.go", want: filepath.Join(root, "src", "main.go")},
		{name: "relative missing", path: "src/new.go", want: filepath.Join(root, "src", "new.go")},
		{name: "absolute inside", path: filepath.Join(workspace, "src", "main.go"), want: filepath.Join(root, "src", "main.go")},
		{name: "dot dot escape", path: "../outside.txt", wantErr: "escapes workspace"},
		{name: "absolute outside", path: "/etc/passwd", wantErr: "escapes workspace"},
		{name: "dotted name stays inside", path: "..hidden", want: filepath.Join(root, "..hidden")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveWorkspacePath(workspace, tc.path)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveWorkspacePathSymlinkEscape(t *testing.T) {
	workspace := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o600))

	link := filepath.Join(workspace, "link.txt")
	if err := os.Symlink(filepath.Join(outside, "secret.txt"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	_, err := ResolveWorkspacePath(workspace, "link.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symlink escapes workspace")
}
