package artifacts

import (
	"fmt"

	"github.com/sparcflow/sparcflow/internal/checksum"
	"github.com/sparcflow/sparcflow/internal/fsutil"
	"github.com/sparcflow/sparcflow/internal/protocol"
)

// Inspect looks up each reported path inside workspace and records its size
// and digest. Paths that escape the workspace or do not exist are returned as
// errors alongside the artifacts that could be inspected.
func Inspect(workspace string, paths []string) ([]protocol.Artifact, []error) {
	var (
		found []protocol.Artifact
		errs  []error
	)
	for _, p := range paths {
		full, err := fsutil.ResolveWorkspacePath(workspace, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("artifact %s: %w", p, err))
			continue
		}
		sum, size, err := checksum.SHA256File(full)
		if err != nil {
			errs = append(errs, fmt.Errorf("artifact %s: %w", p, err))
			continue
		}
		found = append(found, protocol.Artifact{Path: p, SHA256: sum, Size: size})
	}
	return found, errs
}
