// Package artifacts extracts the files a model run reports having created.
package artifacts

import (
	"regexp"
	"strings"
	"sync"
)

// Marker is the literal prefix the model prints for each file it creates.
const Marker = "Created file: "

var markerPattern = regexp.MustCompile(`Created file: (.+)`)

// Scanner accumulates artifact paths from a stream of stdout chunks.
//
// Matching is line-local to each chunk: a marker split across two chunks is
// not detected.
type Scanner struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	paths []string
}

// NewScanner returns an empty Scanner.
func NewScanner() *Scanner {
	return &Scanner{seen: make(map[string]struct{})}
}

// OnChunk scans one chunk and returns the paths not seen before, in the order
// they appear. Previously discovered paths are never removed.
func (s *Scanner) OnChunk(chunk string) []string {
	matches := markerPattern.FindAllStringSubmatch(chunk, -1)
	if len(matches) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		if path == "" {
			continue
		}
		if _, dup := s.seen[path]; dup {
			continue
		}
		s.seen[path] = struct{}{}
		s.paths = append(s.paths, path)
		added = append(added, path)
	}
	return added
}

// Paths returns every discovered path in discovery order.
func (s *Scanner) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.paths...)
}
