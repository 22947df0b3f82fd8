// Package sparc selects an execution mode for a task and renders the prompt
// the model is run with.
package sparc

import (
	"fmt"
	"strings"
)

// Mode is one of the fixed SPARC execution strategies.
type Mode int

const (
	ModeCode Mode = iota
	ModeTDD
	ModeArchitect
	ModeDocsWriter
	ModeSpecPseudocode
	ModeOptimization
	ModeDebug
	ModeIntegration
	ModeSecurityReview
	ModeDevOps
)

var modeNames = [...]string{
	ModeCode:           "code",
	ModeTDD:            "tdd",
	ModeArchitect:      "architect",
	ModeDocsWriter:     "docs-writer",
	ModeSpecPseudocode: "spec-pseudocode",
	ModeOptimization:   "refinement-optimization-mode",
	ModeDebug:          "debug",
	ModeIntegration:    "integration",
	ModeSecurityReview: "security-review",
	ModeDevOps:         "devops",
}

// String returns the wire name of the mode.
func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Valid reports whether m is a declared mode.
func (m Mode) Valid() bool {
	return m >= 0 && int(m) < len(modeNames)
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	modes := make([]Mode, len(modeNames))
	for i := range modeNames {
		modes[i] = Mode(i)
	}
	return modes
}

// ParseMode resolves a wire name (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	for i, n := range modeNames {
		if n == s {
			return Mode(i), nil
		}
	}
	return ModeCode, fmt.Errorf("unknown sparc mode %q (valid: %s)", name, strings.Join(modeNames[:], ", "))
}
