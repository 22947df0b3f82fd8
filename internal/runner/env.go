package runner

import (
	"sort"
	"strings"
)

// Environment is the variable table handed to one spawned process. It is
// built once per invocation and never mutated afterwards, so concurrent runs
// cannot observe each other's overlays.
//
// The zero Environment inherits the parent process environment.
type Environment struct {
	vars []string
}

// NewEnvironment copies base and applies overlay on top of it. Overlay keys
// replace existing entries in place and new keys are appended in sorted
// order.
func NewEnvironment(base []string, overlay map[string]string) Environment {
	vars := append(make([]string, 0, len(base)+len(overlay)), base...)

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		vars = setEnv(vars, k, overlay[k])
	}
	return Environment{vars: vars}
}

// With returns a new Environment with overlay applied on top of e.
func (e Environment) With(overlay map[string]string) Environment {
	return NewEnvironment(e.vars, overlay)
}

// Vars returns a copy of the KEY=value list, or nil for the zero value.
func (e Environment) Vars() []string {
	if e.vars == nil {
		return nil
	}
	return append([]string{}, e.vars...)
}

// Lookup returns the value of key, preferring the last definition.
func (e Environment) Lookup(key string) (string, bool) {
	prefix := key + "="
	for i := len(e.vars) - 1; i >= 0; i-- {
		if strings.HasPrefix(e.vars[i], prefix) {
			return e.vars[i][len(prefix):], true
		}
	}
	return "", false
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
