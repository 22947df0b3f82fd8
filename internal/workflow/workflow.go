// Package workflow loads batch files describing several tasks to run.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sparcflow/sparcflow/internal/protocol"
	"gopkg.in/yaml.v3"
)

// Workflow is a named list of tasks.
type Workflow struct {
	Name        string `json:"name" yaml:"name"`
	Parallel    bool   `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Concurrency int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Tasks       []Task `json:"tasks" yaml:"tasks"`
}

// Task is one entry of a workflow file.
type Task struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Type         string `json:"type,omitempty" yaml:"type,omitempty"`
	Agent        string `json:"agent,omitempty" yaml:"agent,omitempty"`
	TargetDir    string `json:"targetDir,omitempty" yaml:"targetDir,omitempty"`
}

// Definition converts the entry into the executor's task type.
func (t Task) Definition() protocol.TaskDefinition {
	return protocol.TaskDefinition{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		Instructions: t.Instructions,
		Type:         protocol.TaskType(t.Type),
		Context:      protocol.TaskContext{TargetDir: t.TargetDir},
	}
}

// AgentState returns the agent the task is run on behalf of. The agent id is
// derived from the task id.
func (t Task) AgentState() protocol.AgentState {
	return protocol.AgentState{
		ID:   "agent-" + t.ID,
		Type: protocol.AgentType(t.Agent),
	}
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return "task-" + uuid.NewString()[:8]
}

// Load reads a workflow from path. Files ending in .yaml or .yml are decoded
// as YAML, anything else as JSON.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	wf, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	if wf.Name == "" {
		wf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return wf, nil
}

// Parse decodes a workflow document. ext selects the format the same way
// Load does.
func Parse(data []byte, ext string) (*Workflow, error) {
	var wf Workflow
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &wf)
	default:
		err = json.Unmarshal(data, &wf)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}

	if err := wf.normalize(); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (wf *Workflow) normalize() error {
	if len(wf.Tasks) == 0 {
		return errors.New("workflow has no tasks")
	}
	if wf.Concurrency < 0 {
		return fmt.Errorf("invalid concurrency %d", wf.Concurrency)
	}

	seen := make(map[string]bool, len(wf.Tasks))
	for i := range wf.Tasks {
		t := &wf.Tasks[i]
		if strings.TrimSpace(t.Description) == "" {
			t.Description = t.Name
		}
		if strings.TrimSpace(t.Description) == "" {
			return fmt.Errorf("task %d: needs a description or a name", i+1)
		}
		if t.ID == "" {
			t.ID = NewTaskID()
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		if seen[t.ID] {
			return fmt.Errorf("task %d: duplicate id %q", i+1, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}
