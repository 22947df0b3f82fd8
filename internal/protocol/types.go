package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TaskType is the coarse category tag attached to a task
type TaskType string

const (
	TaskTypeCoding        TaskType = "coding"
	TaskTypeTesting       TaskType = "testing"
	TaskTypeAnalysis      TaskType = "analysis"
	TaskTypeDocumentation TaskType = "documentation"
	TaskTypeResearch      TaskType = "research"
	TaskTypeReview        TaskType = "review"
	TaskTypeDeployment    TaskType = "deployment"
	TaskTypeOptimization  TaskType = "optimization"
	TaskTypeIntegration   TaskType = "integration"
)

// AgentType represents the role of an agent
type AgentType string

const (
	AgentTypeDeveloper   AgentType = "developer"
	AgentTypeTester      AgentType = "tester"
	AgentTypeAnalyzer    AgentType = "analyzer"
	AgentTypeDocumenter  AgentType = "documenter"
	AgentTypeReviewer    AgentType = "reviewer"
	AgentTypeResearcher  AgentType = "researcher"
	AgentTypeCoordinator AgentType = "coordinator"
)

// TaskContext carries optional hints supplied alongside a task
type TaskContext struct {
	TargetDir string            `json:"targetDir,omitempty" yaml:"targetDir,omitempty"`
	Extra     map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// TaskDefinition is a unit of development work handed to the executor.
// It is consumed read-only.
type TaskDefinition struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Instructions string      `json:"instructions,omitempty"`
	Type         TaskType    `json:"type,omitempty"`
	Context      TaskContext `json:"context,omitempty"`
}

// Validate checks the task invariants.
func (t TaskDefinition) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return errors.New("task description is required")
	}
	return nil
}

// AgentState identifies the agent a task is executed on behalf of.
// Only Type affects execution.
type AgentState struct {
	ID   string    `json:"id"`
	Type AgentType `json:"type"`
}

// Artifact describes a produced file
type Artifact struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// ResultMetadata describes how a task result was produced
type ResultMetadata struct {
	ExecutionTime time.Duration `json:"-"`
	SparcMode     string        `json:"sparcMode,omitempty"`
	Model         string        `json:"model,omitempty"`
	Command       string        `json:"command,omitempty"`
	ExitCode      *int          `json:"exitCode,omitempty"`
	Quality       float64       `json:"quality"`
	Completeness  float64       `json:"completeness"`
	PromptSHA256  string        `json:"promptSha256,omitempty"`
}

type resultMetadataJSON struct {
	ExecutionTimeMs int64 `json:"executionTime"`
	resultMetadataAlias
}

type resultMetadataAlias ResultMetadata

// MarshalJSON encodes ExecutionTime as whole milliseconds.
func (m ResultMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultMetadataJSON{
		ExecutionTimeMs:     m.ExecutionTime.Milliseconds(),
		resultMetadataAlias: resultMetadataAlias(m),
	})
}

// UnmarshalJSON decodes ExecutionTime from whole milliseconds.
func (m *ResultMetadata) UnmarshalJSON(data []byte) error {
	var aux resultMetadataJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = ResultMetadata(aux.resultMetadataAlias)
	m.ExecutionTime = time.Duration(aux.ExecutionTimeMs) * time.Millisecond
	return nil
}

// TaskResult is returned for every executed task, successful or not.
// A non-empty Error is the only failure signal.
type TaskResult struct {
	Output    string         `json:"output"`
	Artifacts []string       `json:"artifacts"`
	Metadata  ResultMetadata `json:"metadata"`
	Error     string         `json:"error,omitempty"`

	// Inspected is populated only when artifact inspection was requested.
	Inspected []Artifact `json:"inspected,omitempty"`
}

// Failed reports whether the result carries an error.
func (r TaskResult) Failed() bool {
	return r.Error != ""
}

// ResultRecord is a single line in a results log
type ResultRecord struct {
	RunID      string     `json:"run_id"`
	TaskID     string     `json:"task_id"`
	TaskName   string     `json:"task_name,omitempty"`
	AgentID    string     `json:"agent_id,omitempty"`
	Result     TaskResult `json:"result"`
	RecordedAt time.Time  `json:"recorded_at"`
}
