// Package resultlog appends task results to an NDJSON file per run.
package resultlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sparcflow/sparcflow/internal/ndjson"
	"github.com/sparcflow/sparcflow/internal/protocol"
)

// Log writes result records to an NDJSON file. It is safe for concurrent use.
type Log struct {
	path    string
	runID   string
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// NewRunID returns an identifier for a new run.
func NewRunID() string {
	return "run-" + uuid.NewString()[:8]
}

// PathFor returns the log file for runID under dir.
func PathFor(dir, runID string) string {
	return filepath.Join(dir, runID+".ndjson")
}

// Open opens (creating if needed) the log for runID under dir.
func Open(dir, runID string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	path := PathFor(dir, runID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open results log: %w", err)
	}

	return &Log{
		path:    path,
		runID:   runID,
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Path returns the file being written.
func (l *Log) Path() string { return l.path }

// RunID returns the run this log belongs to.
func (l *Log) RunID() string { return l.runID }

// Append records the result of one task.
func (l *Log) Append(task protocol.TaskDefinition, agent protocol.AgentState, result protocol.TaskResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("results log is closed")
	}

	rec := protocol.ResultRecord{
		RunID:      l.runID,
		TaskID:     task.ID,
		TaskName:   task.Name,
		AgentID:    agent.ID,
		Result:     result,
		RecordedAt: l.now().UTC(),
	}
	if err := l.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to append result for task %s: %w", task.ID, err)
	}
	l.logger.Debug("result recorded", "task_id", task.ID, "path", l.path)
	return nil
}

// Close closes the results log file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadAll decodes every record in the file at path.
func ReadAll(path string) ([]protocol.ResultRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results log: %w", err)
	}
	defer f.Close()

	dec := ndjson.NewDecoder(f, nil)
	var records []protocol.ResultRecord
	for {
		var rec protocol.ResultRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// ModeSummary aggregates the results of one mode.
type ModeSummary struct {
	Mode         string
	Total        int
	Failed       int
	Artifacts    int
	MeanDuration time.Duration
}

// Summary aggregates a results log.
type Summary struct {
	Total     int
	Failed    int
	Artifacts int
	Modes     []ModeSummary // sorted by mode name
}

// Summarize aggregates records per mode. Records whose mode was never
// determined are grouped under "unknown".
func Summarize(records []protocol.ResultRecord) Summary {
	type acc struct {
		ModeSummary
		elapsed time.Duration
	}
	byMode := map[string]*acc{}

	var s Summary
	for _, rec := range records {
		mode := rec.Result.Metadata.SparcMode
		if mode == "" {
			mode = "unknown"
		}
		a, ok := byMode[mode]
		if !ok {
			a = &acc{ModeSummary: ModeSummary{Mode: mode}}
			byMode[mode] = a
		}

		a.Total++
		a.elapsed += rec.Result.Metadata.ExecutionTime
		a.Artifacts += len(rec.Result.Artifacts)
		s.Total++
		s.Artifacts += len(rec.Result.Artifacts)
		if rec.Result.Failed() {
			a.Failed++
			s.Failed++
		}
	}

	for _, a := range byMode {
		a.MeanDuration = a.elapsed / time.Duration(a.Total)
		s.Modes = append(s.Modes, a.ModeSummary)
	}
	sort.Slice(s.Modes, func(i, j int) bool { return s.Modes[i].Mode < s.Modes[j].Mode })
	return s
}
