package ndjson

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sparcflow/sparcflow/internal/protocol"
)

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	encoder := NewEncoder(&buf, logger)
	decoder := NewDecoder(&buf, logger)

	code := 0
	rec := protocol.ResultRecord{
		RunID:    "run-01",
		TaskID:   "task-1",
		TaskName: "login",
		Result: protocol.TaskResult{
			Output:    "Created file: auth/login.go\n",
			Artifacts: []string{"auth/login.go"},
			Metadata: protocol.ResultMetadata{
				ExecutionTime: 1500 * time.Millisecond,
				SparcMode:     "debug",
				Model:         "gemma3n:e2b",
				ExitCode:      &code,
				Quality:       0.95,
				Completeness:  0.9,
			},
		},
		RecordedAt: time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC),
	}

	if err := encoder.Encode(rec); err != nil {
		t.Fatalf("failed to encode record: %v", err)
	}

	if !strings.HasSuffix(buf.String(), "\n") || strings.Count(buf.String(), "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}

	var decoded protocol.ResultRecord
	if err := decoder.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}

	if decoded.TaskID != rec.TaskID {
		t.Errorf("task_id mismatch: got %s, want %s", decoded.TaskID, rec.TaskID)
	}
	if decoded.Result.Metadata.ExecutionTime != rec.Result.Metadata.ExecutionTime {
		t.Errorf("execution time mismatch: got %s, want %s", decoded.Result.Metadata.ExecutionTime, rec.Result.Metadata.ExecutionTime)
	}
	if decoded.Result.Metadata.ExitCode == nil || *decoded.Result.Metadata.ExitCode != 0 {
		t.Errorf("exit code not preserved: %v", decoded.Result.Metadata.ExitCode)
	}
}

func TestEncoderSizeLimit(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf, nil)

	rec := protocol.ResultRecord{
		TaskID: "task-1",
		Result: protocol.TaskResult{Output: strings.Repeat("x", MaxRecordSize)},
	}

	err := encoder.Encode(rec)
	if err == nil {
		t.Fatal("expected error for oversized record, got nil")
	}
	if !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("expected 'exceeds limit' error, got: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("oversized record must not be written, got %d bytes", buf.Len())
	}
}

func TestDecoderSizeLimit(t *testing.T) {
	largeLine := strings.Repeat("x", MaxRecordSize+1000)
	decoder := NewDecoder(strings.NewReader(largeLine+"\n"), nil)

	var msg map[string]any
	if err := decoder.Decode(&msg); err == nil {
		t.Error("expected error for oversized line, got nil")
	}
}

func TestDecoderEmptyLines(t *testing.T) {
	input := strings.NewReader("\n\n{\"run_id\":\"run-1\",\"task_id\":\"T-1\",\"result\":{\"output\":\"\",\"artifacts\":[],\"metadata\":{\"executionTime\":12,\"quality\":0,\"completeness\":0},\"error\":\"boom\"},\"recorded_at\":\"2025-10-19T12:00:00Z\"}\n")

	decoder := NewDecoder(input, nil)

	var rec protocol.ResultRecord
	if err := decoder.Decode(&rec); err != nil {
		t.Fatalf("failed to decode after empty lines: %v", err)
	}

	if rec.TaskID != "T-1" {
		t.Errorf("got task_id %s, want T-1", rec.TaskID)
	}
	if rec.Result.Metadata.ExecutionTime != 12*time.Millisecond {
		t.Errorf("got execution time %s, want 12ms", rec.Result.Metadata.ExecutionTime)
	}
	if decoder.Line() != 3 {
		t.Errorf("got line %d, want 3", decoder.Line())
	}
}

func TestDecoderInvalidJSONReportsLine(t *testing.T) {
	decoder := NewDecoder(strings.NewReader("{}\n{broken\n"), nil)

	var msg map[string]any
	if err := decoder.Decode(&msg); err != nil {
		t.Fatalf("first line should decode: %v", err)
	}
	err := decoder.Decode(&msg)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
}

func TestDecoderEOF(t *testing.T) {
	decoder := NewDecoder(strings.NewReader(""), nil)

	var msg map[string]any
	if err := decoder.Decode(&msg); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	encoder := NewEncoder(&buf, nil)

	for _, id := range []string{"a", "b", "c"} {
		if err := encoder.Encode(protocol.ResultRecord{TaskID: id}); err != nil {
			t.Fatalf("encode %s: %v", id, err)
		}
	}

	decoder := NewDecoder(&buf, nil)
	var got []string
	for {
		var rec protocol.ResultRecord
		err := decoder.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, rec.TaskID)
	}

	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("got %v, want [a b c]", got)
	}
}
