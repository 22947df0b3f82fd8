package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// MaxRecordSize is the maximum NDJSON line size (4 MiB). Model output is
// stored inline, so lines are larger than typical log records.
const MaxRecordSize = 4 * 1024 * 1024

// Encoder writes NDJSON records to an output stream
type Encoder struct {
	writer  *bufio.Writer
	logger  *slog.Logger
	maxSize int
}

// NewEncoder creates a new NDJSON encoder. A nil logger discards.
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{
		writer:  bufio.NewWriter(w),
		logger:  orDiscard(logger),
		maxSize: MaxRecordSize,
	}
}

// Encode writes v as a single JSON line and flushes it
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if len(data) > e.maxSize {
		e.logger.Error("record exceeds size limit",
			"size", len(data),
			"limit", e.maxSize,
			"overflow", len(data)-e.maxSize)
		return fmt.Errorf("record size %d exceeds limit %d", len(data), e.maxSize)
	}

	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush per record so a crash loses at most the record in flight
	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return nil
}

// Decoder reads NDJSON records from an input stream
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	lineNum int
}

// NewDecoder creates a new NDJSON decoder. A nil logger discards.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxRecordSize)

	return &Decoder{
		scanner: scanner,
		logger:  orDiscard(logger),
	}
}

// Line returns the number of the line most recently read.
func (d *Decoder) Line() int { return d.lineNum }

// Decode reads the next non-empty line into v. It returns io.EOF when the
// stream is exhausted.
func (d *Decoder) Decode(v any) error {
	for {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return fmt.Errorf("scanner error at line %d: %w", d.lineNum+1, err)
			}
			return io.EOF
		}
		d.lineNum++

		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		if err := json.Unmarshal(data, v); err != nil {
			d.logger.Error("failed to unmarshal JSON",
				"line", d.lineNum,
				"error", err,
				"data", string(data[:min(100, len(data))]))
			return fmt.Errorf("failed to unmarshal line %d: %w", d.lineNum, err)
		}
		return nil
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
