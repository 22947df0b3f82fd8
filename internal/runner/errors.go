package runner

import (
	"fmt"
	"time"
)

// SpawnError reports that the model binary could not be started.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError reports that the deadline fired before the process exited.
// The process has been sent one SIGTERM.
type TimeoutError struct {
	Binary  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Command execution timeout after %s", e.Timeout)
}
