package jobs

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a second batch is started while one
// is still running.
var ErrRunInProgress = errors.New("batch already running")

// Stage names the step of a job that failed.
type Stage string

const (
	StageWrite Stage = "write"
	StageExec  Stage = "exec"
	StageRead  Stage = "read"
)

// JobExecutionError is a failure confined to one job. Reason is safe to
// show to the user; Err keeps the full cause for logs.
type JobExecutionError struct {
	Source string `json:"source"`
	Stage  Stage  `json:"stage"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Error formats job failures for logs.
func (e *JobExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Stage, e.Source, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Stage, e.Source, e.Reason, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *JobExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
