// Package engine wraps the transcoding engine behind a capability handle.
//
// A Handle owns a private workspace (the engine's virtual filesystem) that
// inputs are written to and outputs read from. Handles are not reentrant:
// callers must not run two Exec calls on the same handle concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrInitialization matches every InitializationError via errors.Is.
var ErrInitialization = errors.New("engine initialization failed")

// ErrInvalidName is returned for workspace names that are not plain file names.
var ErrInvalidName = errors.New("invalid workspace file name")

// Handle is the ready-to-use engine capability.
type Handle interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	Exec(ctx context.Context, args []string) error
	// OnProgress installs fn as the progress observer and returns a func
	// that removes it. Only one observer is active at a time.
	OnProgress(fn func(ratio float64)) (unsubscribe func())
}

// Loader fetches and links the engine runtime, producing a Handle.
type Loader interface {
	Load(ctx context.Context) (Handle, error)
}

// InitializationError reports that the engine runtime could not be loaded.
type InitializationError struct {
	Err error
}

// Error formats initialization failures for logs and UI.
func (e *InitializationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return ErrInitialization.Error()
	}
	return fmt.Sprintf("%s: %v", ErrInitialization.Error(), e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InitializationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrInitialization) match.
func (e *InitializationError) Is(target error) bool {
	return target == ErrInitialization
}

// CommandLog captures one engine invocation.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}

// ExecError is a failed engine invocation with a short human-readable reason.
type ExecError struct {
	Reason     string     `json:"reason"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats invocation failures for logs.
func (e *ExecError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s (exit=%d)", e.CommandLog.Command, e.Reason, e.CommandLog.ExitCode)
}

// Unwrap exposes the process error for errors.Is / errors.As.
func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
