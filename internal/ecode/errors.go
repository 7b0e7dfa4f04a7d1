// Package ecode defines the error kinds a run can produce and how they map to
// process exit status.
//
// Kinds, from narrowest to widest blast radius:
//
//	ErrRecognition    // one job failed; logged and skipped, never fatal
//	ErrEngineInit     // one execution unit could not build its engine
//	ErrIO             // input directory or batch file unreadable; fatal
//	ErrSpawn          // a worker process could not be started; fatal
//	ErrWorkerFailure  // a worker process exited non-zero; fatal
//
// Typed errors wrap a kind so callers can use errors.Is for the kind and
// errors.As for the details.
package ecode

import (
	"errors"
	"fmt"
)

var (
	ErrIO            = errors.New("io error")
	ErrEngineInit    = errors.New("engine init error")
	ErrRecognition   = errors.New("recognition error")
	ErrSpawn         = errors.New("spawn error")
	ErrWorkerFailure = errors.New("worker failure")
)

// IO wraps err as an ErrIO for the given operation and path
func IO(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

// JobError is a per-job recognition failure
type JobError struct {
	Job string
	Err error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("recognize %s: %v", e.Job, e.Err)
}

func (e *JobError) Unwrap() []error { return []error{ErrRecognition, e.Err} }

// EngineInitError reports that an execution unit could not construct its engine
type EngineInitError struct {
	Unit    int
	Backend string
	Err     error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("unit %d: init %s engine: %v", e.Unit, e.Backend, e.Err)
}

func (e *EngineInitError) Unwrap() []error { return []error{ErrEngineInit, e.Err} }

// SpawnError reports that a worker process could not be started
type SpawnError struct {
	Index int
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker %d: %v", e.Index, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

// WorkerError reports a worker process that exited unsuccessfully.
// ExitCode is -1 when the process was killed by a signal.
type WorkerError struct {
	Index    int
	PID      int
	ExitCode int
	Err      error
}

func (e *WorkerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("worker %d (pid %d) exited with status %d: %v", e.Index, e.PID, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("worker %d (pid %d) exited with status %d", e.Index, e.PID, e.ExitCode)
}

func (e *WorkerError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrWorkerFailure}
	}
	return []error{ErrWorkerFailure, e.Err}
}

// IsFatal reports whether err must terminate the run with a non-zero status.
// Recognition errors alone are never fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var je *JobError
	if errors.As(err, &je) && !errors.Is(err, ErrEngineInit) && !errors.Is(err, ErrIO) &&
		!errors.Is(err, ErrSpawn) && !errors.Is(err, ErrWorkerFailure) {
		return false
	}
	return true
}

// ExitCode maps an error to a process exit status
func ExitCode(err error) int {
	if !IsFatal(err) {
		return 0
	}
	return 1
}
