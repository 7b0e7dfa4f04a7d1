package model

import "time"

// Failure stages recorded in JobFailure.Stage
const (
	StageRecognize  = "recognize"
	StageEngineInit = "engine_init"
	StageSkipped    = "skipped"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobFailure records why a single job produced no result
type JobFailure struct {
	Job     Job    `json:"job"`
	Unit    int    `json:"unit"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// UnitStats represents what one execution unit (goroutine or worker process) did
type UnitStats struct {
	Unit         int           `json:"unit"`
	Jobs         int64         `json:"jobs"`
	Failed       int64         `json:"failed"`
	Inits        int64         `json:"inits"`
	InitDuration time.Duration `json:"init_duration"`
	BusyDuration time.Duration `json:"busy_duration"`
}

// DispatchStats is the outcome of running a set of jobs on one or more units
type DispatchStats struct {
	Succeeded int64        `json:"succeeded"`
	Failed    int64        `json:"failed"`
	Skipped   int64        `json:"skipped"`
	Units     []UnitStats  `json:"units"`
	Failures  []JobFailure `json:"failures,omitempty"`
}

// Processed returns the number of jobs that reached an engine
func (s DispatchStats) Processed() int64 {
	return s.Succeeded + s.Failed
}

// RunReport summarizes a finished run. It is created once and never mutated.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Mode        Mode          `json:"mode"`
	Concurrency int           `json:"concurrency"`
	TotalJobs   int           `json:"total_jobs"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	Skipped     int64         `json:"skipped"`
	Elapsed     time.Duration `json:"elapsed"`
	Rate        float64       `json:"rate"`         // jobs per second
	RateDefined bool          `json:"rate_defined"` // false when there were no jobs or no measurable elapsed time
	Units       []UnitStats   `json:"units"`
	Failures    []JobFailure  `json:"failures,omitempty"`
}
