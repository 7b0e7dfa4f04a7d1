package model

import "time"

// Job is one unit of inference work: the path of a single image.
type Job string

// Batch is the ordered set of jobs statically assigned to one execution unit
type Batch struct {
	Index int   `json:"index"`
	Jobs  []Job `json:"jobs"`
}

// Mode selects the work-distribution strategy for a run
type Mode string

const (
	ModeThreads   Mode = "threads"
	ModeProcesses Mode = "processes"
)

// EngineSpec configures the recognition backend built by every execution unit
type EngineSpec struct {
	Backend         string        `json:"backend" validate:"required"`
	Language        string        `json:"language" validate:"required"`
	AngleCorrection bool          `json:"angle_correction"`
	TessdataPrefix  string        `json:"tessdata_prefix,omitempty"`
	Threads         int           `json:"threads" validate:"gte=0"`         // internal numeric-library threads, 0 = engine default
	Exclusive       bool          `json:"exclusive"`                        // serialize recognize calls process-wide
	Silence         bool          `json:"silence"`                          // discard engine stdout/stderr during recognize
	SimulatedDelay  time.Duration `json:"simulated_delay" validate:"gte=0"` // simulated backend only
	FailPattern     string        `json:"fail_pattern,omitempty"`           // simulated backend only
}

// OutputSpec controls retention of recognized text
type OutputSpec struct {
	Dir     string `json:"dir"`
	Results bool   `json:"results"`
}

// RunSpec defines everything a single benchmark run needs
type RunSpec struct {
	InputDir    string        `json:"input_dir" validate:"required"`
	Extension   string        `json:"extension" validate:"required,startswith=."`
	Mode        Mode          `json:"mode" validate:"required,oneof=threads processes"`
	Concurrency int           `json:"concurrency" validate:"gte=1"`
	RunTimeout  time.Duration `json:"run_timeout" validate:"gte=0"` // 0 = no timeout
	Engine      EngineSpec    `json:"engine"`
	Output      OutputSpec    `json:"output"`
}
