package model

import "os/exec"

// WorkerProcess pairs a live worker subprocess with the transient files it
// reads and writes. The batch file must outlive the process.
type WorkerProcess struct {
	Index     int       `json:"index"`
	Cmd       *exec.Cmd `json:"-"`
	BatchPath string    `json:"batch_path"`
	StatsPath string    `json:"stats_path"`
	Jobs      int       `json:"jobs"`
}

// PID returns the OS process id, or 0 when the process never started
func (w *WorkerProcess) PID() int {
	if w.Cmd == nil || w.Cmd.Process == nil {
		return 0
	}
	return w.Cmd.Process.Pid
}
