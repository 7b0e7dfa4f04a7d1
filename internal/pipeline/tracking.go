package pipeline

import (
	"fmt"
	"time"

	"go-ocr-throughput/internal/model"
)

// Tracker measures wall-clock time for one run. It is started after job
// enumeration, so enumeration cost is excluded from the measured time.
type Tracker struct {
	start time.Time
	now   func() time.Time
}

// StartTracker starts the clock
func StartTracker() *Tracker {
	return startTrackerAt(time.Now)
}

func startTrackerAt(now func() time.Time) *Tracker {
	return &Tracker{start: now(), now: now}
}

// Elapsed returns the time since the tracker started
func (t *Tracker) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Report stops the clock and builds the final run report
func (t *Tracker) Report(mode model.Mode, concurrency, total int, stats model.DispatchStats) model.RunReport {
	return BuildReport(mode, concurrency, total, t.Elapsed(), stats)
}

// BuildReport assembles a report. The rate counts every enumerated job,
// failed ones included, so a run full of bad images still reports the
// throughput of attempting them.
func BuildReport(mode model.Mode, concurrency, total int, elapsed time.Duration, stats model.DispatchStats) model.RunReport {
	rate, ok := ThroughputRate(total, elapsed)
	return model.RunReport{
		Mode:        mode,
		Concurrency: concurrency,
		TotalJobs:   total,
		Succeeded:   stats.Succeeded,
		Failed:      stats.Failed,
		Skipped:     stats.Skipped,
		Elapsed:     elapsed,
		Rate:        rate,
		RateDefined: ok,
		Units:       stats.Units,
		Failures:    stats.Failures,
	}
}

// ThroughputRate returns total/elapsed in jobs per second. The rate is
// undefined (0, false) when there were no jobs or no measurable time.
func ThroughputRate(total int, elapsed time.Duration) (float64, bool) {
	if total <= 0 || elapsed <= 0 {
		return 0, false
	}
	return float64(total) / elapsed.Seconds(), true
}

// ------------------- Console lines -------------------

// ProgressLine is printed once before any job starts
func ProgressLine(mode model.Mode, total, concurrency int) string {
	switch mode {
	case model.ModeProcesses:
		return fmt.Sprintf("Processing %d images with %d processes...", total, concurrency)
	default:
		return fmt.Sprintf("Processing %d images with %d threads...", total, concurrency)
	}
}

// Summary is the final report line
func Summary(r model.RunReport) string {
	rate := "n/a"
	if r.RateDefined {
		rate = fmt.Sprintf("%.2f", r.Rate)
	}
	return fmt.Sprintf("Processed %d images in %.2f seconds (%s images/sec)",
		r.TotalJobs, r.Elapsed.Seconds(), rate)
}
