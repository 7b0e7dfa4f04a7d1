package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go-ocr-throughput/internal/ecode"
	"go-ocr-throughput/internal/model"
)

// MergeStats folds per-worker stats into one, with units ordered by id
func MergeStats(parts ...model.DispatchStats) model.DispatchStats {
	var merged model.DispatchStats
	for _, p := range parts {
		merged.Succeeded += p.Succeeded
		merged.Failed += p.Failed
		merged.Skipped += p.Skipped
		merged.Units = append(merged.Units, p.Units...)
		merged.Failures = append(merged.Failures, p.Failures...)
	}
	sort.SliceStable(merged.Units, func(i, j int) bool {
		return merged.Units[i].Unit < merged.Units[j].Unit
	})
	return merged
}

// UnitTotals sums engine constructions and time across units
type UnitTotals struct {
	Units        int
	Inits        int64
	InitDuration time.Duration
	BusyDuration time.Duration
}

// SumUnits returns the totals for units
func SumUnits(units []model.UnitStats) UnitTotals {
	t := UnitTotals{Units: len(units)}
	for _, u := range units {
		t.Inits += u.Inits
		t.InitDuration += u.InitDuration
		t.BusyDuration += u.BusyDuration
	}
	return t
}

// missingStats stands in for a worker that produced no stats file: every
// job in its batch is counted as skipped.
func missingStats(w *model.WorkerProcess, batch []model.Job, reason string) model.DispatchStats {
	stats := model.DispatchStats{
		Skipped: int64(len(batch)),
		Units:   []model.UnitStats{{Unit: w.Index}},
	}
	for _, job := range batch {
		stats.Failures = append(stats.Failures, model.JobFailure{
			Job:     job,
			Unit:    w.Index,
			Stage:   model.StageSkipped,
			Message: reason,
		})
	}
	return stats
}

// reconcileStats counts every job of batch that stats does not account for
// as skipped, so a worker's stats always cover its whole batch.
func reconcileStats(w *model.WorkerProcess, batch []model.Job, stats model.DispatchStats) model.DispatchStats {
	short := int64(len(batch)) - (stats.Processed() + stats.Skipped)
	if short <= 0 {
		return stats
	}
	for _, job := range unreadJobs(w.BatchPath, batch, int(short)) {
		stats.Skipped++
		stats.Failures = append(stats.Failures, model.JobFailure{
			Job:     job,
			Unit:    w.Index,
			Stage:   model.StageSkipped,
			Message: "job not read from batch file",
		})
	}
	return stats
}

// unreadJobs returns the n jobs of batch missing from what the worker could
// read back from batchPath. When they cannot be told apart, the last n jobs
// are returned.
func unreadJobs(batchPath string, batch []model.Job, n int) []model.Job {
	if read, err := ReadBatch(batchPath); err == nil {
		seen := make(map[model.Job]int, len(read))
		for _, job := range read {
			seen[job]++
		}
		var lost []model.Job
		for _, job := range batch {
			if seen[job] > 0 {
				seen[job]--
				continue
			}
			lost = append(lost, job)
		}
		if len(lost) == n {
			return lost
		}
	}
	return batch[len(batch)-n:]
}

// WriteStats stores stats as JSON at path, replacing it atomically
func WriteStats(path string, stats model.DispatchStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return ecode.IO("create stats file", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return ecode.IO("write stats file", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return ecode.IO("close stats file", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return ecode.IO("rename stats file", path, err)
	}
	return nil
}

// ReadStats loads stats written by WriteStats
func ReadStats(path string) (model.DispatchStats, error) {
	var stats model.DispatchStats
	data, err := os.ReadFile(path)
	if err != nil {
		return stats, ecode.IO("read stats file", path, err)
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("failed to decode stats file %s: %w", path, err)
	}
	return stats, nil
}
