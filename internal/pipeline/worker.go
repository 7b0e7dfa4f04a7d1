package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
)

// WorkerSpec is what one worker process was asked to do
type WorkerSpec struct {
	BatchPath   string
	StatsPath   string // optional
	ResultsPath string // optional
	Dispatch    DispatchOptions
}

// RunWorker processes one batch file sequentially on a single engine. Per-job
// failures are recorded in the stats, not returned; the error is non-nil only
// when the batch could not be read, the engine could not be built or the run
// was cancelled.
func RunWorker(ctx context.Context, spec WorkerSpec) (model.DispatchStats, error) {
	log := spec.Dispatch.Logger
	if log == nil {
		log = logging.Entry()
	}
	log = log.WithField(logging.WorkerKey, spec.Dispatch.UnitOffset)

	jobs, err := ReadBatch(spec.BatchPath)
	if err != nil {
		log.WithError(err).Error("Failed to read batch")
		return model.DispatchStats{}, err
	}

	opts := spec.Dispatch
	opts.Concurrency = 1
	opts.Logger = log

	var sink *JSONLSink
	if spec.ResultsPath != "" {
		sink, err = NewJSONLSink(spec.ResultsPath)
		if err != nil {
			return model.DispatchStats{}, err
		}
		opts.Sink = sink
	}

	stats, err := Dispatch(ctx, jobs, opts)

	if sink != nil {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if spec.StatsPath != "" {
		if werr := WriteStats(spec.StatsPath, stats); werr != nil && err == nil {
			err = werr
		}
	}

	log.WithFields(logrus.Fields{
		"jobs":      len(jobs),
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
	}).Debug("Batch done")
	return stats, err
}
