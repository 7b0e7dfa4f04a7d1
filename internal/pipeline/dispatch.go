package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-ocr-throughput/internal/ecode"
	"go-ocr-throughput/internal/engine"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
)

// DispatchOptions configures the in-process pool of execution units
type DispatchOptions struct {
	Concurrency int            // maximum number of concurrently active units
	Backend     string         // backend name, for error reporting
	Factory     engine.Factory // builds one engine per unit
	Engine      engine.Options
	Guard       engine.Guard
	Sink        ResultSink // optional; receives successful outcomes
	UnitOffset  int        // added to unit ids, lets worker processes report distinct units
	Logger      *logrus.Entry
}

// ------------------- Dispatch -------------------

// Dispatch recognizes every job using up to opts.Concurrency units. Each
// unit takes jobs from a shared queue, so every job is consumed by exactly
// one unit, and lazily builds its own engine on its first job.
//
// A failed job is logged and recorded; it never stops its unit. A unit whose
// engine cannot be built stops; the other units keep draining the queue and
// the init failure is returned once every unit has finished. Jobs left in the
// queue (cancellation, or no healthy unit) are counted as skipped.
func Dispatch(ctx context.Context, jobs []model.Job, opts DispatchOptions) (model.DispatchStats, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Entry()
	}

	units := opts.Concurrency
	if units < 1 {
		units = 1
	}
	if units > len(jobs) {
		units = len(jobs)
	}

	stats := model.DispatchStats{Units: make([]model.UnitStats, units)}
	if len(jobs) == 0 {
		return stats, nil
	}

	queue := make(chan model.Job, len(jobs))
	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for i := 0; i < units; i++ {
		id := i
		g.Go(func() error {
			return runUnit(ctx, id, queue, opts, log, &mu, &stats)
		})
	}
	err := g.Wait()

	for job := range queue {
		stats.Skipped++
		stats.Failures = append(stats.Failures, model.JobFailure{
			Job:     job,
			Unit:    -1,
			Stage:   model.StageSkipped,
			Message: "not processed",
		})
	}

	// a cancellation that arrived after the last job is not a failure
	if err == nil && stats.Skipped > 0 {
		err = ctx.Err()
	}
	return stats, err
}

// runUnit is one execution unit: it owns a single engine handle for its
// whole lifetime and processes jobs until the queue is empty.
func runUnit(
	ctx context.Context,
	id int,
	queue <-chan model.Job,
	opts DispatchOptions,
	log *logrus.Entry,
	mu *sync.Mutex,
	stats *model.DispatchStats,
) error {
	unit := model.UnitStats{Unit: opts.UnitOffset + id}
	log = log.WithField(logging.UnitKey, unit.Unit)

	handle := engine.NewHandle(opts.Factory, opts.Engine, opts.Guard)
	var (
		succeeded int64
		failures  []model.JobFailure
	)

	defer func() {
		if err := handle.Close(); err != nil {
			log.WithError(err).Warn("Failed to close engine")
		}
		unit.Inits = handle.Inits()
		unit.InitDuration = handle.InitDuration()

		mu.Lock()
		stats.Units[id] = unit
		stats.Succeeded += succeeded
		stats.Failed += unit.Failed
		stats.Failures = append(stats.Failures, failures...)
		mu.Unlock()

		log.WithFields(logrus.Fields{
			"jobs":   unit.Jobs,
			"failed": unit.Failed,
		}).Debug("Unit finished")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		job, ok := <-queue
		if !ok {
			return nil
		}
		unit.Jobs++

		rec, err := handle.Acquire()
		if err != nil {
			initErr := &ecode.EngineInitError{Unit: unit.Unit, Backend: opts.Backend, Err: err}
			log.WithError(err).Error("Engine initialization failed, unit stopped")
			unit.Failed++
			failures = append(failures, model.JobFailure{
				Job:     job,
				Unit:    unit.Unit,
				Stage:   model.StageEngineInit,
				Message: initErr.Error(),
			})
			return initErr
		}

		start := time.Now()
		out, err := rec.Recognize(ctx, string(job))
		unit.BusyDuration += time.Since(start)
		if err != nil {
			jobErr := &ecode.JobError{Job: string(job), Err: err}
			log.WithField(logging.JobKey, job).WithError(err).Error("Recognition failed")
			unit.Failed++
			failures = append(failures, model.JobFailure{
				Job:     job,
				Unit:    unit.Unit,
				Stage:   model.StageRecognize,
				Message: jobErr.Error(),
			})
			continue
		}

		succeeded++
		if opts.Sink != nil {
			if err := opts.Sink.Put(out); err != nil {
				log.WithField(logging.JobKey, job).WithError(err).Warn("Failed to keep result")
			}
		}
	}
}
