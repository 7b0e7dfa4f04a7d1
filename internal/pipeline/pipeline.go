// Package pipeline runs OCR throughput benchmarks: it enumerates image jobs,
// spreads them over goroutine units or worker processes and reports the
// achieved images/sec.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-ocr-throughput/internal/engine"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
	"go-ocr-throughput/internal/store"
	"go-ocr-throughput/pkg/utils"
)

// Deps carries what a run needs besides its spec
type Deps struct {
	Factory   engine.Factory // nil means the registered backend named in the spec
	Command   CommandFunc    // worker command for the process model; nil re-executes this binary
	WorkerEnv []string       // extra environment for worker processes
	WorkDir   string         // parent of transient batch directories
	Stdout    io.Writer      // progress and summary lines; nil means os.Stdout
	Logger    *logrus.Entry
}

// ------------------- Pipeline Runner -------------------

// Run executes one benchmark run and returns its report. The report is
// returned even when err is non-nil, as long as enumeration succeeded.
func Run(ctx context.Context, spec model.RunSpec, deps Deps) (report model.RunReport, err error) {
	if err := ValidateSpec(spec); err != nil {
		return report, err
	}

	runID := uuid.New().String()
	log := deps.Logger
	if log == nil {
		log = logging.Entry()
	}
	log = log.WithField(logging.RunIDKey, runID)
	out := deps.Stdout
	if out == nil {
		out = os.Stdout
	}

	factory := deps.Factory
	if factory == nil {
		if factory, err = engine.Lookup(spec.Engine.Backend); err != nil {
			return report, err
		}
	}

	if spec.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.RunTimeout)
		defer cancel()
	}

	jobs, err := EnumerateJobs(spec.InputDir, spec.Extension)
	if err != nil {
		log.WithError(err).Error("Failed to enumerate jobs")
		return report, err
	}

	if store.Enabled() {
		if serr := store.SaveRun(runID, spec, len(jobs)); serr != nil {
			log.WithError(serr).Warn("Failed to record run")
		}
		defer func() { persistRun(log, runID, report, err) }()
	}

	fmt.Fprintln(out, ProgressLine(spec.Mode, len(jobs), spec.Concurrency))
	log.WithFields(logrus.Fields{
		"mode":        spec.Mode,
		"concurrency": spec.Concurrency,
		"backend":     spec.Engine.Backend,
		"jobs":        len(jobs),
	}).Info("Run started")

	tracker := StartTracker()
	var stats model.DispatchStats
	switch spec.Mode {
	case model.ModeProcesses:
		stats, err = runProcesses(ctx, runID, spec, deps, jobs, log)
	default:
		stats, err = runThreads(ctx, runID, spec, factory, jobs, log)
	}
	report = tracker.Report(spec.Mode, spec.Concurrency, len(jobs), stats)
	report.RunID = runID

	fmt.Fprintln(out, Summary(report))

	totals := SumUnits(report.Units)
	entry := log.WithFields(logrus.Fields{
		"succeeded":     report.Succeeded,
		"failed":        report.Failed,
		"skipped":       report.Skipped,
		"units":         totals.Units,
		"engine_inits":  totals.Inits,
		"engine_init_s": totals.InitDuration.Seconds(),
		"elapsed_s":     report.Elapsed.Seconds(),
	})
	if err != nil {
		entry.WithError(err).Error("Run failed")
	} else {
		entry.Info("Run completed")
	}
	return report, err
}

// runThreads runs the in-process pool
func runThreads(ctx context.Context, runID string, spec model.RunSpec, factory engine.Factory, jobs []model.Job, log *logrus.Entry) (model.DispatchStats, error) {
	if !engine.ThreadHintActive(spec.Engine.Threads) {
		log.WithField("engine_threads", spec.Engine.Threads).
			Info("Engine thread cap only applies to worker processes; export OMP_THREAD_LIMIT before starting to cap in-process engines")
	}

	opts := DispatchOptions{
		Concurrency: spec.Concurrency,
		Backend:     spec.Engine.Backend,
		Factory:     factory,
		Engine:      engine.OptionsFromSpec(spec.Engine),
		Guard:       GuardFromSpec(spec.Engine),
		Logger:      log,
	}

	if spec.Output.Results {
		path, err := utils.NewOutputManager(spec.Output.Dir).GetOutputFilePath(runID, ResultsFile)
		if err != nil {
			return model.DispatchStats{}, err
		}
		sink, err := NewJSONLSink(path)
		if err != nil {
			return model.DispatchStats{}, err
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.WithError(err).Warn("Failed to close results file")
			}
		}()
		opts.Sink = sink
	}

	return Dispatch(ctx, jobs, opts)
}

// runProcesses runs the worker-process pool
func runProcesses(ctx context.Context, runID string, spec model.RunSpec, deps Deps, jobs []model.Job, log *logrus.Entry) (model.DispatchStats, error) {
	orch := &Orchestrator{
		Command: deps.Command,
		WorkDir: deps.WorkDir,
		Logger:  log,
	}
	if orch.Command == nil {
		env := append(append([]string{}, deps.WorkerEnv...), engine.ThreadHintEnv(spec.Engine.Threads)...)
		orch.Command = SelfCommand(env)
	}

	if spec.Output.Results {
		dir, err := utils.NewOutputManager(spec.Output.Dir).CreateRunOutputDir(runID)
		if err != nil {
			return model.DispatchStats{}, err
		}
		orch.ResultsDir = dir
	}

	res, err := orch.Run(ctx, jobs, spec.Concurrency)
	return res.Stats, err
}

// GuardFromSpec derives the recognize guard. Silencing swaps the process-wide
// standard streams, so it always implies exclusivity.
func GuardFromSpec(spec model.EngineSpec) engine.Guard {
	return engine.Guard{
		Exclusive: spec.Exclusive || spec.Silence,
		Silence:   spec.Silence,
	}
}

// persistRun writes the final state of a run to the store
func persistRun(log *logrus.Entry, runID string, report model.RunReport, runErr error) {
	status := model.StatusCompleted
	if runErr != nil {
		status = model.StatusFailed
	}
	if err := store.CompleteRun(runID, report, status, runErr); err != nil {
		log.WithError(err).Warn("Failed to record run result")
	}
	if err := store.SaveUnitStats(runID, report.Units); err != nil {
		log.WithError(err).Warn("Failed to record unit stats")
	}
	if err := store.SaveJobErrors(runID, report.Failures); err != nil {
		log.WithError(err).Warn("Failed to record job errors")
	}
}
