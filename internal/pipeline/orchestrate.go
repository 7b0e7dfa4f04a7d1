package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-ocr-throughput/internal/ecode"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
)

// workerStopGrace is how long a worker may take to exit after being asked to
// stop before it is killed
const workerStopGrace = 5 * time.Second

// WorkerInvocation tells a CommandFunc what one worker must process
type WorkerInvocation struct {
	Index       int
	BatchPath   string
	StatsPath   string
	ResultsPath string // empty when results are not kept
}

// CommandFunc builds the command for one worker. The command is not started.
type CommandFunc func(ctx context.Context, inv WorkerInvocation) (*exec.Cmd, error)

// WorkerArgs returns the worker subcommand arguments for inv
func WorkerArgs(inv WorkerInvocation) []string {
	args := []string{
		"worker",
		"--batch", inv.BatchPath,
		"--stats", inv.StatsPath,
		"--unit", strconv.Itoa(inv.Index),
	}
	if inv.ResultsPath != "" {
		args = append(args, "--results", inv.ResultsPath)
	}
	return args
}

// SelfCommand re-executes the running binary in worker mode, adding env to
// the inherited environment
func SelfCommand(env []string) CommandFunc {
	return func(ctx context.Context, inv WorkerInvocation) (*exec.Cmd, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		cmd := exec.CommandContext(ctx, exe, WorkerArgs(inv)...)
		cmd.Env = append(os.Environ(), env...)
		return cmd, nil
	}
}

// Orchestrator runs jobs on a pool of worker processes, one per batch
type Orchestrator struct {
	Command    CommandFunc
	WorkDir    string // parent of the run's transient directory; "" means os.TempDir()
	ResultsDir string // when set, worker i writes ShardResultsFile(i) here
	Logger     *logrus.Entry
}

// OrchestrateResult is what the pool did
type OrchestrateResult struct {
	Batches []model.Batch
	Workers []model.WorkerProcess
	Stats   model.DispatchStats
}

// ------------------- Run -------------------

// Run partitions jobs into at most n batches and runs one worker per batch.
// Every started worker is waited for before Run returns, whatever happens,
// and batch files are removed only after that. A spawn failure stops further
// spawning and is returned; otherwise the first worker failure is returned.
func (o *Orchestrator) Run(ctx context.Context, jobs []model.Job, n int) (OrchestrateResult, error) {
	log := o.Logger
	if log == nil {
		log = logging.Entry()
	}

	res := OrchestrateResult{Batches: Partition(jobs, n)}
	if len(res.Batches) == 0 {
		return res, nil
	}

	runDir, err := os.MkdirTemp(o.WorkDir, "ocrbench-run-*")
	if err != nil {
		return res, ecode.IO("create run directory", o.WorkDir, err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.WithError(err).Warn("Failed to remove run directory")
		}
	}()

	workers := make([]*model.WorkerProcess, 0, len(res.Batches))
	var spawnErr error
	for _, batch := range res.Batches {
		if ctx.Err() != nil {
			break
		}
		w, err := o.spawn(ctx, runDir, batch, log)
		if err != nil {
			log.WithField(logging.WorkerKey, batch.Index).WithError(err).Error("Failed to start worker, not starting the rest")
			spawnErr = err
			break
		}
		workers = append(workers, w)
	}

	joinErr := o.join(workers, log)

	parts := make([]model.DispatchStats, 0, len(res.Batches))
	for _, batch := range res.Batches {
		w := findWorker(workers, batch.Index)
		if w == nil {
			parts = append(parts, missingStats(&model.WorkerProcess{Index: batch.Index}, batch.Jobs, "worker not started"))
			continue
		}
		stats, err := ReadStats(w.StatsPath)
		if err != nil {
			log.WithField(logging.WorkerKey, w.Index).WithError(err).Warn("No stats from worker")
			parts = append(parts, missingStats(w, batch.Jobs, "worker produced no stats"))
			continue
		}
		if covered := reconcileStats(w, batch.Jobs, stats); covered.Skipped != stats.Skipped {
			log.WithFields(logrus.Fields{
				logging.WorkerKey: w.Index,
				"unaccounted":     covered.Skipped - stats.Skipped,
			}).Warn("Worker stats do not cover its batch, counting the rest as skipped")
			stats = covered
		}
		parts = append(parts, stats)
	}
	res.Stats = MergeStats(parts...)

	res.Workers = make([]model.WorkerProcess, len(workers))
	for i, w := range workers {
		res.Workers[i] = *w
	}

	switch {
	case spawnErr != nil:
		return res, spawnErr
	case joinErr != nil:
		return res, joinErr
	case res.Stats.Skipped > 0:
		return res, ctx.Err()
	default:
		return res, nil
	}
}

// spawn writes the batch file and starts one worker for it
func (o *Orchestrator) spawn(ctx context.Context, runDir string, batch model.Batch, log *logrus.Entry) (*model.WorkerProcess, error) {
	batchPath, err := WriteBatch(runDir, batch)
	if err != nil {
		return nil, err
	}

	inv := WorkerInvocation{
		Index:     batch.Index,
		BatchPath: batchPath,
		StatsPath: filepath.Join(runDir, fmt.Sprintf("stats-%03d.json", batch.Index)),
	}
	if o.ResultsDir != "" {
		inv.ResultsPath = filepath.Join(o.ResultsDir, ShardResultsFile(batch.Index))
	}

	command := o.Command
	if command == nil {
		command = SelfCommand(nil)
	}
	cmd, err := command(ctx, inv)
	if err != nil {
		return nil, &ecode.SpawnError{Index: batch.Index, Err: err}
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// Cancel is only set for commands built with exec.CommandContext
	if cmd.Cancel != nil {
		cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
		if cmd.WaitDelay == 0 {
			cmd.WaitDelay = workerStopGrace
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ecode.SpawnError{Index: batch.Index, Err: err}
	}

	w := &model.WorkerProcess{
		Index:     batch.Index,
		Cmd:       cmd,
		BatchPath: batchPath,
		StatsPath: inv.StatsPath,
		Jobs:      len(batch.Jobs),
	}
	log.WithFields(logrus.Fields{
		logging.WorkerKey: w.Index,
		logging.PIDKey:    w.PID(),
		"jobs":            w.Jobs,
	}).Debug("Worker started")
	return w, nil
}

// join waits for every worker and returns the first failure
func (o *Orchestrator) join(workers []*model.WorkerProcess, log *logrus.Entry) error {
	var g errgroup.Group
	for _, w := range workers {
		w := w
		g.Go(func() error {
			err := w.Cmd.Wait()
			wlog := log.WithFields(logrus.Fields{logging.WorkerKey: w.Index, logging.PIDKey: w.PID()})
			if err == nil {
				wlog.Debug("Worker finished")
				return nil
			}

			werr := &ecode.WorkerError{Index: w.Index, PID: w.PID(), ExitCode: -1, Err: err}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				werr.ExitCode = exitErr.ExitCode()
				werr.Err = nil
			}
			wlog.WithError(werr).Error("Worker failed")
			return werr
		})
	}
	return g.Wait()
}

func findWorker(workers []*model.WorkerProcess, index int) *model.WorkerProcess {
	for _, w := range workers {
		if w.Index == index {
			return w
		}
	}
	return nil
}
