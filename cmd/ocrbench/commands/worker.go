package commands

import (
	"github.com/spf13/cobra"

	"go-ocr-throughput/internal/engine"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/pipeline"
)

// newWorkerCommand is the entrypoint of a worker process. The controller
// starts it with the engine configuration in the environment.
func (a *app) newWorkerCommand() *cobra.Command {
	var spec pipeline.WorkerSpec
	var unit int

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Process one batch file (started by procs)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engineSpec := a.cfg.EngineSpec()
			factory, err := engine.Lookup(engineSpec.Backend)
			if err != nil {
				return err
			}

			spec.Dispatch = pipeline.DispatchOptions{
				Backend:    engineSpec.Backend,
				Factory:    factory,
				Engine:     engine.OptionsFromSpec(engineSpec),
				Guard:      pipeline.GuardFromSpec(engineSpec),
				UnitOffset: unit,
				Logger:     logging.Entry(),
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			_, err = pipeline.RunWorker(ctx, spec)
			return err
		},
	}

	cmd.Flags().StringVar(&spec.BatchPath, "batch", "", "batch file listing one image path per line")
	cmd.Flags().StringVar(&spec.StatsPath, "stats", "", "where to write the worker's stats as JSON")
	cmd.Flags().StringVar(&spec.ResultsPath, "results", "", "where to write recognized text as JSON lines")
	cmd.Flags().IntVar(&unit, "unit", 0, "unit id reported for this worker")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}
