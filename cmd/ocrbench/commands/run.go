package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
	"go-ocr-throughput/internal/pipeline"
)

func (a *app) newThreadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads [dir]",
		Short: "Run every image through a pool of goroutines sharing one process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, model.ModeThreads)
		},
	}
	cmd.Flags().IntP("threads", "t", 0, "number of goroutine units (default: number of CPUs)")
	cobra.CheckErr(a.v.BindPFlag("concurrency.threads", cmd.Flags().Lookup("threads")))
	return cmd
}

func (a *app) newProcsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "procs [dir]",
		Aliases: []string{"processes"},
		Short:   "Split images into contiguous chunks, one worker process per chunk",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, model.ModeProcesses)
		},
	}
	cmd.Flags().IntP("procs", "p", 0, "number of worker processes (default: min(4, CPUs))")
	cobra.CheckErr(a.v.BindPFlag("concurrency.processes", cmd.Flags().Lookup("procs")))
	return cmd
}

// run executes one benchmark run in mode
func (a *app) run(cmd *cobra.Command, args []string, mode model.Mode) error {
	defer a.close()
	if err := a.openStore(); err != nil {
		return err
	}

	spec := a.cfg.RunSpec(mode)
	if len(args) == 1 {
		spec.InputDir = args[0]
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	_, err := pipeline.Run(ctx, spec, pipeline.Deps{
		WorkerEnv: a.cfg.WorkerEnv(),
		Stdout:    cmd.OutOrStdout(),
		Logger:    logging.Entry(),
	})
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
