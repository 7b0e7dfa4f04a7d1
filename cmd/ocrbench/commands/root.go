package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-ocr-throughput/internal/config"
	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/store"
)

// Build information, set with -ldflags "-X .../commands.Version=..."
var (
	Version = "0.0.0"
	BuiltAt = "unknown"
)

// app is the state shared by every subcommand of one invocation
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	cleanups   []func()
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	rootCmd := &cobra.Command{
		Use:          "ocrbench",
		Short:        "Measure OCR throughput with goroutine or process pools",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file path (default ./ocrbench.yaml)")
	flags.String("ext", "", "image file extension to match")
	flags.String("backend", "", "engine backend")
	flags.String("lang", "", "recognition language")
	flags.Int("engine-threads", 0, "threads used inside each engine instance")
	flags.Bool("exclusive", false, "serialize recognize calls within a process")
	flags.Bool("silence", false, "discard engine output while recognizing")
	flags.Bool("results", false, "keep recognized text under the output directory")
	flags.String("timeout", "", "cancel the run after this duration, e.g. 10m")
	flags.String("store", "", "run history database path, empty disables")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format (text or json)")
	for name, key := range map[string]string{
		"ext":            "input.extension",
		"backend":        "engine.backend",
		"lang":           "engine.language",
		"engine-threads": "engine.threads",
		"exclusive":      "engine.exclusive",
		"silence":        "engine.silence",
		"results":        "output.results",
		"timeout":        "concurrency.run_timeout",
		"store":          "store.path",
		"log-level":      "logger.level",
		"log-format":     "logger.format",
	} {
		cobra.CheckErr(a.v.BindPFlag(key, flags.Lookup(name)))
	}

	rootCmd.AddCommand(
		a.newThreadsCommand(),
		a.newProcsCommand(),
		a.newWorkerCommand(),
		a.newRunsCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// load reads the configuration and sets up logging
func (a *app) load() error {
	cfg, err := config.LoadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	cleanup, err := logging.Init(*cfg.Logger)
	if err != nil {
		return err
	}
	a.cleanups = append(a.cleanups, cleanup)
	return nil
}

// openStore opens the run history database unless it is disabled
func (a *app) openStore() error {
	if a.cfg.Store.Path == "" {
		return nil
	}
	if err := store.InitDB(a.cfg.Store.Path); err != nil {
		return fmt.Errorf("failed to open run history %s: %w", a.cfg.Store.Path, err)
	}
	a.cleanups = append(a.cleanups, func() {
		if err := store.Close(); err != nil {
			logging.Entry().WithError(err).Warn("Failed to close run history")
		}
	})
	return nil
}

// close runs the cleanups once; RunE errors skip PersistentPostRun, so
// commands that open resources also defer it
func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// newVersionCommand creates the version command
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Version:", Version)
			fmt.Fprintln(out, "Built At:", BuiltAt)
			fmt.Fprintln(out, "Go Version:", runtime.Version())
		},
	}
}
