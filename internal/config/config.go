// Package config loads ocrbench settings from a config file, OCRBENCH_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"go-ocr-throughput/internal/logging"
	"go-ocr-throughput/internal/model"
	"go-ocr-throughput/pkg/utils"
)

// EnvPrefix prefixes every environment variable, e.g. OCRBENCH_ENGINE_BACKEND
const EnvPrefix = "OCRBENCH"

// Config is the full ocrbench configuration
type Config struct {
	Input       *Input       `validate:"required"`
	Concurrency *Concurrency `validate:"required"`
	Engine      *Engine      `validate:"required"`
	Output      *Output      `validate:"required"`
	Store       *Store       `validate:"required"`
	Logger      *logging.Config
	API         *API         `validate:"required"`
	Viper       *viper.Viper `validate:"-"`
}

// Input selects the jobs
type Input struct {
	Dir       string `validate:"required"`
	Extension string `validate:"required,startswith=."`
}

// Concurrency sizes the pools
type Concurrency struct {
	Threads    int `validate:"gte=1"`
	Processes  int `validate:"gte=1"`
	RunTimeout time.Duration
}

// Engine configures the recognition backend
type Engine struct {
	Backend         string `validate:"required"`
	Language        string `validate:"required"`
	AngleCorrection bool
	TessdataPrefix  string
	Threads         int `validate:"gte=0"`
	Exclusive       bool
	Silence         bool
	SimulatedDelay  time.Duration
	FailPattern     string
}

// Output controls result retention
type Output struct {
	Dir     string
	Results bool
}

// Store locates the run history database; an empty path disables it
type Store struct {
	Path string
}

// API configures the history server
type API struct {
	Addr string `validate:"required"`
}

// DefaultProcesses caps the default worker count: every worker loads its own
// engine, so more workers than this rarely pay off
const DefaultProcesses = 4

// New returns a viper instance with defaults and environment binding set up
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// workers receive empty values explicitly, e.g. OCRBENCH_ENGINE_FAIL_PATTERN=
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	cpus := runtime.NumCPU()

	v.SetDefault("input.dir", "images")
	v.SetDefault("input.extension", ".jpg")

	v.SetDefault("concurrency.threads", cpus)
	v.SetDefault("concurrency.processes", min(DefaultProcesses, cpus))
	v.SetDefault("concurrency.run_timeout", "")

	v.SetDefault("engine.backend", "tesseract")
	v.SetDefault("engine.language", "en")
	v.SetDefault("engine.angle_correction", true)
	v.SetDefault("engine.tessdata_prefix", "")
	v.SetDefault("engine.threads", 1)
	v.SetDefault("engine.exclusive", false)
	v.SetDefault("engine.silence", false)
	v.SetDefault("engine.simulated_delay", "")
	v.SetDefault("engine.fail_pattern", "")

	v.SetDefault("output.dir", "outputs")
	v.SetDefault("output.results", false)

	v.SetDefault("store.path", "data/ocrbench.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.file", "")

	v.SetDefault("api.addr", ":8080")
}

// durationKeys hold optional durations; empty means unset
var durationKeys = []string{"concurrency.run_timeout", "engine.simulated_delay"}

// LoadConfig reads the config file into v and builds a validated Config.
// With an empty configPath, ./ocrbench.yaml is used when present.
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("ocrbench")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	for _, key := range durationKeys {
		if raw := v.GetString(key); raw != "" {
			if d, err := time.ParseDuration(raw); err != nil || d < 0 {
				return nil, fmt.Errorf("invalid configuration: %s: %q is not a non-negative duration such as 10m", key, raw)
			}
		}
	}

	cfg := &Config{
		Input:       getInputConfig(v),
		Concurrency: getConcurrencyConfig(v),
		Engine:      getEngineConfig(v),
		Output:      getOutputConfig(v),
		Store:       &Store{Path: v.GetString("store.path")},
		Logger:      getLoggerConfig(v),
		API:         &API{Addr: v.GetString("api.addr")},
		Viper:       v,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getInputConfig(v *viper.Viper) *Input {
	return &Input{
		Dir:       v.GetString("input.dir"),
		Extension: v.GetString("input.extension"),
	}
}

func getConcurrencyConfig(v *viper.Viper) *Concurrency {
	return &Concurrency{
		Threads:    v.GetInt("concurrency.threads"),
		Processes:  v.GetInt("concurrency.processes"),
		RunTimeout: utils.ParseDuration(v.GetString("concurrency.run_timeout"), 0),
	}
}

func getEngineConfig(v *viper.Viper) *Engine {
	return &Engine{
		Backend:         v.GetString("engine.backend"),
		Language:        v.GetString("engine.language"),
		AngleCorrection: v.GetBool("engine.angle_correction"),
		TessdataPrefix:  v.GetString("engine.tessdata_prefix"),
		Threads:         v.GetInt("engine.threads"),
		Exclusive:       v.GetBool("engine.exclusive"),
		Silence:         v.GetBool("engine.silence"),
		SimulatedDelay:  utils.ParseDuration(v.GetString("engine.simulated_delay"), 0),
		FailPattern:     v.GetString("engine.fail_pattern"),
	}
}

func getOutputConfig(v *viper.Viper) *Output {
	return &Output{
		Dir:     v.GetString("output.dir"),
		Results: v.GetBool("output.results"),
	}
}

func getLoggerConfig(v *viper.Viper) *logging.Config {
	return &logging.Config{
		Level:  v.GetString("logger.level"),
		Format: v.GetString("logger.format"),
		Output: v.GetString("logger.output"),
		File:   v.GetString("logger.file"),
	}
}

// ------------------- Derived specs -------------------

// EngineSpec converts the engine section
func (c *Config) EngineSpec() model.EngineSpec {
	e := c.Engine
	return model.EngineSpec{
		Backend:         e.Backend,
		Language:        e.Language,
		AngleCorrection: e.AngleCorrection,
		TessdataPrefix:  e.TessdataPrefix,
		Threads:         e.Threads,
		Exclusive:       e.Exclusive,
		Silence:         e.Silence,
		SimulatedDelay:  e.SimulatedDelay,
		FailPattern:     e.FailPattern,
	}
}

// RunSpec builds the spec of a run in the given mode
func (c *Config) RunSpec(mode model.Mode) model.RunSpec {
	concurrency := c.Concurrency.Threads
	if mode == model.ModeProcesses {
		concurrency = c.Concurrency.Processes
	}
	return model.RunSpec{
		InputDir:    c.Input.Dir,
		Extension:   c.Input.Extension,
		Mode:        mode,
		Concurrency: concurrency,
		RunTimeout:  c.Concurrency.RunTimeout,
		Engine:      c.EngineSpec(),
		Output:      model.OutputSpec{Dir: c.Output.Dir, Results: c.Output.Results},
	}
}

// WorkerEnv returns the environment that makes a worker process load the
// same engine and logger settings as this config, whatever config file the
// controller itself was started with
func (c *Config) WorkerEnv() []string {
	e := c.Engine
	vars := [][2]string{
		{"engine.backend", e.Backend},
		{"engine.language", e.Language},
		{"engine.angle_correction", strconv.FormatBool(e.AngleCorrection)},
		{"engine.tessdata_prefix", e.TessdataPrefix},
		{"engine.threads", strconv.Itoa(e.Threads)},
		{"engine.exclusive", strconv.FormatBool(e.Exclusive)},
		{"engine.silence", strconv.FormatBool(e.Silence)},
		{"engine.simulated_delay", e.SimulatedDelay.String()},
		{"engine.fail_pattern", e.FailPattern},
		{"logger.level", c.Logger.Level},
		{"logger.format", c.Logger.Format},
		{"logger.output", c.Logger.Output},
		{"logger.file", c.Logger.File},
	}

	env := make([]string, len(vars))
	for i, kv := range vars {
		env[i] = EnvVar(kv[0]) + "=" + kv[1]
	}
	return env
}

// EnvVar returns the environment variable name of a config key
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
