package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Field keys shared across packages
const (
	RunIDKey  = "run_id"
	UnitKey   = "unit"
	JobKey    = "job"
	WorkerKey = "worker"
	PIDKey    = "pid"
)

// Config configures the process logger
type Config struct {
	Level  string `json:"level" yaml:"level"`   // logrus level name, e.g. "info"
	Format string `json:"format" yaml:"format"` // "text" or "json"
	Output string `json:"output" yaml:"output"` // "stderr", "stdout" or "file"
	File   string `json:"file" yaml:"file"`     // used when Output is "file"
}

var (
	// stdLogger is the global logger
	stdLogger *logrus.Logger
	// once ensures that the logger is initialized only once
	once sync.Once
)

// StdLogger returns the process logger. Until Init is called it writes text
// to stderr at info level.
func StdLogger() *logrus.Logger {
	once.Do(func() {
		stdLogger = logrus.New()
		stdLogger.SetOutput(os.Stderr)
		stdLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	})
	return stdLogger
}

// Entry returns a log entry with no fields, handy as a default
func Entry() *logrus.Entry {
	return logrus.NewEntry(StdLogger())
}

// Init applies c to the process logger and returns a cleanup func
func Init(c Config) (func(), error) {
	l := StdLogger()

	level := logrus.InfoLevel
	if c.Level != "" {
		parsed, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		level = parsed
	}
	l.SetLevel(level)

	switch c.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	cleanup := func() {}
	switch c.Output {
	case "stdout":
		l.SetOutput(os.Stdout)
	case "file":
		if c.File == "" {
			return nil, fmt.Errorf("log output is file but no log file configured")
		}
		if err := os.MkdirAll(filepath.Dir(c.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(c.File, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.SetOutput(f)
		cleanup = func() {
			l.SetOutput(os.Stderr)
			_ = f.Close()
		}
	default:
		l.SetOutput(os.Stderr)
	}
	return cleanup, nil
}

// SetOutput redirects the process logger, mainly for tests
func SetOutput(w io.Writer) {
	StdLogger().SetOutput(w)
}
