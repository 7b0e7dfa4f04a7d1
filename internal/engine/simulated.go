package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SimulatedBackend is the registry name of the simulated engine
const SimulatedBackend = "simulated"

var errSimulatedFailure = errors.New("simulated recognition failure")

func init() {
	Register(SimulatedBackend, NewSimulated)
}

// Simulated stands in for a real engine when benchmarking the dispatch
// layers. Each call checks the image exists, sleeps for the configured delay
// and fails for images whose base name matches FailPattern.
type Simulated struct {
	delay       time.Duration
	failPattern string
}

// NewSimulated builds a simulated engine. An invalid FailPattern is a
// construction error, like a missing model would be for a real backend.
func NewSimulated(opts Options) (Recognizer, error) {
	if opts.FailPattern != "" {
		if _, err := filepath.Match(opts.FailPattern, ""); err != nil {
			return nil, fmt.Errorf("fail pattern %q: %w", opts.FailPattern, err)
		}
	}
	return &Simulated{delay: opts.SimulatedDelay, failPattern: opts.FailPattern}, nil
}

func (s *Simulated) Name() string { return SimulatedBackend }

func (s *Simulated) Recognize(ctx context.Context, path string) (Outcome, error) {
	start := time.Now()
	if _, err := os.Stat(path); err != nil {
		return Outcome{}, err
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}
	}
	if s.failPattern != "" {
		if ok, _ := filepath.Match(s.failPattern, filepath.Base(path)); ok {
			return Outcome{}, errSimulatedFailure
		}
	}
	return Outcome{
		Path:       path,
		Text:       filepath.Base(path),
		Confidence: 1,
		Duration:   time.Since(start),
	}, nil
}

func (s *Simulated) Close() error { return nil }
