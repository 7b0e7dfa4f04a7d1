// Package engine wraps external image-to-text backends behind a narrow
// contract and manages their lifecycle per execution unit.
//
// A backend is expensive to construct (model load) and cheap to call. Each
// execution unit builds exactly one through a Handle and keeps it for its
// whole lifetime; handles are never shared between units.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go-ocr-throughput/internal/model"
)

var ErrUnknownBackend = errors.New("unknown engine backend")

// Options are fixed at construction time for every engine of a run
type Options struct {
	AngleCorrection bool
	Language        string
	TessdataPrefix  string

	// simulated backend only
	SimulatedDelay time.Duration
	FailPattern    string
}

// OptionsFromSpec converts the run configuration into engine options
func OptionsFromSpec(spec model.EngineSpec) Options {
	return Options{
		AngleCorrection: spec.AngleCorrection,
		Language:        spec.Language,
		TessdataPrefix:  spec.TessdataPrefix,
		SimulatedDelay:  spec.SimulatedDelay,
		FailPattern:     spec.FailPattern,
	}
}

// Outcome is the structured result of recognizing one image
type Outcome struct {
	Path       string        `json:"path"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
}

// Recognizer is a constructed engine instance. Implementations are not
// required to be safe for concurrent use; a Handle gives each execution
// unit its own instance.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, path string) (Outcome, error)
	Close() error
}

// Factory performs the expensive construction of a Recognizer
type Factory func(opts Options) (Recognizer, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend available by name. Backends call it from init.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("engine: Register factory is nil for " + name)
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Lookup returns the factory registered under name
func Lookup(name string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, backendsLocked())
	}
	return f, nil
}

// Backends lists registered backend names in sorted order
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return backendsLocked()
}

func backendsLocked() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
