package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle is the per-execution-unit cache of one engine. The first Acquire
// constructs the engine; later calls return the cached instance (or the
// cached construction error) without rebuilding.
type Handle struct {
	factory Factory
	opts    Options
	guard   Guard

	once     sync.Once
	rec      Recognizer
	err      error
	inits    atomic.Int64
	initTime time.Duration
	closed   atomic.Bool
}

// NewHandle returns an empty handle; nothing is constructed until Acquire
func NewHandle(factory Factory, opts Options, guard Guard) *Handle {
	return &Handle{factory: factory, opts: opts, guard: guard}
}

// Acquire returns the unit's engine, constructing it on first use
func (h *Handle) Acquire() (Recognizer, error) {
	h.once.Do(func() {
		start := time.Now()
		h.inits.Add(1)
		rec, err := h.factory(h.opts)
		h.initTime = time.Since(start)
		if err != nil {
			h.err = err
			return
		}
		h.rec = h.guard.Wrap(rec)
	})
	return h.rec, h.err
}

// Inits reports how many times the engine was constructed (0 or 1)
func (h *Handle) Inits() int64 {
	return h.inits.Load()
}

// InitDuration reports how long construction took. Zero before Acquire.
func (h *Handle) InitDuration() time.Duration {
	if h.inits.Load() == 0 {
		return 0
	}
	h.once.Do(func() {})
	return h.initTime
}

// Close releases the engine if it was built
func (h *Handle) Close() error {
	if h.inits.Load() == 0 || !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	// waits for an in-flight construction to finish
	h.once.Do(func() {})
	if h.rec == nil {
		return nil
	}
	return h.rec.Close()
}
