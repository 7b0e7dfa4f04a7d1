package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// processLock is the per-process exclusivity lock. Only one guarded
// Recognize call may be in flight in this process at a time.
var processLock sync.Mutex

// Guard decides how recognize calls interact with the rest of the process.
// Silence redirects the process-wide stdout and stderr descriptors, so it
// always implies Exclusive.
type Guard struct {
	Exclusive bool
	Silence   bool
}

// Wrap applies the guard to rec. An empty guard returns rec unchanged.
func (g Guard) Wrap(rec Recognizer) Recognizer {
	if !g.Exclusive && !g.Silence {
		return rec
	}
	return &guarded{Recognizer: rec, silence: g.Silence}
}

type guarded struct {
	Recognizer
	silence bool
}

func (g *guarded) Recognize(ctx context.Context, path string) (Outcome, error) {
	processLock.Lock()
	defer processLock.Unlock()

	if g.silence {
		restore, err := suppressStdStreams()
		if err != nil {
			return Outcome{}, fmt.Errorf("suppress engine output: %w", err)
		}
		defer restore()
	}
	return g.Recognizer.Recognize(ctx, path)
}

// threadHintVars are read by the OpenMP runtime tesseract links against
var threadHintVars = []string{"OMP_THREAD_LIMIT", "OMP_NUM_THREADS"}

// ThreadHintEnv returns the environment entries capping an engine's internal
// numeric-library threads at n. It returns nil for n <= 0.
func ThreadHintEnv(n int) []string {
	if n <= 0 {
		return nil
	}
	env := make([]string, 0, len(threadHintVars))
	for _, key := range threadHintVars {
		env = append(env, key+"="+strconv.Itoa(n))
	}
	return env
}

// ThreadHintActive reports whether this process was started with the thread
// cap for n already in its environment. The OpenMP runtime reads it when the
// library loads, so setting it later has no effect.
func ThreadHintActive(n int) bool {
	if n <= 0 {
		return true
	}
	for _, key := range threadHintVars {
		if os.Getenv(key) != strconv.Itoa(n) {
			return false
		}
	}
	return true
}
