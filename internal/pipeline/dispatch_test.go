package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ocr-throughput/internal/ecode"
	"go-ocr-throughput/internal/engine"
	"go-ocr-throughput/internal/model"
)

// probe records what a set of engines built by its factory did
type probe struct {
	inits  atomic.Int64
	calls  atomic.Int64
	mu     sync.Mutex
	seen   map[string]int
	delay  time.Duration
	failIf func(path string) bool
	initFn func(n int64) error // n is the 1-based construction count
}

func newProbe() *probe {
	return &probe{seen: make(map[string]int)}
}

func (p *probe) factory(opts engine.Options) (engine.Recognizer, error) {
	n := p.inits.Add(1)
	if p.initFn != nil {
		if err := p.initFn(n); err != nil {
			return nil, err
		}
	}
	return &probeRecognizer{p: p}, nil
}

type probeRecognizer struct{ p *probe }

func (r *probeRecognizer) Name() string { return "probe" }

func (r *probeRecognizer) Recognize(ctx context.Context, path string) (engine.Outcome, error) {
	r.p.calls.Add(1)
	r.p.mu.Lock()
	r.p.seen[path]++
	r.p.mu.Unlock()
	if r.p.delay > 0 {
		time.Sleep(r.p.delay)
	}
	if r.p.failIf != nil && r.p.failIf(path) {
		return engine.Outcome{}, errors.New("unreadable image")
	}
	return engine.Outcome{Path: path, Text: filepath.Base(path), Confidence: 90}, nil
}

func (r *probeRecognizer) Close() error { return nil }

func (p *probe) options(concurrency int) DispatchOptions {
	return DispatchOptions{
		Concurrency: concurrency,
		Backend:     "probe",
		Factory:     p.factory,
		Logger:      quietLogger(),
	}
}

func TestDispatchEveryJobOnce(t *testing.T) {
	p := newProbe()
	p.delay = 2 * time.Millisecond
	jobs := fakeJobs(10)

	stats, err := Dispatch(context.Background(), jobs, p.options(4))
	require.NoError(t, err)

	assert.Equal(t, int64(10), p.calls.Load())
	for _, job := range jobs {
		assert.Equal(t, 1, p.seen[string(job)], string(job))
	}
	assert.Equal(t, int64(10), stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Skipped)

	// one engine per unit that did work, never more than the unit count
	assert.Len(t, stats.Units, 4)
	var busyUnits, unitJobs int64
	for _, u := range stats.Units {
		assert.LessOrEqual(t, u.Inits, int64(1))
		if u.Jobs > 0 {
			busyUnits++
			assert.Equal(t, int64(1), u.Inits)
		}
		unitJobs += u.Jobs
	}
	assert.Equal(t, busyUnits, p.inits.Load())
	assert.Equal(t, int64(10), unitJobs)
}

func TestDispatchCapsUnitsAtJobCount(t *testing.T) {
	p := newProbe()
	stats, err := Dispatch(context.Background(), fakeJobs(2), p.options(8))
	require.NoError(t, err)
	assert.Len(t, stats.Units, 2)
	assert.LessOrEqual(t, p.inits.Load(), int64(2))
}

func TestDispatchNoJobs(t *testing.T) {
	p := newProbe()
	stats, err := Dispatch(context.Background(), nil, p.options(4))
	require.NoError(t, err)
	assert.Zero(t, stats.Processed())
	assert.Zero(t, p.inits.Load())
}

func TestDispatchFailureIsolation(t *testing.T) {
	p := newProbe()
	jobs := fakeJobs(6)
	bad := string(jobs[2])
	p.failIf = func(path string) bool { return path == bad }

	stats, err := Dispatch(context.Background(), jobs, p.options(1))
	require.NoError(t, err)
	assert.False(t, ecode.IsFatal(err))

	assert.Equal(t, int64(6), p.calls.Load())
	assert.Equal(t, 1, p.seen[string(jobs[3])])
	assert.Equal(t, int64(5), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, model.Job(bad), stats.Failures[0].Job)
	assert.Equal(t, model.StageRecognize, stats.Failures[0].Stage)
	assert.Contains(t, stats.Failures[0].Message, "unreadable image")
}

func TestDispatchEngineInitFailureStopsOnlyThatUnit(t *testing.T) {
	p := newProbe()
	p.delay = 5 * time.Millisecond
	p.initFn = func(n int64) error {
		if n == 1 {
			return errors.New("model files missing")
		}
		return nil
	}
	jobs := fakeJobs(12)

	stats, err := Dispatch(context.Background(), jobs, p.options(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ecode.ErrEngineInit)
	var initErr *ecode.EngineInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "probe", initErr.Backend)
	assert.True(t, ecode.IsFatal(err))

	// the failed unit loses the job it took; healthy units drain the rest
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(11), stats.Succeeded)
	assert.Zero(t, stats.Skipped)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, model.StageEngineInit, stats.Failures[0].Stage)
}

func TestDispatchAllUnitsFailInitSkipsRest(t *testing.T) {
	p := newProbe()
	p.initFn = func(int64) error { return errors.New("no engine") }

	stats, err := Dispatch(context.Background(), fakeJobs(5), p.options(2))
	require.ErrorIs(t, err, ecode.ErrEngineInit)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(3), stats.Skipped)
	assert.Zero(t, stats.Succeeded)

	skipped := 0
	for _, f := range stats.Failures {
		if f.Stage == model.StageSkipped {
			skipped++
			assert.Equal(t, -1, f.Unit)
		}
	}
	assert.Equal(t, 3, skipped)
}

func TestDispatchCancellation(t *testing.T) {
	p := newProbe()
	p.delay = 20 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	stats, err := Dispatch(ctx, fakeJobs(20), p.options(1))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, stats.Skipped, int64(0))
	assert.Equal(t, int64(20), stats.Succeeded+stats.Failed+stats.Skipped)
}

func TestDispatchCancelAfterLastJobIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	factory := func(engine.Options) (engine.Recognizer, error) {
		return recognizeFunc(func(_ context.Context, path string) (engine.Outcome, error) {
			if calls.Add(1) == 3 {
				cancel()
			}
			return engine.Outcome{Path: path}, nil
		}), nil
	}

	opts := DispatchOptions{Concurrency: 1, Factory: factory, Logger: quietLogger()}
	stats, err := Dispatch(ctx, fakeJobs(3), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Succeeded)
	assert.Zero(t, stats.Skipped)
}

func TestDispatchUnitOffset(t *testing.T) {
	p := newProbe()
	opts := p.options(1)
	opts.UnitOffset = 7

	stats, err := Dispatch(context.Background(), fakeJobs(2), opts)
	require.NoError(t, err)
	require.Len(t, stats.Units, 1)
	assert.Equal(t, 7, stats.Units[0].Unit)
}

type memorySink struct {
	mu  sync.Mutex
	out []engine.Outcome
}

func (s *memorySink) Put(o engine.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, o)
	return nil
}

func TestDispatchSinkGetsSuccessesOnly(t *testing.T) {
	p := newProbe()
	p.failIf = func(path string) bool { return strings.HasSuffix(path, "001.jpg") }
	sink := &memorySink{}
	opts := p.options(3)
	opts.Sink = sink

	_, err := Dispatch(context.Background(), fakeJobs(4), opts)
	require.NoError(t, err)
	assert.Len(t, sink.out, 3)
	for _, o := range sink.out {
		assert.NotEqual(t, "001.jpg", o.Text)
	}
}

func TestDispatchExclusiveGuard(t *testing.T) {
	var inFlight, peak atomic.Int64
	factory := func(engine.Options) (engine.Recognizer, error) {
		return recognizeFunc(func(ctx context.Context, path string) (engine.Outcome, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			return engine.Outcome{Path: path}, nil
		}), nil
	}

	opts := DispatchOptions{
		Concurrency: 4,
		Factory:     factory,
		Guard:       engine.Guard{Exclusive: true},
		Logger:      quietLogger(),
	}
	stats, err := Dispatch(context.Background(), fakeJobs(12), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.Succeeded)
	assert.Equal(t, int64(1), peak.Load())
}

type recognizeFunc func(ctx context.Context, path string) (engine.Outcome, error)

func (f recognizeFunc) Name() string { return "func" }
func (f recognizeFunc) Recognize(ctx context.Context, path string) (engine.Outcome, error) {
	return f(ctx, path)
}
func (f recognizeFunc) Close() error { return nil }
