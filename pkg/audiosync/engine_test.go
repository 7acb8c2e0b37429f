package audiosync

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/audiosync/pkg/pcmbuffer"
)

const testSampleRate = 4000

func testPolicy() Policy {
	p := DefaultPolicy()
	p.SampleRate = testSampleRate
	return p
}

// music is low-pass filtered noise with a single clear autocorrelation peak.
func music(seed int64, seconds float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, int(seconds*testSampleRate))
	for i := range out {
		out[i] = rng.Float64()*2 - 1
		if i > 0 {
			out[i] = 0.7*out[i-1] + 0.3*out[i]
		}
	}
	return out
}

type fakeSource struct {
	data      []float64
	chunk     int
	delay     time.Duration
	startErr  error
	finishErr error
	live      bool
	// preload delivers all the data before Start returns.
	preload bool

	locker     sync.Mutex
	cancelFunc context.CancelFunc
	waitGroup  sync.WaitGroup
	starts     int
	pauses     int
	resumes    int
	stops      int
}

var (
	_ CaptureSource   = (*fakeSource)(nil)
	_ ReferenceSource = (*fakeSource)(nil)
)

func (s *fakeSource) Setup(context.Context, string) error { return nil }

func (s *fakeSource) Start(ctx context.Context, _ string, sink pcmbuffer.Sink) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	ctx, s.cancelFunc = context.WithCancel(ctx)
	if s.preload {
		s.feed(ctx, sink)
		return nil
	}
	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.feed(ctx, sink)
	}()
	return nil
}

func (s *fakeSource) feed(ctx context.Context, sink pcmbuffer.Sink) {
	chunk := s.chunk
	if chunk == 0 {
		chunk = 400
	}
	for off := 0; off < len(s.data); off += chunk {
		_, err := sink.Append(ctx, s.data[off:min(off+chunk, len(s.data))])
		if errors.Is(err, pcmbuffer.ErrFull) {
			sink.Finish(nil)
			return
		}
		if err != nil {
			sink.Finish(err)
			return
		}
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				sink.Finish(ctx.Err())
				return
			case <-time.After(s.delay):
			}
		}
	}
	if s.live {
		<-ctx.Done()
		sink.Finish(ctx.Err())
		return
	}
	sink.Finish(s.finishErr)
}

func (s *fakeSource) Pause(context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.pauses++
	return nil
}

func (s *fakeSource) Resume(context.Context) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.resumes++
	return nil
}

func (s *fakeSource) Stop(context.Context) error {
	s.locker.Lock()
	cancelFn := s.cancelFunc
	s.cancelFunc = nil
	s.stops++
	s.locker.Unlock()
	if cancelFn != nil {
		cancelFn()
	}
	s.waitGroup.Wait()
	return nil
}

func (s *fakeSource) counters() (starts, pauses, resumes, stops int) {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.starts, s.pauses, s.resumes, s.stops
}

// delayedScenario is a capture that started 3.5s into the track.
func delayedScenario(seed int64) (*fakeSource, *fakeSource) {
	return laggedScenario(seed, 10, 3500)
}

func laggedScenario(seed int64, seconds float64, lagMS int) (*fakeSource, *fakeSource) {
	track := music(seed, seconds)
	lag := lagMS * testSampleRate / 1000
	return &fakeSource{data: track[lag:], live: true}, &fakeSource{data: track}
}

func newTestEngine(t *testing.T, policy Policy, capture, reference *fakeSource) *Engine {
	e, err := New(policy, WithCaptureSource(capture), WithReferenceSource(reference))
	require.NoError(t, err)
	return e
}

func runAsync(ctx context.Context, e *Engine, track string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		result, _ := e.Run(ctx, track)
		ch <- result
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return Result{}
	}
}

func TestEngine_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("matched", func(t *testing.T) {
		capture, reference := delayedScenario(1)
		e := newTestEngine(t, testPolicy(), capture, reference)

		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.True(t, result.Success, spew.Sdump(result))
		assert.Equal(t, OutcomeMatched, result.Outcome)
		assert.Equal(t, int64(3500*testSampleRate/1000), result.LagSamples)
		assert.Equal(t, int64(3500), result.LagMS)
		assert.Equal(t, 2, result.Attempts)
		assert.Equal(t, StateIdle, e.Status())

		_, _, _, stops := capture.counters()
		assert.Equal(t, 1, stops)
		_, _, _, stops = reference.counters()
		assert.Equal(t, 1, stops)
	})

	t.Run("gccphat", func(t *testing.T) {
		capture, reference := delayedScenario(2)
		policy := testPolicy()
		policy.Algorithm = AlgorithmGCCPHAT
		e := newTestEngine(t, policy, capture, reference)

		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.True(t, result.Success, spew.Sdump(result))
		assert.Equal(t, int64(3500), result.LagMS)
	})

	t.Run("buffers_filled_before_the_first_window", func(t *testing.T) {
		capture, reference := laggedScenario(15, 25, 3500)
		capture.live = false
		capture.preload, reference.preload = true, true
		e := newTestEngine(t, testPolicy(), capture, reference)

		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.True(t, result.Success, spew.Sdump(result))
		assert.Equal(t, int64(3500), result.LagMS)
		assert.Equal(t, 2, result.Attempts)
	})

	t.Run("matched_at_the_last_window", func(t *testing.T) {
		capture, reference := laggedScenario(16, 30, 13000)
		policy := testPolicy()
		e := newTestEngine(t, policy, capture, reference)

		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.True(t, result.Success, spew.Sdump(result))
		assert.Equal(t, int64(13000), result.LagMS)
		assert.Equal(t, len(policy.Schedule()), result.Attempts)
	})

	t.Run("no_match", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(),
			&fakeSource{data: music(3, 2)},
			&fakeSource{data: music(4, 2)},
		)
		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, OutcomeNoMatch, result.Outcome)
		assert.Equal(t, 1, result.Attempts)
	})

	t.Run("no_match_after_max_duration", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(),
			&fakeSource{data: music(5, 20), live: true},
			&fakeSource{data: music(6, 20)},
		)
		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoMatch, result.Outcome)
		assert.Equal(t, len(testPolicy().Schedule()), result.Attempts)
	})

	t.Run("silence", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(),
			&fakeSource{data: make([]float64, 4*testSampleRate)},
			&fakeSource{data: music(7, 4)},
		)
		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, OutcomeNoMatch, result.Outcome)
	})

	t.Run("device_error", func(t *testing.T) {
		capture := &fakeSource{startErr: fmt.Errorf("%w: no such device", ErrDevice)}
		reference := &fakeSource{data: music(8, 10)}
		e := newTestEngine(t, testPolicy(), capture, reference)

		result, err := e.Run(ctx, "track")
		assert.ErrorIs(t, err, ErrDevice)
		assert.False(t, result.Success)
		assert.Equal(t, OutcomeFault, result.Outcome)
		assert.Equal(t, StateIdle, e.Status())

		_, _, _, stops := reference.counters()
		assert.Equal(t, 1, stops)
	})

	t.Run("resolution_error", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(),
			&fakeSource{live: true},
			&fakeSource{finishErr: fmt.Errorf("%w: not found", ErrResolution)},
		)
		result, err := e.Run(ctx, "track")
		assert.ErrorIs(t, err, ErrResolution)
		assert.False(t, result.Success)
		assert.Equal(t, OutcomeFault, result.Outcome)
	})

	t.Run("capture_fails_while_running", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(),
			&fakeSource{data: music(9, 1), finishErr: fmt.Errorf("%w: server died", ErrDevice)},
			&fakeSource{data: music(9, 10)},
		)
		result, err := e.Run(ctx, "track")
		assert.ErrorIs(t, err, ErrDevice)
		assert.Equal(t, OutcomeFault, result.Outcome)
	})

	t.Run("debug_dump", func(t *testing.T) {
		capture, reference := delayedScenario(10)
		policy := testPolicy()
		policy.DebugDir = t.TempDir()
		e := newTestEngine(t, policy, capture, reference)
		e.SetDebug(true)
		assert.True(t, e.Debug())

		result, err := e.Run(ctx, "track")
		require.NoError(t, err)
		require.True(t, result.Success)

		entries, err := os.ReadDir(policy.DebugDir)
		require.NoError(t, err)
		assert.Len(t, entries, result.Attempts)
	})
}

func TestEngine_Control(t *testing.T) {
	ctx := context.Background()

	t.Run("busy", func(t *testing.T) {
		capture := &fakeSource{live: true}
		e := newTestEngine(t, testPolicy(), capture, &fakeSource{live: true})

		resultCh := runAsync(ctx, e, "first")
		require.NoError(t, e.WaitForState(ctx, StateRunning))
		require.Eventually(t, func() bool {
			starts, _, _, _ := capture.counters()
			return starts == 1
		}, time.Second, time.Millisecond)

		result, err := e.Run(ctx, "second")
		assert.ErrorIs(t, err, ErrBusy)
		assert.Equal(t, OutcomeBusy, result.Outcome)
		assert.False(t, result.Success)
		starts, _, _, _ := capture.counters()
		assert.Equal(t, 1, starts)

		e.Abort(ctx)
		result = waitResult(t, resultCh)
		assert.Equal(t, OutcomeAborted, result.Outcome)
	})

	t.Run("abort", func(t *testing.T) {
		capture := &fakeSource{live: true}
		reference := &fakeSource{live: true}
		e := newTestEngine(t, testPolicy(), capture, reference)

		e.Abort(ctx)
		assert.Equal(t, StateIdle, e.Status())

		resultCh := runAsync(ctx, e, "track")
		require.NoError(t, e.WaitForState(ctx, StateRunning))
		e.Abort(ctx)
		e.Abort(ctx)

		result := waitResult(t, resultCh)
		assert.False(t, result.Success)
		assert.Equal(t, OutcomeAborted, result.Outcome)
		assert.Equal(t, StateIdle, e.Status())

		_, _, _, stops := capture.counters()
		assert.Equal(t, 1, stops)
		_, _, _, stops = reference.counters()
		assert.Equal(t, 1, stops)

		e.Abort(ctx)
		assert.Equal(t, StateIdle, e.Status())
	})

	t.Run("abort_while_paused", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(), &fakeSource{live: true}, &fakeSource{live: true})
		resultCh := runAsync(ctx, e, "track")
		require.NoError(t, e.WaitForState(ctx, StateRunning))
		require.NoError(t, e.Pause(ctx))
		assert.Equal(t, StatePaused, e.Status())

		e.Abort(ctx)
		result := waitResult(t, resultCh)
		assert.Equal(t, OutcomeAborted, result.Outcome)
		assert.Equal(t, StateIdle, e.Status())
	})

	t.Run("caller_context_cancelled", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(), &fakeSource{live: true}, &fakeSource{live: true})
		ctx, cancelFn := context.WithCancel(ctx)
		resultCh := runAsync(ctx, e, "track")
		require.NoError(t, e.WaitForState(ctx, StateRunning))
		cancelFn()
		result := waitResult(t, resultCh)
		assert.Equal(t, OutcomeAborted, result.Outcome)
	})

	t.Run("pause_when_idle", func(t *testing.T) {
		e := newTestEngine(t, testPolicy(), &fakeSource{}, &fakeSource{})
		require.NoError(t, e.Pause(ctx))
		assert.Equal(t, StateIdle, e.Status())
		require.NoError(t, e.Resume(ctx))
		assert.Equal(t, StateIdle, e.Status())
	})

	t.Run("pause_resume_is_transparent", func(t *testing.T) {
		capture, reference := delayedScenario(11)
		expected, err := newTestEngine(t, testPolicy(), capture, reference).Run(ctx, "track")
		require.NoError(t, err)
		require.True(t, expected.Success)

		capture, reference = delayedScenario(11)
		capture.delay, reference.delay = time.Millisecond, time.Millisecond
		e := newTestEngine(t, testPolicy(), capture, reference)
		resultCh := runAsync(ctx, e, "track")
		require.NoError(t, e.WaitForState(ctx, StateRunning))

		require.NoError(t, e.Pause(ctx))
		assert.Equal(t, StatePaused, e.Status())
		require.NoError(t, e.Resume(ctx))
		assert.Equal(t, StateRunning, e.Status())

		result := waitResult(t, resultCh)
		result.Attempts = expected.Attempts
		assert.Equal(t, expected, result)
	})

	t.Run("pause_suspends_accumulation", func(t *testing.T) {
		capture := &fakeSource{data: music(12, 10), delay: time.Millisecond, chunk: 10}
		reference := &fakeSource{data: music(13, 10), delay: time.Millisecond, chunk: 10}
		e := newTestEngine(t, testPolicy(), capture, reference)
		resultCh := runAsync(ctx, e, "track")
		require.NoError(t, e.WaitForState(ctx, StateRunning))

		require.NoError(t, e.Pause(ctx))
		e.locker.Lock()
		sess := e.session
		e.locker.Unlock()
		require.NotNil(t, sess)
		captureLen, referenceLen := sess.captureBuffer.Len(), sess.referenceBuffer.Len()
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, captureLen, sess.captureBuffer.Len())
		assert.Equal(t, referenceLen, sess.referenceBuffer.Len())

		require.Eventually(t, func() bool {
			_, pauses, _, _ := capture.counters()
			return pauses == 1
		}, time.Second, time.Millisecond)

		require.NoError(t, e.Resume(ctx))
		_, _, resumes, _ := capture.counters()
		assert.Equal(t, 1, resumes)

		e.Abort(ctx)
		waitResult(t, resultCh)
	})
}

func TestDefault(t *testing.T) {
	ctx := context.Background()
	capture, reference := delayedScenario(14)
	e := newTestEngine(t, testPolicy(), capture, reference)

	prev := Default()
	SetDefault(e)
	defer SetDefault(prev)

	require.NoError(t, Setup(ctx, "some app"))
	assert.Equal(t, "some app", e.Device())

	SetDebug(true)
	assert.True(t, GetDebug())
	SetDebug(false)

	Abort(ctx)
	Pause(ctx)
	Resume(ctx)
	assert.Equal(t, StateIdle, GetStatus())

	lagMS, success := Run(ctx, "track")
	assert.True(t, success)
	assert.Equal(t, int64(3500), lagMS)
	assert.Equal(t, StateIdle, GetStatus())
}
