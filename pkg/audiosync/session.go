package audiosync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/debugdump"
	"github.com/xaionaro-go/audiosync/pkg/pcmbuffer"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"golang.org/x/sync/errgroup"
)

// Session is a single synchronization attempt.
type Session struct {
	Track     string
	Device    string
	CreatedAt time.Time

	ctx             context.Context
	cancelFunc      context.CancelFunc
	policy          Policy
	captureBuffer   *pcmbuffer.Buffer
	referenceBuffer *pcmbuffer.Buffer

	sourcesLocker  sync.Mutex
	sourcesStarted bool
	sourcesPaused  bool
}

func newSession(
	ctx context.Context,
	policy Policy,
	track string,
	device string,
) *Session {
	ctx, cancelFn := context.WithCancel(ctx)
	capacity := int(policy.Encoding().SamplesForDuration(policy.MaxDuration))
	return &Session{
		Track:           track,
		Device:          device,
		CreatedAt:       time.Now(),
		ctx:             ctx,
		cancelFunc:      cancelFn,
		policy:          policy,
		captureBuffer:   pcmbuffer.New(pcmbuffer.ProducerCapture, capacity),
		referenceBuffer: pcmbuffer.New(pcmbuffer.ProducerReference, capacity),
	}
}

func (sess *Session) run(e *Engine) (Result, error) {
	ctx := sess.ctx

	if err := sess.startSources(ctx, e); err != nil {
		if ctx.Err() != nil {
			return Result{Outcome: OutcomeAborted}, nil
		}
		return Result{Outcome: OutcomeFault}, err
	}

	encoding := sess.policy.Encoding()
	var last syncer.ShiftResult
	attempts := 0
	for _, windowDuration := range sess.policy.Schedule() {
		n := int(encoding.SamplesForDuration(windowDuration))
		final, err := sess.waitForWindow(ctx, e, n)
		if err != nil {
			if ctx.Err() != nil {
				return sess.result(OutcomeAborted, last, attempts), nil
			}
			return sess.result(OutcomeFault, last, attempts), err
		}

		captureWindow := sess.captureBuffer.Snapshot(n)
		referenceWindow := sess.referenceBuffer.Snapshot(n)
		shift, err := e.syncer.CalculateShift(ctx, captureWindow, referenceWindow)
		if err != nil {
			if ctx.Err() != nil {
				return sess.result(OutcomeAborted, last, attempts), nil
			}
			return sess.result(OutcomeFault, last, attempts), fmt.Errorf("unable to correlate: %w", err)
		}
		attempts++
		last = shift
		logger.Debugf(ctx, "attempt %d (window %v): lag %d samples, confidence %.3f, overlap %d, peak %.3f, success %v",
			attempts, windowDuration, shift.Lag, shift.Confidence, shift.Overlap, shift.PeakScore, shift.Success)

		if e.Debug() {
			sess.dump(ctx, attempts, captureWindow, referenceWindow, shift)
		}

		if shift.Success {
			return sess.result(OutcomeMatched, shift, attempts), nil
		}
		if final {
			logger.Debugf(ctx, "both sources are exhausted")
			break
		}
	}
	return sess.result(OutcomeNoMatch, last, attempts), nil
}

func (sess *Session) result(
	outcome Outcome,
	shift syncer.ShiftResult,
	attempts int,
) Result {
	r := Result{
		Outcome:    outcome,
		Confidence: shift.Confidence,
		Attempts:   attempts,
	}
	if outcome == OutcomeMatched {
		r.Success = true
		r.LagSamples = int64(shift.Lag)
		r.LagMS = sess.policy.Encoding().DurationForSamples(r.LagSamples).Milliseconds()
	}
	return r
}

// waitForWindow blocks until both buffers can provide n samples (or
// will never get more), while the session is not paused. It returns
// true if both sources are exhausted and a window of n samples already
// covers everything they produced.
func (sess *Session) waitForWindow(
	ctx context.Context,
	e *Engine,
	n int,
) (bool, error) {
	for {
		state, stateCh := e.stateAndChan()
		captureCh := sess.captureBuffer.Progressed()
		referenceCh := sess.referenceBuffer.Progressed()

		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := sess.captureBuffer.Err(); err != nil {
			return false, fmt.Errorf("the capture failed: %w", err)
		}
		if err := sess.referenceBuffer.Err(); err != nil {
			return false, fmt.Errorf("the reference failed: %w", err)
		}

		if state != StatePaused {
			captureFinished := sess.captureBuffer.IsFinished()
			referenceFinished := sess.referenceBuffer.IsFinished()
			captureReady := captureFinished || sess.captureBuffer.Len() >= n
			referenceReady := referenceFinished || sess.referenceBuffer.Len() >= n
			if captureReady && referenceReady {
				exhausted := captureFinished && referenceFinished &&
					n >= sess.captureBuffer.Len() && n >= sess.referenceBuffer.Len()
				return exhausted, nil
			}
		} else {
			captureCh, referenceCh = nil, nil
		}

		select {
		case <-ctx.Done():
		case <-stateCh:
		case <-captureCh:
		case <-referenceCh:
		}
	}
}

func (sess *Session) startSources(ctx context.Context, e *Engine) error {
	var g errgroup.Group
	g.Go(func() error {
		return e.capture.Start(ctx, sess.Device, sess.captureBuffer)
	})
	g.Go(func() error {
		return e.reference.Start(ctx, sess.Track, sess.referenceBuffer)
	})
	err := g.Wait()

	sess.sourcesLocker.Lock()
	sess.sourcesStarted = true
	sess.sourcesLocker.Unlock()
	if err != nil {
		return err
	}
	return sess.syncSources(ctx, e)
}

// syncSources pauses or resumes the sources to match the state of the
// engine.
func (sess *Session) syncSources(ctx context.Context, e *Engine) error {
	sess.sourcesLocker.Lock()
	defer sess.sourcesLocker.Unlock()
	if !sess.sourcesStarted {
		return nil
	}

	state, _ := e.stateAndChan()
	var wantPaused bool
	switch state {
	case StateRunning:
	case StatePaused:
		wantPaused = true
	default:
		return nil
	}
	if wantPaused == sess.sourcesPaused {
		return nil
	}

	var mErr *multierror.Error
	if wantPaused {
		if err := e.capture.Pause(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
		if err := e.reference.Pause(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	} else {
		if err := e.capture.Resume(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
		if err := e.reference.Resume(ctx); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	sess.sourcesPaused = wantPaused
	return mErr.ErrorOrNil()
}

func (sess *Session) stopSources(ctx context.Context, e *Engine) error {
	sess.sourcesLocker.Lock()
	defer sess.sourcesLocker.Unlock()

	var mErr *multierror.Error
	if err := e.capture.Stop(ctx); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the capture: %w", err))
	}
	if err := e.reference.Stop(ctx); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the reference: %w", err))
	}
	sess.sourcesStarted = false
	return mErr.ErrorOrNil()
}

func (sess *Session) dump(
	ctx context.Context,
	attempt int,
	captureWindow []float64,
	referenceWindow []float64,
	shift syncer.ShiftResult,
) {
	dir := sess.policy.DebugDir
	if dir == "" {
		return
	}
	filePath, err := debugdump.Write(dir, &debugdump.Attempt{
		Track:      sess.Track,
		SampleRate: uint32(sess.policy.SampleRate),
		Attempt:    attempt,
		Capture:    captureWindow,
		Reference:  referenceWindow,
		LagSamples: int64(shift.Lag),
		Confidence: shift.Confidence,
		Success:    shift.Success,
		CreatedAt:  sess.CreatedAt,
	})
	if err != nil {
		logger.Warnf(ctx, "unable to dump the attempt: %v", err)
		return
	}
	logger.Debugf(ctx, "dumped the attempt to %q", filePath)
}
