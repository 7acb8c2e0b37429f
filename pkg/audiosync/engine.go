// Package audiosync finds how far a live capture of the local audio
// output is behind the beginning of a given track.
package audiosync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/reference"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
)

type Option func(*Engine)

func WithCaptureSource(s CaptureSource) Option {
	return func(e *Engine) { e.capture = s }
}

func WithReferenceSource(s ReferenceSource) Option {
	return func(e *Engine) { e.reference = s }
}

func WithSyncer(s syncer.Syncer) Option {
	return func(e *Engine) { e.syncer = s }
}

// Engine runs at most one synchronization session at a time. All the
// methods are safe for concurrent use; Run blocks, everything else
// returns promptly.
type Engine struct {
	policy    Policy
	capture   CaptureSource
	reference ReferenceSource
	syncer    syncer.Syncer

	locker         sync.Mutex
	state          State
	stateChangedCh chan struct{}
	debug          bool
	device         string
	session        *Session
}

func New(policy Policy, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	e := &Engine{
		policy:         policy,
		stateChangedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.capture == nil {
		e.capture = capture.NewSource(policy.SampleRate)
	}
	if e.reference == nil {
		ref := reference.NewSource(policy.SampleRate, policy.MaxDuration)
		ref.Debug = e.Debug
		e.reference = ref
	}
	if e.syncer == nil {
		s, err := policy.NewSyncer()
		if err != nil {
			return nil, err
		}
		e.syncer = s
	}
	return e, nil
}

func (e *Engine) Policy() Policy {
	return e.policy
}

// setStateLocked must be called with the lock held.
func (e *Engine) setStateLocked(state State) {
	if e.state == state {
		return
	}
	e.state = state
	var oldCh chan struct{}
	oldCh, e.stateChangedCh = e.stateChangedCh, make(chan struct{})
	close(oldCh)
}

func (e *Engine) stateAndChan() (State, <-chan struct{}) {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.state, e.stateChangedCh
}

// Status reports the state of the engine. Aborting is reported as
// running: the session still holds its resources.
func (e *Engine) Status() State {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.state == StateAborting {
		return StateRunning
	}
	return e.state
}

func (e *Engine) Debug() bool {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.debug
}

func (e *Engine) SetDebug(debug bool) {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.debug = debug
}

// Setup selects the output device (or the application) to capture.
// If the capture source fails to prepare it, the error is returned,
// but the device is still used as is.
func (e *Engine) Setup(ctx context.Context, device string) (_err error) {
	logger.Debugf(ctx, "Setup(ctx, %q)", device)
	defer func() { logger.Debugf(ctx, "/Setup(ctx, %q): %v", device, _err) }()

	e.locker.Lock()
	e.device = device
	e.locker.Unlock()
	return e.capture.Setup(ctx, device)
}

func (e *Engine) Device() string {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.device
}

// Pause suspends the accumulation of samples. It is a no-op unless
// a session is running.
func (e *Engine) Pause(ctx context.Context) error {
	logger.Debugf(ctx, "Pause")
	defer logger.Debugf(ctx, "/Pause")

	e.locker.Lock()
	if e.state != StateRunning {
		e.locker.Unlock()
		return nil
	}
	sess := e.session
	sess.captureBuffer.Pause()
	sess.referenceBuffer.Pause()
	e.setStateLocked(StatePaused)
	e.locker.Unlock()

	return sess.syncSources(ctx, e)
}

// Resume continues a paused session. It is a no-op unless a session
// is paused.
func (e *Engine) Resume(ctx context.Context) error {
	logger.Debugf(ctx, "Resume")
	defer logger.Debugf(ctx, "/Resume")

	e.locker.Lock()
	if e.state != StatePaused {
		e.locker.Unlock()
		return nil
	}
	sess := e.session
	sess.captureBuffer.Resume()
	sess.referenceBuffer.Resume()
	e.setStateLocked(StateRunning)
	e.locker.Unlock()

	return sess.syncSources(ctx, e)
}

// Abort makes the active Run return promptly. It is a no-op if there
// is no active session.
func (e *Engine) Abort(ctx context.Context) {
	logger.Debugf(ctx, "Abort")
	defer logger.Debugf(ctx, "/Abort")

	e.locker.Lock()
	defer e.locker.Unlock()
	switch e.state {
	case StateRunning, StatePaused:
	default:
		return
	}
	e.setStateLocked(StateAborting)
	e.session.cancelFunc()
}

// WaitForState blocks until the engine reaches the given state.
func (e *Engine) WaitForState(ctx context.Context, state State) error {
	for {
		cur, ch := e.stateAndChan()
		if cur == state {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Run synchronizes the capture against the given track. It returns
// exactly one Result; the error is non-nil only for faults and
// ErrBusy.
func (e *Engine) Run(ctx context.Context, track string) (_ret Result, _err error) {
	logger.Debugf(ctx, "Run(ctx, %q)", track)
	defer func() { logger.Debugf(ctx, "/Run(ctx, %q): %s %v", track, _ret, _err) }()

	e.locker.Lock()
	if e.state != StateIdle {
		e.locker.Unlock()
		return Result{Outcome: OutcomeBusy}, ErrBusy
	}
	sess := newSession(ctx, e.policy, track, e.device)
	e.session = sess
	e.setStateLocked(StateRunning)
	e.locker.Unlock()

	defer func() {
		e.teardown(ctx, sess)
		e.locker.Lock()
		defer e.locker.Unlock()
		e.session = nil
		e.setStateLocked(StateIdle)
	}()

	return sess.run(e)
}

func (e *Engine) teardown(ctx context.Context, sess *Session) {
	ctx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancelFn()
	sess.cancelFunc()
	if err := sess.stopSources(ctx, e); err != nil {
		logger.Errorf(ctx, "unable to release the sources cleanly: %v", err)
	}
	sess.captureBuffer.Reset()
	sess.referenceBuffer.Reset()
}

const teardownTimeout = 10 * time.Second
