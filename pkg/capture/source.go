// Package capture records what the machine is playing and feeds it
// into a pcmbuffer.Sink as mono float64 samples.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/interpolation"
	"github.com/xaionaro-go/audiosync/pkg/interpolation/fourier"
	"github.com/xaionaro-go/audiosync/pkg/pcmbuffer"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
)

const (
	// RecordFormat is what is requested from the backends; float32
	// is native to both PulseAudio and PortAudio.
	RecordFormat = types.PCMFormatFloat32LE

	monitorInterval = time.Second
	pumpQueueSize   = 256

	// maxConcealedGap is the longest drop (in seconds) filled with
	// synthesized audio; longer ones are cross-faded.
	maxConcealedGap = 0.1
)

type RecorderFactory func(ctx context.Context) (types.RecorderPCM, error)

// DefaultRecorderFactory picks the best available backend.
func DefaultRecorderFactory(ctx context.Context) (types.RecorderPCM, error) {
	recorder, err := audio.NewRecorderAuto(ctx)
	if err != nil {
		return nil, err
	}
	return recorder, nil
}

// BackendRecorderFactory always uses the named backend.
func BackendRecorderFactory(name string) RecorderFactory {
	return func(ctx context.Context) (types.RecorderPCM, error) {
		recorder, err := audio.NewRecorderByBackend(ctx, name)
		if err != nil {
			return nil, err
		}
		return recorder, nil
	}
}

type Source struct {
	SampleRate      types.SampleRate
	RecorderFactory RecorderFactory

	// Interpolator fills in the samples dropped when the consumer
	// falls behind, so the capture stays aligned with the wall clock.
	Interpolator interpolation.Interpolator

	locker       sync.Mutex
	setupFor     string
	routedDevice string
	session      *session
}

func NewSource(sampleRate types.SampleRate) *Source {
	interpolator := fourier.New()
	interpolator.MaxGap = int(float64(sampleRate) * maxConcealedGap)
	return &Source{
		SampleRate:      sampleRate,
		RecorderFactory: DefaultRecorderFactory,
		Interpolator:    interpolator,
	}
}

// Setup prepares capturing the given device. If the backend can
// isolate applications, the device is treated as an application name
// first. Calling it again for the same device is a no-op.
//
// A failure does not prevent Start: the device is then used as a
// plain device name.
func (s *Source) Setup(ctx context.Context, device string) (_err error) {
	logger.Debugf(ctx, "Setup(ctx, %q)", device)
	defer func() { logger.Debugf(ctx, "/Setup(ctx, %q): %v", device, _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()

	if device == "" {
		s.setupFor, s.routedDevice = "", ""
		return nil
	}
	if s.setupFor == device && s.routedDevice != "" {
		return nil
	}
	s.setupFor, s.routedDevice = device, ""

	recorder, err := s.RecorderFactory(ctx)
	if err != nil {
		return fmt.Errorf("%w: unable to initialize a recorder: %w", ErrDevice, err)
	}
	defer recorder.Close()

	backend := recorder
	if r, ok := recorder.(*audio.Recorder); ok {
		backend = r.RecorderPCM
	}
	router, ok := backend.(types.ApplicationRouter)
	if !ok {
		logger.Debugf(ctx, "recorder %T cannot route applications", backend)
		return nil
	}

	routed, err := router.RouteApplication(ctx, device)
	if err != nil {
		return fmt.Errorf("%w: unable to route application %q: %w", ErrDevice, device, err)
	}
	logger.Infof(ctx, "application %q is routed to %q", device, routed)
	s.routedDevice = routed
	return nil
}

func (s *Source) resolveDevice(device string) string {
	if device != "" && device == s.setupFor && s.routedDevice != "" {
		return s.routedDevice
	}
	return device
}

// Start opens the device and begins appending to the sink. It returns
// once the device delivers samples or failed to open.
func (s *Source) Start(
	ctx context.Context,
	device string,
	sink pcmbuffer.Sink,
) (_err error) {
	logger.Debugf(ctx, "Start(ctx, %q)", device)
	defer func() { logger.Debugf(ctx, "/Start(ctx, %q): %v", device, _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()
	if s.session != nil {
		return fmt.Errorf("the capture is already started")
	}
	device = s.resolveDevice(device)

	sess, err := s.newSession(ctx, device, sink)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDevice, err)
	}
	s.session = sess
	return nil
}

func (s *Source) getSession() *session {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.session
}

func (s *Source) Pause(ctx context.Context) error {
	sess := s.getSession()
	if sess == nil {
		return nil
	}
	logger.Debugf(ctx, "pausing the capture")
	if err := sess.stream.Pause(); err != nil {
		return fmt.Errorf("%w: unable to pause: %w", ErrDevice, err)
	}
	return nil
}

func (s *Source) Resume(ctx context.Context) error {
	sess := s.getSession()
	if sess == nil {
		return nil
	}
	logger.Debugf(ctx, "resuming the capture")
	if err := sess.stream.Resume(); err != nil {
		return fmt.Errorf("%w: unable to resume: %w", ErrDevice, err)
	}
	return nil
}

// Stop releases the device. It is safe to call it multiple times.
func (s *Source) Stop(ctx context.Context) error {
	s.locker.Lock()
	sess := s.session
	s.session = nil
	s.locker.Unlock()
	if sess == nil {
		return nil
	}
	return sess.close(ctx)
}

// chunk is a piece of the captured audio preceded by gap dropped
// samples.
type chunk struct {
	gap     int
	samples []float64
}

type session struct {
	recorder     types.RecorderPCM
	stream       types.RecordStream
	sink         pcmbuffer.Sink
	counter      *datacounter.WriterCounter
	queue        chan chunk
	interpolator interpolation.Interpolator
	tail         []float64
	cancelFunc   context.CancelFunc
	waitGroup    sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error

	locker     sync.Mutex
	discard    bool
	dropCount  uint64
	pendingGap int
}

func (s *Source) newSession(
	ctx context.Context,
	device string,
	sink pcmbuffer.Sink,
) (_ *session, _err error) {
	converter, err := resampler.NewConverter(resampler.Format{
		Channels:   1,
		SampleRate: s.SampleRate,
		PCMFormat:  RecordFormat,
	}, s.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the converter: %w", err)
	}

	recorder, err := s.RecorderFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a recorder: %w", err)
	}
	defer func() {
		if _err != nil {
			_ = recorder.Close()
		}
	}()

	ctx, cancelFn := context.WithCancel(ctx)
	sess := &session{
		recorder:     recorder,
		sink:         sink,
		queue:        make(chan chunk, pumpQueueSize),
		interpolator: s.Interpolator,
		cancelFunc:   cancelFn,
	}
	if sess.interpolator == nil {
		sess.interpolator = interpolation.Linear{}
	}
	sess.counter = datacounter.NewWriterCounter(resampler.NewWriter(converter, sess.enqueue))

	stream, err := recorder.RecordPCM(ctx, device, s.SampleRate, 1, RecordFormat, sess.counter)
	if err != nil {
		cancelFn()
		return nil, fmt.Errorf("unable to start recording %q: %w", device, err)
	}
	sess.stream = stream

	sess.waitGroup.Add(2)
	observability.Go(ctx, func() {
		defer sess.waitGroup.Done()
		sess.pumpLoop(ctx)
	})
	observability.Go(ctx, func() {
		defer sess.waitGroup.Done()
		sess.monitorLoop(ctx)
	})
	return sess, nil
}

// enqueue is called from the backend's goroutine, which must never
// block: samples that cannot be queued are dropped and remembered as a
// gap before the next chunk.
func (sess *session) enqueue(samples []float64) error {
	sess.locker.Lock()
	discard, gap := sess.discard, sess.pendingGap
	sess.locker.Unlock()
	if discard || len(samples) == 0 {
		return nil
	}

	c := chunk{
		gap:     gap,
		samples: make([]float64, len(samples)),
	}
	copy(c.samples, samples)
	select {
	case sess.queue <- c:
		if gap > 0 {
			sess.locker.Lock()
			sess.pendingGap -= gap
			sess.locker.Unlock()
		}
	default:
		sess.locker.Lock()
		sess.dropCount += uint64(len(samples))
		sess.pendingGap += len(samples)
		sess.locker.Unlock()
	}
	return nil
}

func (sess *session) pumpLoop(ctx context.Context) {
	logger.Debugf(ctx, "pumpLoop")
	defer logger.Debugf(ctx, "/pumpLoop")
	for {
		var c chunk
		select {
		case <-ctx.Done():
			return
		case c = <-sess.queue:
		}

		if c.gap > 0 {
			logger.Tracef(ctx, "concealing %d dropped samples", c.gap)
			if !sess.append(ctx, sess.interpolator.Interpolate(sess.tail, c.samples, c.gap)) {
				return
			}
		}
		if !sess.append(ctx, c.samples) {
			return
		}
	}
}

// append passes samples to the sink, and returns false if the pump
// should stop.
func (sess *session) append(ctx context.Context, samples []float64) bool {
	_, err := sess.sink.Append(ctx, samples)
	switch {
	case err == nil:
		sess.keepTail(samples)
		return true
	case errors.Is(err, pcmbuffer.ErrFull):
		logger.Debugf(ctx, "the capture buffer is full, discarding the rest")
		sess.setDiscard()
		sess.sink.Finish(nil)
		return false
	default:
		if ctx.Err() == nil {
			logger.Errorf(ctx, "unable to append the captured samples: %v", err)
		}
		sess.setDiscard()
		return false
	}
}

// keepTail remembers the latest samples as the context for concealing
// the next gap.
func (sess *session) keepTail(samples []float64) {
	if len(samples) >= fourier.DefaultWindowSize {
		sess.tail = append(sess.tail[:0], samples[len(samples)-fourier.DefaultWindowSize:]...)
		return
	}
	sess.tail = append(sess.tail, samples...)
	if excess := len(sess.tail) - fourier.DefaultWindowSize; excess > 0 {
		sess.tail = append(sess.tail[:0], sess.tail[excess:]...)
	}
}

func (sess *session) setDiscard() {
	sess.locker.Lock()
	defer sess.locker.Unlock()
	sess.discard = true
}

func (sess *session) monitorLoop(ctx context.Context) {
	logger.Tracef(ctx, "started the capture monitor loop")
	t := time.NewTicker(monitorInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		sess.locker.Lock()
		dropCount := sess.dropCount
		sess.locker.Unlock()
		logger.Debugf(ctx, "captured: %d bytes (dropped %d samples)", sess.counter.Count(), dropCount)

		if err := sess.stream.Err(); err != nil {
			logger.Errorf(ctx, "the capture stream failed: %v", err)
			sess.setDiscard()
			sess.sink.Finish(fmt.Errorf("%w: %w", ErrDevice, err))
			return
		}
	}
}

func (sess *session) close(ctx context.Context) error {
	sess.closeOnce.Do(func() {
		logger.Debugf(ctx, "closing the capture session")
		sess.cancelFunc()
		var mErr *multierror.Error
		if err := sess.stream.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the record stream: %w", err))
		}
		if err := sess.recorder.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the recorder: %w", err))
		}
		sess.waitGroup.Wait()
		sess.closeErr = mErr.ErrorOrNil()
	})
	return sess.closeErr
}
