// Package reference fetches the canonical recording of a track and
// feeds it into a pcmbuffer.Sink as mono float64 samples.
package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/pcmbuffer"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
)

const (
	readChunkSize = 32 * 1024
)

type Source struct {
	Resolver    Resolver
	Decoder     Decoder
	SampleRate  types.SampleRate
	MaxDuration time.Duration

	// Debug is consulted at the beginning of every session.
	Debug func() bool

	locker  sync.Mutex
	session *session
}

func NewSource(
	sampleRate types.SampleRate,
	maxDuration time.Duration,
) *Source {
	return &Source{
		Resolver:    DefaultResolver(),
		Decoder:     NewAutoDecoder(),
		SampleRate:  sampleRate,
		MaxDuration: maxDuration,
	}
}

type session struct {
	cancelFunc context.CancelFunc
	doneCh     chan struct{}

	locker    sync.Mutex
	paused    bool
	stream    Stream
	closeOnce sync.Once
}

// Start returns immediately: resolving, decoding and appending happen
// in the background, and the outcome is reported via sink.Finish.
func (s *Source) Start(
	ctx context.Context,
	track string,
	sink pcmbuffer.Sink,
) error {
	logger.Debugf(ctx, "Start(ctx, %q)", track)
	defer logger.Debugf(ctx, "/Start(ctx, %q)", track)

	s.locker.Lock()
	defer s.locker.Unlock()
	if s.session != nil {
		return fmt.Errorf("the reference is already started")
	}

	ctx, cancelFn := context.WithCancel(ctx)
	sess := &session{
		cancelFunc: cancelFn,
		doneCh:     make(chan struct{}),
	}
	s.session = sess

	debug := s.Debug != nil && s.Debug()
	observability.Go(ctx, func() {
		defer close(sess.doneCh)
		err := s.run(ctx, sess, track, debug, sink)
		if err != nil && ctx.Err() != nil {
			logger.Debugf(ctx, "the reference was stopped: %v", err)
			err = ctx.Err()
		}
		if err != nil {
			logger.Debugf(ctx, "the reference failed: %v", err)
		}
		sink.Finish(err)
	})
	return nil
}

func (s *Source) run(
	ctx context.Context,
	sess *session,
	track string,
	debug bool,
	sink pcmbuffer.Sink,
) (_err error) {
	logger.Debugf(ctx, "run(ctx, %q)", track)
	defer func() { logger.Debugf(ctx, "/run(ctx, %q): %v", track, _err) }()

	locator, err := s.Resolver.Resolve(ctx, track)
	if err != nil {
		if errors.Is(err, ErrResolution) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrResolution, err)
	}
	logger.Debugf(ctx, "resolved %q to %q", track, locator)

	stream, err := s.Decoder.Decode(ctx, locator, DecodeParams{
		SampleRate:  s.SampleRate,
		MaxDuration: s.MaxDuration,
		Debug:       debug,
	})
	if err != nil {
		if errors.Is(err, ErrDecode) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	pauseErr := sess.setStream(stream)
	defer sess.closeStream(ctx)
	if pauseErr != nil {
		return fmt.Errorf("unable to pause the decoder: %w", pauseErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	converter, err := resampler.NewConverter(stream.Format(), s.SampleRate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}

	counter := datacounter.NewReaderCounter(stream)
	defer func() { logger.Debugf(ctx, "read %d bytes of the reference", counter.Count()) }()

	buf := make([]byte, readChunkSize)
	var samples []float64
	appended := 0
	for {
		n, readErr := counter.Read(buf)
		if n > 0 {
			samples, err = converter.Convert(samples[:0], buf[:n])
			if err != nil {
				return fmt.Errorf("%w: %w", ErrDecode, err)
			}
			w, err := sink.Append(ctx, samples)
			appended += w
			switch {
			case err == nil:
			case errors.Is(err, pcmbuffer.ErrFull):
				return nil
			default:
				return err
			}
		}
		switch {
		case readErr == nil:
		case readErr == io.EOF:
			if appended == 0 {
				return fmt.Errorf("%w: %q contains no audio", ErrDecode, locator)
			}
			return nil
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(readErr, ErrDecode) {
				return readErr
			}
			return fmt.Errorf("%w: %w", ErrDecode, readErr)
		}
	}
}

// setStream makes the stream visible to Pause/Resume, applying a pause
// requested before the stream existed.
func (sess *session) setStream(stream Stream) error {
	sess.locker.Lock()
	defer sess.locker.Unlock()
	sess.stream = stream
	if sess.paused {
		return stream.Pause()
	}
	return nil
}

// closeStream unblocks reads of decoders that do not watch the context.
func (sess *session) closeStream(ctx context.Context) {
	sess.locker.Lock()
	stream := sess.stream
	sess.locker.Unlock()
	if stream == nil {
		return
	}
	sess.closeOnce.Do(func() {
		if err := stream.Close(); err != nil {
			logger.Debugf(ctx, "unable to close the decoder: %v", err)
		}
	})
}

func (sess *session) setPaused(paused bool) error {
	sess.locker.Lock()
	defer sess.locker.Unlock()
	if sess.paused == paused {
		return nil
	}
	sess.paused = paused
	if sess.stream == nil {
		return nil
	}
	if paused {
		return sess.stream.Pause()
	}
	return sess.stream.Resume()
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
	logger.Debugf(ctx, "pausing the reference")
	return sess.setPaused(true)
}

func (s *Source) Resume(ctx context.Context) error {
	sess := s.getSession()
	if sess == nil {
		return nil
	}
	logger.Debugf(ctx, "resuming the reference")
	return sess.setPaused(false)
}

// Stop terminates the decoding and waits for the background work to
// finish. It is safe to call it multiple times.
func (s *Source) Stop(ctx context.Context) error {
	s.locker.Lock()
	sess := s.session
	s.session = nil
	s.locker.Unlock()
	if sess == nil {
		return nil
	}

	logger.Debugf(ctx, "stopping the reference")
	sess.cancelFunc()
	sess.closeStream(ctx)
	select {
	case <-sess.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
