package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/observability"
)

const (
	RecordBufferSize = time.Millisecond * 100
)

type RecordPCMStream struct {
	PortAudioStream *portaudio.Stream
	InputBuffer     []byte
	Writer          io.Writer
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup

	locker   sync.Mutex
	paused   bool
	resumeCh chan struct{}
	err      error

	closeOnce sync.Once
	closeErr  error
}

var _ types.RecordStream = (*RecordPCMStream)(nil)

func newRecordPCMStream[T any](
	ctx context.Context,
	device *portaudio.DeviceInfo,
	sampleRate types.SampleRate,
	channels types.Channel,
) (*RecordPCMStream, error) {
	bufferItemsCount := int(RecordBufferSize.Seconds() * float64(sampleRate))

	var sample T
	buf := make([]T, bufferItemsCount*int(channels))
	logger.Debugf(ctx, "newRecordPCMStream: %T, %q, %d, %d %s(%d)", sample, device.Name, sampleRate, channels, RecordBufferSize, bufferItemsCount)

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = int(channels)
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = bufferItemsCount
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, err
	}

	ptr := unsafe.SliceData(buf)
	bytesBuf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample)))

	return &RecordPCMStream{
		PortAudioStream: stream,
		InputBuffer:     bytesBuf,
	}, nil
}

func (s *RecordPCMStream) init(
	ctx context.Context,
	writer io.Writer,
) error {
	s.Writer = writer
	ctx, s.CancelFunc = context.WithCancel(ctx)

	if err := s.PortAudioStream.Start(); err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		err := s.readLoop(ctx)
		if err != nil && ctx.Err() == nil {
			s.locker.Lock()
			s.err = err
			s.locker.Unlock()
		}
	})
	return nil
}

// waitUnpaused blocks while the stream is paused.
func (s *RecordPCMStream) waitUnpaused(ctx context.Context) error {
	for {
		s.locker.Lock()
		if !s.paused {
			s.locker.Unlock()
			return nil
		}
		ch := s.resumeCh
		s.locker.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *RecordPCMStream) isPaused() bool {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.paused
}

func (s *RecordPCMStream) readLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "readLoop")
	defer func() { logger.Debugf(ctx, "/readLoop: %v", _ret) }()

	output := make([]byte, len(s.InputBuffer))
	for {
		if err := s.waitUnpaused(ctx); err != nil {
			return err
		}

		logger.Tracef(ctx, "Read")
		err := s.PortAudioStream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		if err != nil {
			if s.isPaused() || ctx.Err() != nil {
				continue
			}
			if errors.Is(err, portaudio.InputOverflowed) {
				logger.Debugf(ctx, "input overflowed")
			} else {
				return fmt.Errorf("unable to read: %w", err)
			}
		}

		copy(output, s.InputBuffer)
		n, err := s.Writer.Write(output)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if n != len(output) {
			return fmt.Errorf("invalid write length: %d != %d", n, len(output))
		}
	}
}

func (s *RecordPCMStream) Pause() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.paused {
		return nil
	}
	s.paused = true
	s.resumeCh = make(chan struct{})
	return s.PortAudioStream.Stop()
}

func (s *RecordPCMStream) Resume() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if !s.paused {
		return nil
	}
	err := s.PortAudioStream.Start()
	s.paused = false
	close(s.resumeCh)
	return err
}

func (s *RecordPCMStream) Err() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.err
}

func (s *RecordPCMStream) Close() error {
	s.closeOnce.Do(func() {
		if s.CancelFunc != nil {
			s.CancelFunc()
		}
		var mErr *multierror.Error
		if err := s.PortAudioStream.Abort(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to abort the stream: %w", err))
		}
		s.WaitGroup.Wait()
		if err := s.PortAudioStream.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the stream: %w", err))
		}
		s.closeErr = mErr.ErrorOrNil()
	})
	return s.closeErr
}
