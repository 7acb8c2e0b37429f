package pulseaudio

import (
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type RecordStream struct {
	*pulse.Client
	*pulse.RecordStream
	closeOnce sync.Once
	closeErr  error
}

var _ types.RecordStream = (*RecordStream)(nil)

func newRecordStream(
	client *pulse.Client,
	pulseStream *pulse.RecordStream,
) *RecordStream {
	return &RecordStream{
		Client:       client,
		RecordStream: pulseStream,
	}
}

func (stream *RecordStream) Pause() error {
	stream.RecordStream.Stop()
	return stream.Err()
}

func (stream *RecordStream) Resume() error {
	stream.RecordStream.Start()
	return stream.Err()
}

func (stream *RecordStream) Err() error {
	if err := stream.RecordStream.Error(); err != nil {
		return fmt.Errorf("an error occurred during recording: %w", err)
	}
	return nil
}

func (stream *RecordStream) Close() error {
	stream.closeOnce.Do(func() {
		defer func() {
			r := recover()
			if r != nil {
				stream.closeErr = fmt.Errorf("got a panic: %v", r)
			}
		}()
		stream.RecordStream.Stop()
		stream.RecordStream.Close()
		stream.Client.Close()
	})
	return stream.closeErr
}
