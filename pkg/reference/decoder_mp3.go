package reference

import (
	"context"
	"fmt"
	"io"

	"github.com/tosone/minimp3"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type MP3Decoder struct{}

var _ Decoder = MP3Decoder{}

func (MP3Decoder) Decode(
	ctx context.Context,
	locator string,
	_ DecodeParams,
) (Stream, error) {
	rawReader, err := openLocator(ctx, locator)
	if err != nil {
		return nil, err
	}
	dec, err := minimp3.NewDecoder(rawReader)
	if err != nil {
		rawReader.Close()
		return nil, fmt.Errorf("%w: unable to initialize an MP3 decoder: %w", ErrDecode, err)
	}

	select {
	case <-ctx.Done():
		dec.Close()
		rawReader.Close()
		return nil, ctx.Err()
	case <-dec.Started():
	}
	if dec.SampleRate <= 0 || dec.Channels <= 0 {
		dec.Close()
		rawReader.Close()
		return nil, fmt.Errorf("%w: %q does not look like MP3", ErrDecode, locator)
	}

	return &mp3Stream{
		closer:  rawReader,
		decoder: dec,
		format: resampler.Format{
			Channels:   types.Channel(dec.Channels),
			SampleRate: types.SampleRate(dec.SampleRate),
			PCMFormat:  types.PCMFormatS16LE,
		},
	}, nil
}

type mp3Stream struct {
	noopPause
	closer  io.Closer
	decoder *minimp3.Decoder
	format  resampler.Format
}

func (s *mp3Stream) Format() resampler.Format {
	return s.format
}

func (s *mp3Stream) Read(p []byte) (int, error) {
	n, err := s.decoder.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return n, err
}

func (s *mp3Stream) Close() error {
	s.decoder.Close()
	return s.closer.Close()
}
