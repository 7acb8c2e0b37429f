package reference

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

type VorbisDecoder struct{}

var _ Decoder = VorbisDecoder{}

func (VorbisDecoder) Decode(
	ctx context.Context,
	locator string,
	_ DecodeParams,
) (Stream, error) {
	rawReader, err := openLocator(ctx, locator)
	if err != nil {
		return nil, err
	}
	oggReader, err := oggvorbis.NewReader(rawReader)
	if err != nil {
		rawReader.Close()
		return nil, fmt.Errorf("%w: unable to initialize a vorbis reader: %w", ErrDecode, err)
	}
	return &vorbisStream{
		closer: rawReader,
		reader: oggReader,
		format: resampler.Format{
			Channels:   types.Channel(oggReader.Channels()),
			SampleRate: types.SampleRate(oggReader.SampleRate()),
			PCMFormat:  types.PCMFormatFloat32LE,
		},
	}, nil
}

type vorbisStream struct {
	noopPause
	closer io.Closer
	reader *oggvorbis.Reader
	format resampler.Format
	buf    []float32
}

func (s *vorbisStream) Format() resampler.Format {
	return s.format
}

// Read provides the decoded samples as f32le bytes.
func (s *vorbisStream) Read(p []byte) (int, error) {
	count := len(p) / 4 / int(s.format.Channels) * int(s.format.Channels)
	if count == 0 {
		return 0, fmt.Errorf("the buffer is too small: %d", len(p))
	}
	if cap(s.buf) < count {
		s.buf = make([]float32, count)
	}
	s.buf = s.buf[:count]

	n, err := s.reader.Read(s.buf)
	for i, v := range s.buf[:n] {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return n * 4, err
}

func (s *vorbisStream) Close() error {
	return s.closer.Close()
}
