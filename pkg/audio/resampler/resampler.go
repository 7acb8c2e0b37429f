package resampler

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	distanceStep = 10000

	// distanceRebase keeps the distance counters far from overflowing
	// on endless streams.
	distanceRebase = uint64(1) << 48
)

type Format struct {
	Channels   types.Channel
	SampleRate types.SampleRate
	PCMFormat  types.PCMFormat
}

func (f Format) FrameSize() uint {
	return f.PCMFormat.Size() * uint(f.Channels)
}

// Converter turns interleaved byte PCM of an arbitrary format into mono
// float64 samples at the output sample rate. Input may be pushed in
// chunks of any size: a trailing partial frame is staged until the
// next chunk completes it.
type Converter struct {
	locker          sync.Mutex
	inFormat        Format
	outSampleRate   types.SampleRate
	frameSize       uint
	staging         *circular.Buffer
	stagedBytes     uint
	frame           []byte
	inDistance      uint64
	outDistance     uint64
	outDistanceStep uint64
}

func NewConverter(
	inFormat Format,
	outSampleRate types.SampleRate,
) (*Converter, error) {
	if inFormat.PCMFormat.Size() == 0 {
		return nil, fmt.Errorf("unsupported PCM format: %v", inFormat.PCMFormat)
	}
	if inFormat.Channels == 0 {
		return nil, fmt.Errorf("channels count is zero")
	}
	if inFormat.SampleRate == 0 || outSampleRate == 0 {
		return nil, fmt.Errorf("sample rate is zero (in: %d, out: %d)", inFormat.SampleRate, outSampleRate)
	}

	frameSize := inFormat.FrameSize()
	sampleRateAdjust := float64(outSampleRate) / float64(inFormat.SampleRate)
	return &Converter{
		inFormat:        inFormat,
		outSampleRate:   outSampleRate,
		frameSize:       frameSize,
		staging:         circular.NewBuffer(int(frameSize) * 2),
		frame:           make([]byte, frameSize),
		outDistanceStep: uint64(float64(distanceStep) / sampleRateAdjust),
	}, nil
}

func (c *Converter) InFormat() Format {
	return c.inFormat
}

func (c *Converter) OutSampleRate() types.SampleRate {
	return c.outSampleRate
}

// Convert appends the samples produced from p to dst and returns the
// extended slice.
func (c *Converter) Convert(dst []float64, p []byte) ([]float64, error) {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.stagedBytes > 0 {
		missing := c.frameSize - c.stagedBytes
		if uint(len(p)) < missing {
			return dst, c.stage(p)
		}
		if err := c.stage(p[:missing]); err != nil {
			return dst, err
		}
		p = p[missing:]

		n, err := c.staging.Read(c.frame)
		if err != nil && !errors.Is(err, io.EOF) {
			return dst, fmt.Errorf("unable to read from the staging buffer: %w", err)
		}
		if uint(n) != c.frameSize {
			return dst, fmt.Errorf("read a partial frame from the staging buffer: %d != %d", n, c.frameSize)
		}
		c.stagedBytes = 0
		dst = c.pushFrame(dst, c.frame)
	}

	for uint(len(p)) >= c.frameSize {
		dst = c.pushFrame(dst, p[:c.frameSize])
		p = p[c.frameSize:]
	}

	if len(p) > 0 {
		if err := c.stage(p); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func (c *Converter) stage(p []byte) error {
	n, err := c.staging.Write(p)
	if err != nil {
		return fmt.Errorf("unable to write to the staging buffer: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("wrote != requested: %d != %d", n, len(p))
	}
	c.stagedBytes += uint(n)
	return nil
}

func (c *Converter) pushFrame(dst []float64, frame []byte) []float64 {
	sampleSize := c.inFormat.PCMFormat.Size()
	var sum float64
	for channelIdx := uint(0); channelIdx < uint(c.inFormat.Channels); channelIdx++ {
		sum += c.inFormat.PCMFormat.Float64(frame[channelIdx*sampleSize:])
	}
	val := sum / float64(c.inFormat.Channels)

	for c.outDistance <= c.inDistance {
		dst = append(dst, val)
		c.outDistance += c.outDistanceStep
	}
	c.inDistance += distanceStep

	if c.inDistance > distanceRebase && c.outDistance > distanceRebase {
		c.inDistance -= distanceRebase
		c.outDistance -= distanceRebase
	}
	return dst
}

// Writer is an io.Writer that converts everything written to it and
// hands the resulting samples to a callback.
type Writer struct {
	Converter *Converter
	Callback  func(samples []float64) error
	buf       []float64
}

var _ io.Writer = (*Writer)(nil)

func NewWriter(
	converter *Converter,
	callback func(samples []float64) error,
) *Writer {
	return &Writer{
		Converter: converter,
		Callback:  callback,
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	samples, err := w.Converter.Convert(w.buf[:0], p)
	w.buf = samples
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return len(p), nil
	}
	if err := w.Callback(samples); err != nil {
		return 0, err
	}
	return len(p), nil
}
