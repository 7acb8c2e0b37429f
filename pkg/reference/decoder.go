package reference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

// Stream is decoded interleaved PCM of the format it reports.
type Stream interface {
	io.ReadCloser
	Format() resampler.Format

	// Pause and Resume suspend the decoding itself, where possible.
	Pause() error
	Resume() error
}

type DecodeParams struct {
	// SampleRate is the preferred output sample rate; a decoder may
	// produce another one, the caller resamples.
	SampleRate types.SampleRate

	// MaxDuration is how much audio from the beginning is needed.
	MaxDuration time.Duration

	// Debug makes decoders report their diagnostics to the logger.
	Debug bool
}

type Decoder interface {
	Decode(ctx context.Context, locator string, params DecodeParams) (Stream, error)
}

// openLocator opens a local file or an HTTP(S) URL.
func openLocator(ctx context.Context, locator string) (io.ReadCloser, error) {
	if !isURL(locator) {
		f, err := os.Open(locator)
		if err != nil {
			return nil, fmt.Errorf("%w: unable to open %q: %w", ErrDecode, locator, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %w", ErrDecode, locator, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to fetch %q: %w", ErrDecode, locator, err)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unable to fetch %q: %s", ErrDecode, locator, resp.Status)
	}
	return resp.Body, nil
}

func locatorExtension(locator string) string {
	p := locator
	if isURL(locator) {
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
	}
	return strings.ToLower(path.Ext(p))
}

func decoderByExtension(p string) (Decoder, bool) {
	switch locatorExtension(p) {
	case ".ogg", ".oga":
		return VorbisDecoder{}, true
	case ".mp3":
		return MP3Decoder{}, true
	case ".wav", ".flac", ".m4a", ".opus", ".webm", ".aac":
		return nil, true
	}
	return nil, false
}

// AutoDecoder decodes Vorbis and MP3 natively and everything else
// with FFmpeg.
type AutoDecoder struct {
	FFmpeg *FFmpegDecoder
}

var _ Decoder = (*AutoDecoder)(nil)

func NewAutoDecoder() *AutoDecoder {
	return &AutoDecoder{
		FFmpeg: NewFFmpegDecoder(),
	}
}

func (d *AutoDecoder) Decode(
	ctx context.Context,
	locator string,
	params DecodeParams,
) (Stream, error) {
	if decoder, ok := decoderByExtension(locator); ok && decoder != nil {
		return decoder.Decode(ctx, locator, params)
	}
	return d.FFmpeg.Decode(ctx, locator, params)
}

// noopPause is for decoders that are paused by simply not being read.
type noopPause struct{}

func (noopPause) Pause() error  { return nil }
func (noopPause) Resume() error { return nil }
