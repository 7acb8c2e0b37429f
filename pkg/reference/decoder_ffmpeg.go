package reference

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audio/resampler"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/observability"
)

const (
	DefaultFFmpegCommand = "ffmpeg"

	stderrTailSize = 4096
)

// FFmpegDecoder decodes anything FFmpeg can open, including the stream
// URLs returned by yt-dlp, into mono s16le at the requested rate.
type FFmpegDecoder struct {
	Command string
}

var _ Decoder = (*FFmpegDecoder)(nil)

func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{
		Command: DefaultFFmpegCommand,
	}
}

func ffmpegArgs(locator string, params DecodeParams) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-i", locator}
	if params.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(params.MaxDuration.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-vn",
		"-ac", "1",
		"-ar", strconv.FormatUint(uint64(params.SampleRate), 10),
		"-f", "s16le",
		"pipe:1",
	)
}

func (d *FFmpegDecoder) Decode(
	ctx context.Context,
	locator string,
	params DecodeParams,
) (_ Stream, _err error) {
	args := ffmpegArgs(locator, params)
	logger.Debugf(ctx, "running %s %s", d.Command, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, d.Command, args...)
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to get the stdout of ffmpeg: %w", ErrDecode, err)
	}

	s := &ffmpegStream{
		cmd:    cmd,
		stdout: stdout,
		format: resampler.Format{
			Channels:   1,
			SampleRate: params.SampleRate,
			PCMFormat:  types.PCMFormatS16LE,
		},
	}
	var stderr io.Writer = &s.stderrTail
	if params.Debug {
		s.stderrLog = newLogWriter(ctx, "ffmpeg: ")
		stderr = io.MultiWriter(stderr, s.stderrLog)
	}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: unable to start %s: %w", ErrDecode, d.Command, err)
	}
	return s, nil
}

type ffmpegStream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	format     resampler.Format
	stderrTail tailBuffer
	stderrLog  *io.PipeWriter
	waitOnce   sync.Once
	waitErr    error
}

func (s *ffmpegStream) Format() resampler.Format {
	return s.format
}

func (s *ffmpegStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		if s.stderrLog != nil {
			_ = s.stderrLog.Close()
		}
	})
	return s.waitErr
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err != io.EOF {
		return n, err
	}
	if waitErr := s.wait(); waitErr != nil {
		return n, fmt.Errorf("%w: ffmpeg failed: %w: %s", ErrDecode, waitErr, strings.TrimSpace(s.stderrTail.String()))
	}
	return n, io.EOF
}

func (s *ffmpegStream) Pause() error {
	return suspendProcess(s.cmd.Process)
}

func (s *ffmpegStream) Resume() error {
	return resumeProcess(s.cmd.Process)
}

func (s *ffmpegStream) Close() error {
	_ = s.cmd.Process.Kill()
	_ = s.wait()
	return nil
}

// tailBuffer keeps the last stderrTailSize bytes written to it.
type tailBuffer struct {
	locker sync.Mutex
	data   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > stderrTailSize {
		b.data = append(b.data[:0], b.data[len(b.data)-stderrTailSize:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.locker.Lock()
	defer b.locker.Unlock()
	return string(b.data)
}

// newLogWriter returns a writer that logs every written line until
// it is closed.
func newLogWriter(ctx context.Context, prefix string) *io.PipeWriter {
	r, w := io.Pipe()
	observability.Go(ctx, func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			logger.Debugf(ctx, "%s%s", prefix, scanner.Text())
		}
		_ = r.CloseWithError(scanner.Err())
	})
	return w
}
