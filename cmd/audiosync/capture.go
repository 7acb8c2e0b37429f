package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/audiosync/pkg/audio"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
)

func newCaptureCommand(a *app) *cobra.Command {
	var (
		duration time.Duration
		channels uint32
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Write the recorded audio to stdout as float32 little-endian PCM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCapture(cmd.Context(), cmd.OutOrStdout(), duration, audio.Channel(channels))
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to record; zero records until interrupted")
	cmd.Flags().Uint32Var(&channels, "channels", 1, "amount of channels to record")
	return cmd
}

func (a *app) runCapture(
	ctx context.Context,
	out io.Writer,
	duration time.Duration,
	channels audio.Channel,
) error {
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	if duration > 0 {
		ctx, cancelFn = context.WithTimeout(ctx, duration)
		defer cancelFn()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, err := a.newRecorder(ctx)
	if err != nil {
		return err
	}
	defer recorder.Close()

	device := a.cfg.Capture.Device
	if device != "" {
		routed, err := recorder.RouteApplication(ctx, device)
		switch {
		case err != nil:
			logger.Debugf(ctx, "unable to route %q, recording it as a device: %v", device, err)
		default:
			device = routed
		}
	}

	wc := datacounter.NewWriterCounter(out)
	logger.Tracef(ctx, "recorder.RecordPCM")
	stream, err := recorder.RecordPCM(ctx, device, a.cfg.Policy().SampleRate, channels, audio.PCMFormatFloat32LE, wc)
	logger.Tracef(ctx, "/recorder.RecordPCM: %v", err)
	if err != nil {
		return fmt.Errorf("unable to start recording: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the record stream: %v", err)
		}
	}()

	observability.Go(ctx, func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				logger.Debugf(ctx, "written: %d", wc.Count())
			}
		}
	})

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof(ctx, "recorded %d bytes", wc.Count())
			return nil
		case <-t.C:
			if err := stream.Err(); err != nil {
				return fmt.Errorf("the recording failed: %w", err)
			}
		}
	}
}

func (a *app) newRecorder(ctx context.Context) (*audio.Recorder, error) {
	if backend := a.cfg.Capture.Backend; backend != "" {
		return audio.NewRecorderByBackend(ctx, backend)
	}
	return audio.NewRecorderAuto(ctx)
}
