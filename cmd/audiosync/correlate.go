package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/spf13/cobra"
	"github.com/xaionaro-go/audiosync/pkg/pcmbuffer"
	"github.com/xaionaro-go/audiosync/pkg/reference"
	"golang.org/x/sync/errgroup"
)

func newCorrelateCommand(a *app) *cobra.Command {
	var maxDuration time.Duration
	cmd := &cobra.Command{
		Use:   "correlate CAPTURE REFERENCE",
		Short: "Find the offset of one recording within another",
		Long: `correlate decodes the beginning of both inputs and prints how far
into REFERENCE the CAPTURE starts, in milliseconds.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCorrelate(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], maxDuration)
		},
	}
	cmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "how much of each input to use (default: sync.max_duration_ms)")
	return cmd
}

func (a *app) decodeAll(
	ctx context.Context,
	input string,
	producer pcmbuffer.Producer,
	maxDuration time.Duration,
) (_ []float64, _err error) {
	logger.Debugf(ctx, "decodeAll(ctx, %q)", input)
	defer func() { logger.Debugf(ctx, "/decodeAll(ctx, %q): %v", input, _err) }()

	policy := a.cfg.Policy()
	src := reference.NewSource(policy.SampleRate, maxDuration)
	src.Resolver = a.cfg.Reference.Resolver()
	src.Decoder = a.cfg.Reference.Decoder()
	src.Debug = func() bool { return a.cfg.Debug.Enabled }

	buf := pcmbuffer.New(producer, int(policy.Encoding().SamplesForDuration(maxDuration)))
	if err := src.Start(ctx, input, buf); err != nil {
		return nil, err
	}
	defer src.Stop(ctx)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-buf.Done():
	}
	if err := buf.Err(); err != nil {
		return nil, fmt.Errorf("unable to decode %q: %w", input, err)
	}
	return buf.Snapshot(buf.Len()), nil
}

func (a *app) runCorrelate(
	ctx context.Context,
	out io.Writer,
	captureInput string,
	referenceInput string,
	maxDuration time.Duration,
) error {
	policy := a.cfg.Policy()
	if maxDuration <= 0 {
		maxDuration = policy.MaxDuration
	}

	var captureSamples, referenceSamples []float64
	var g errgroup.Group
	g.Go(func() (err error) {
		captureSamples, err = a.decodeAll(ctx, captureInput, pcmbuffer.ProducerCapture, maxDuration)
		return
	})
	g.Go(func() (err error) {
		referenceSamples, err = a.decodeAll(ctx, referenceInput, pcmbuffer.ProducerReference, maxDuration)
		return
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// the windows are zero-padded to the longer input
	n := max(len(captureSamples), len(referenceSamples))
	captureSamples = append(captureSamples, make([]float64, n-len(captureSamples))...)
	referenceSamples = append(referenceSamples, make([]float64, n-len(referenceSamples))...)

	s, err := policy.NewSyncer()
	if err != nil {
		return err
	}
	shift, err := s.CalculateShift(ctx, captureSamples, referenceSamples)
	if err != nil {
		return fmt.Errorf("unable to correlate: %w", err)
	}
	lagMS := policy.Encoding().DurationForSamples(int64(shift.Lag)).Milliseconds()
	logger.Infof(ctx, "lag %d samples (%d ms), confidence %.3f, overlap %d, peak %.3f",
		shift.Lag, lagMS, shift.Confidence, shift.Overlap, shift.PeakScore)
	if !shift.Success {
		return exitCodeError{
			Code: exitCodeNoMatch,
			Err:  fmt.Errorf("no match: best lag %d ms with confidence %.3f", lagMS, shift.Confidence),
		}
	}
	fmt.Fprintln(out, lagMS)
	return nil
}
