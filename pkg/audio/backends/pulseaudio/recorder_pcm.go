package pulseaudio

import (
	"context"
	"fmt"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

// RecorderPCM captures the output of the audio server. Every record
// stream gets its own connection, so closing a stream releases all
// the server-side resources it held.
type RecorderPCM struct {
	PulseClient *pulse.Client
}

var (
	_ types.RecorderPCM       = (*RecorderPCM)(nil)
	_ types.ApplicationRouter = (*RecorderPCM)(nil)
)

func newClient() (*pulse.Client, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName(ClientName))
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return c, nil
}

func NewRecorderPCM() (*RecorderPCM, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	return &RecorderPCM{
		PulseClient: c,
	}, nil
}

func (r *RecorderPCM) Close() error {
	r.PulseClient.Close()
	return nil
}

func (r *RecorderPCM) Ping(context.Context) error {
	_, err := r.PulseClient.DefaultSink()
	return err
}

func (r *RecorderPCM) RecordPCM(
	ctx context.Context,
	device string,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	rawWriter io.Writer,
) (_ types.RecordStream, _err error) {
	logger.Debugf(ctx, "RecordPCM(ctx, %q, %d, %d, %s)", device, sampleRate, channels, format)
	defer func() { logger.Debugf(ctx, "/RecordPCM(ctx, %q, %d, %d, %s): %v", device, sampleRate, channels, format, _err) }()

	writer, err := newPulseWriter(format, rawWriter)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a writer for Pulse: %w", err)
	}

	chanMap := proto.ChannelMap{proto.ChannelMono}
	switch channels {
	case 1:
	case 2:
		chanMap = proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}
	default:
		return nil, fmt.Errorf("do not know how to configure %d channels", channels)
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer func() {
		if _err != nil {
			client.Close()
		}
	}()

	sourceOpt, err := recordSourceOption(client, device)
	if err != nil {
		return nil, err
	}

	stream, err := client.NewRecord(
		writer,
		sourceOpt,
		pulse.RecordSampleRate(int(sampleRate)),
		pulse.RecordChannels(chanMap),
		pulse.RecordMediaName(ClientName),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a record stream: %w", err)
	}

	stream.Start()
	if stream.Error() != nil {
		stream.Close()
		return nil, fmt.Errorf("an error occurred during recording: %w", stream.Error())
	}

	return newRecordStream(client, stream), nil
}

// recordSourceOption picks what to record: the monitor of the named
// sink, the named source, or the monitor of the default sink.
func recordSourceOption(
	client *pulse.Client,
	device string,
) (pulse.RecordOption, error) {
	if device == "" {
		sink, err := client.DefaultSink()
		if err != nil {
			return nil, fmt.Errorf("unable to get the default sink: %w", err)
		}
		return pulse.RecordMonitor(sink), nil
	}

	sink, sinkErr := client.SinkByID(device)
	if sinkErr == nil {
		return pulse.RecordMonitor(sink), nil
	}
	source, sourceErr := client.SourceByID(device)
	if sourceErr == nil {
		return pulse.RecordSource(source), nil
	}
	return nil, fmt.Errorf("device %q is neither a sink (%v) nor a source (%v)", device, sinkErr, sourceErr)
}

type pulseWriter struct {
	pulseFormat byte
	io.Writer
}

func newPulseWriter(pcmFormat types.PCMFormat, writer io.Writer) (*pulseWriter, error) {
	var pulseFormat byte
	switch pcmFormat {
	case types.PCMFormatFloat32LE:
		pulseFormat = proto.FormatFloat32LE
	case types.PCMFormatS16LE:
		pulseFormat = proto.FormatInt16LE
	case types.PCMFormatS32LE:
		pulseFormat = proto.FormatInt32LE
	default:
		return nil, fmt.Errorf("received an unexpected format: %v", pcmFormat)
	}
	return &pulseWriter{
		pulseFormat: pulseFormat,
		Writer:      writer,
	}, nil
}

var _ pulse.Writer = (*pulseWriter)(nil)

func (w pulseWriter) Format() byte {
	return w.pulseFormat
}
