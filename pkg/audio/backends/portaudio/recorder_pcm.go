package portaudio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

// RecorderPCM records from an input device. It cannot capture what
// other applications play unless the system exposes a loopback input
// device (e.g. "Stereo Mix" or a monitor source), so it is only a
// fallback for systems without PulseAudio.
type RecorderPCM struct{}

var _ types.RecorderPCM = (*RecorderPCM)(nil)

func NewRecorderPCM() (*RecorderPCM, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &RecorderPCM{}, nil
}

func (*RecorderPCM) Close() error {
	return portaudio.Terminate()
}

func (*RecorderPCM) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)

	if devices, err := portaudio.Devices(); err == nil {
		for idx, device := range devices {
			logger.Tracef(ctx, "devices[%d]: %#+v", idx, device)
		}
	}
	return nil
}

// findInputDevice returns the default input device if name is empty,
// and otherwise the first input device whose name contains name.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to list devices: %w", err)
	}
	for _, device := range devices {
		if device.MaxInputChannels <= 0 {
			continue
		}
		if strings.Contains(device.Name, name) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", name)
}

func (*RecorderPCM) RecordPCM(
	ctx context.Context,
	device string,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	writer io.Writer,
) (_ types.RecordStream, _err error) {
	logger.Debugf(ctx, "RecordPCM(ctx, %q, %d, %d, %s)", device, sampleRate, channels, format)
	defer func() { logger.Debugf(ctx, "/RecordPCM(ctx, %q, %d, %d, %s): %v", device, sampleRate, channels, format, _err) }()

	deviceInfo, err := findInputDevice(device)
	if err != nil {
		return nil, err
	}

	var s *RecordPCMStream
	switch format {
	case types.PCMFormatS16LE:
		s, err = newRecordPCMStream[int16](ctx, deviceInfo, sampleRate, channels)
	case types.PCMFormatS32LE:
		s, err = newRecordPCMStream[int32](ctx, deviceInfo, sampleRate, channels)
	case types.PCMFormatFloat32LE:
		s, err = newRecordPCMStream[float32](ctx, deviceInfo, sampleRate, channels)
	default:
		return nil, fmt.Errorf("do not know how to start a stream for PCM format %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open a stream on device %q: %w", deviceInfo.Name, err)
	}

	if err := s.init(ctx, writer); err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to post-initialize the stream: %w", err)
	}
	return s, nil
}
