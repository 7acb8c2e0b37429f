package pulseaudio

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse/proto"
)

const (
	// RoutingSinkName is the null sink applications are moved into, so
	// its monitor carries nothing but their output.
	RoutingSinkName = "audiosync"
)

// RouteApplication moves the playback stream of the application whose
// "application.name" contains applicationName into a dedicated null
// sink, and loops that sink back to the default output so it stays
// audible. The sink is created once and reused afterwards.
//
// The returned device name is meant to be passed to RecordPCM.
func (r *RecorderPCM) RouteApplication(
	ctx context.Context,
	applicationName string,
) (_ string, _err error) {
	logger.Debugf(ctx, "RouteApplication(ctx, %q)", applicationName)
	defer func() { logger.Debugf(ctx, "/RouteApplication(ctx, %q): %v", applicationName, _err) }()

	if applicationName == "" {
		return "", fmt.Errorf("application name is empty")
	}

	if _, err := r.PulseClient.SinkByID(RoutingSinkName); err == nil {
		logger.Debugf(ctx, "found sink %q, reusing it", RoutingSinkName)
	} else {
		logger.Debugf(ctx, "no sink %q found (%v), creating one", RoutingSinkName, err)
		if err := r.loadModule(
			"module-null-sink",
			fmt.Sprintf("sink_name=%s sink_properties=device.description=%s", RoutingSinkName, RoutingSinkName),
		); err != nil {
			return "", err
		}
		if err := r.loadModule(
			"module-loopback",
			fmt.Sprintf("source=%s.monitor latency_msec=1", RoutingSinkName),
		); err != nil {
			return "", err
		}
	}

	var sinkInputs proto.GetSinkInputInfoListReply
	if err := r.PulseClient.RawRequest(&proto.GetSinkInputInfoList{}, &sinkInputs); err != nil {
		return "", fmt.Errorf("unable to list the playback streams: %w", err)
	}

	sinkInputIndex := uint32(proto.Undefined)
	for _, sinkInput := range sinkInputs {
		name, ok := sinkInput.Properties["application.name"]
		if !ok {
			continue
		}
		if strings.Contains(name.String(), applicationName) {
			sinkInputIndex = sinkInput.SinkInputIndex
			break
		}
	}
	if sinkInputIndex == uint32(proto.Undefined) {
		return "", fmt.Errorf("playback stream of application %q was not found", applicationName)
	}

	if err := r.PulseClient.RawRequest(&proto.MoveSinkInput{
		SinkInputIndex: sinkInputIndex,
		DeviceIndex:    proto.Undefined,
		DeviceName:     RoutingSinkName,
	}, nil); err != nil {
		return "", fmt.Errorf("unable to move playback stream %d to sink %q: %w", sinkInputIndex, RoutingSinkName, err)
	}

	return RoutingSinkName, nil
}

func (r *RecorderPCM) loadModule(name, args string) error {
	var reply proto.LoadModuleReply
	if err := r.PulseClient.RawRequest(&proto.LoadModule{
		Name: name,
		Args: args,
	}, &reply); err != nil {
		return fmt.Errorf("unable to load %s: %w", name, err)
	}
	return nil
}
