package types

import (
	"context"
	"io"
)

type RecorderPCM interface {
	io.Closer

	Ping(context.Context) error

	// RecordPCM starts capturing the given device and writes the
	// interleaved samples to the writer. An empty device means the
	// backend's default: the monitor of the default output, if the
	// backend can monitor outputs.
	RecordPCM(
		ctx context.Context,
		device string,
		sampleRate SampleRate,
		channels Channel,
		format PCMFormat,
		writer io.Writer,
	) (RecordStream, error)
}

// ApplicationRouter is implemented by backends that can isolate the
// output of a single application into a dedicated monitorable device.
type ApplicationRouter interface {
	// RouteApplication returns the name of the device to pass to
	// RecordPCM to capture only the given application.
	RouteApplication(ctx context.Context, applicationName string) (string, error)
}
