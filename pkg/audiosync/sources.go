package audiosync

import (
	"context"

	"github.com/xaionaro-go/audiosync/pkg/pcmbuffer"
)

// CaptureSource produces what is being played right now.
type CaptureSource interface {
	Setup(ctx context.Context, device string) error
	Start(ctx context.Context, device string, sink pcmbuffer.Sink) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ReferenceSource produces the track from its beginning. Start must
// not block on resolving or decoding: failures are reported through
// the sink.
type ReferenceSource interface {
	Start(ctx context.Context, track string, sink pcmbuffer.Sink) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
}
