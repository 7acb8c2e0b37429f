package pulseaudio

import (
	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	Name     = "pulseaudio"
	Priority = 100

	// ClientName is how the connections of this package introduce
	// themselves to the audio server.
	ClientName = "audiosync"
)

func init() {
	registry.RegisterRecorderFactory(Name, Priority, RecorderPCMPulseFactory{})
}

type RecorderPCMPulseFactory struct{}

func (RecorderPCMPulseFactory) NewRecorderPCM() (types.RecorderPCM, error) {
	return NewRecorderPCM()
}
