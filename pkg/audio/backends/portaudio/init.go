package portaudio

import (
	"github.com/xaionaro-go/audiosync/pkg/audio/registry"
	"github.com/xaionaro-go/audiosync/pkg/audio/types"
)

const (
	Name     = "portaudio"
	Priority = 50
)

func init() {
	registry.RegisterRecorderFactory(Name, Priority, RecorderPCMFactory{})
}

type RecorderPCMFactory struct{}

func (RecorderPCMFactory) NewRecorderPCM() (types.RecorderPCM, error) {
	return NewRecorderPCM()
}
