package audiosync

import (
	"errors"

	"github.com/xaionaro-go/audiosync/pkg/capture"
	"github.com/xaionaro-go/audiosync/pkg/reference"
)

var (
	// ErrBusy is returned by Run if another session is active.
	ErrBusy = errors.New("a synchronization session is already active")

	ErrDevice     = capture.ErrDevice
	ErrResolution = reference.ErrResolution
	ErrDecode     = reference.ErrDecode
)
