package capture

import (
	"errors"
)

// ErrDevice means the capture device could not be opened, or failed
// while capturing.
var ErrDevice = errors.New("capture device error")
