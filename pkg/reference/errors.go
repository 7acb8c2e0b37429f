package reference

import (
	"errors"
)

var (
	// ErrResolution means the track could not be turned into a
	// fetchable locator. It is usually worth retrying later.
	ErrResolution = errors.New("unable to resolve the track")

	// ErrDecode means the located media could not be decoded into PCM.
	ErrDecode = errors.New("unable to decode the reference")
)
