package types

import (
	"io"
)

type Stream interface {
	io.Closer
}

type RecordStream interface {
	Stream

	// Pause stops delivering samples until Resume is called.
	Pause() error
	Resume() error

	// Err returns the asynchronous error the stream was terminated
	// with, if any.
	Err() error
}
