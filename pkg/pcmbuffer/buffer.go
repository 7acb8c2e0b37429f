// Package pcmbuffer provides the append-only buffer a sample producer
// fills and the synchronization engine reads windows from.
package pcmbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrFull is returned by Append once the buffer reached its capacity.
	ErrFull = errors.New("the buffer is full")
)

type Producer string

const (
	ProducerCapture   = Producer("capture")
	ProducerReference = Producer("reference")
)

// Sink is what a sample producer writes to.
type Sink interface {
	// Append stores the samples in arrival order, blocking while the
	// sink is paused.
	Append(ctx context.Context, samples []float64) (int, error)

	// Finish marks the producer done. A nil error means the producer
	// was exhausted normally.
	Finish(err error)
}

// Buffer is a fixed capacity Sink, which allows taking consistent
// prefix snapshots while the producer is still appending.
type Buffer struct {
	producer Producer

	locker       sync.Mutex
	samples      []float64
	paused       bool
	resumedCh    chan struct{}
	progressedCh chan struct{}
	finished     bool
	finishErr    error
	doneCh       chan struct{}
}

var _ Sink = (*Buffer)(nil)

func New(producer Producer, capacity int) *Buffer {
	return &Buffer{
		producer:     producer,
		samples:      make([]float64, 0, capacity),
		progressedCh: make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

func (buf *Buffer) Producer() Producer {
	return buf.producer
}

func (buf *Buffer) Cap() int {
	return cap(buf.samples)
}

func (buf *Buffer) String() string {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	return fmt.Sprintf("%s[%d/%d]", buf.producer, len(buf.samples), cap(buf.samples))
}

// notify must be called with the lock held.
func (buf *Buffer) notify() {
	var oldCh chan struct{}
	oldCh, buf.progressedCh = buf.progressedCh, make(chan struct{})
	close(oldCh)
}

func (buf *Buffer) Append(
	ctx context.Context,
	samples []float64,
) (int, error) {
	buf.locker.Lock()
	defer buf.locker.Unlock()

	for buf.paused {
		ch := buf.resumedCh
		buf.locker.Unlock()
		select {
		case <-ctx.Done():
			buf.locker.Lock()
			return 0, ctx.Err()
		case <-ch:
		}
		buf.locker.Lock()
	}

	if buf.finished {
		return 0, fmt.Errorf("the %s producer has already finished", buf.producer)
	}

	free := cap(buf.samples) - len(buf.samples)
	n := min(free, len(samples))
	buf.samples = append(buf.samples, samples[:n]...)
	if n > 0 {
		buf.notify()
	}
	if n < len(samples) {
		return n, ErrFull
	}
	return n, nil
}

// Pause makes any following Append block until Resume. An Append
// already holding the lock completes first.
func (buf *Buffer) Pause() {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	if buf.paused {
		return
	}
	buf.paused = true
	buf.resumedCh = make(chan struct{})
}

func (buf *Buffer) Resume() {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	if !buf.paused {
		return
	}
	buf.paused = false
	close(buf.resumedCh)
}

func (buf *Buffer) IsPaused() bool {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	return buf.paused
}

// Finish marks the producer done; only the first call has an effect.
func (buf *Buffer) Finish(err error) {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	if buf.finished {
		return
	}
	buf.finished = true
	buf.finishErr = err
	close(buf.doneCh)
	buf.notify()
}

func (buf *Buffer) Len() int {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	return len(buf.samples)
}

// Snapshot returns a copy of the first n samples. If fewer samples are
// available, the copy is zero-padded to n.
func (buf *Buffer) Snapshot(n int) []float64 {
	out := make([]float64, n)
	buf.locker.Lock()
	defer buf.locker.Unlock()
	copy(out, buf.samples)
	return out
}

// Progressed returns a channel closed on the next Append or Finish.
func (buf *Buffer) Progressed() <-chan struct{} {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	return buf.progressedCh
}

// Done returns a channel closed when the producer has finished.
func (buf *Buffer) Done() <-chan struct{} {
	return buf.doneCh
}

// Err returns the error the producer finished with, if any.
func (buf *Buffer) Err() error {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	return buf.finishErr
}

func (buf *Buffer) IsFinished() bool {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	return buf.finished
}

// Reset drops all the samples, keeping the allocated memory.
func (buf *Buffer) Reset() {
	buf.locker.Lock()
	defer buf.locker.Unlock()
	buf.samples = buf.samples[:0]
}
