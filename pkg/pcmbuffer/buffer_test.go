package pcmbuffer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	ctx := context.Background()

	t.Run("append_and_snapshot", func(t *testing.T) {
		buf := New(ProducerCapture, 10)
		n, err := buf.Append(ctx, []float64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		n, err = buf.Append(ctx, []float64{4})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		assert.Equal(t, 4, buf.Len())
		assert.Equal(t, []float64{1, 2}, buf.Snapshot(2))
		assert.Equal(t, []float64{1, 2, 3, 4, 0, 0}, buf.Snapshot(6))
		assert.Equal(t, "capture[4/10]", buf.String())
	})

	t.Run("full", func(t *testing.T) {
		buf := New(ProducerReference, 3)
		n, err := buf.Append(ctx, []float64{1, 2, 3, 4, 5})
		assert.ErrorIs(t, err, ErrFull)
		assert.Equal(t, 3, n)
		n, err = buf.Append(ctx, []float64{6})
		assert.ErrorIs(t, err, ErrFull)
		assert.Zero(t, n)
		assert.Equal(t, []float64{1, 2, 3}, buf.Snapshot(3))
	})

	t.Run("finish_first_wins", func(t *testing.T) {
		buf := New(ProducerReference, 3)
		select {
		case <-buf.Done():
			t.Fatal("done before finish")
		default:
		}
		errA := errors.New("a")
		buf.Finish(errA)
		buf.Finish(nil)
		<-buf.Done()
		assert.Equal(t, errA, buf.Err())
		assert.True(t, buf.IsFinished())

		_, err := buf.Append(ctx, []float64{1})
		assert.Error(t, err)
	})

	t.Run("progressed", func(t *testing.T) {
		buf := New(ProducerCapture, 10)
		ch := buf.Progressed()
		select {
		case <-ch:
			t.Fatal("progressed without an append")
		default:
		}
		_, err := buf.Append(ctx, []float64{1})
		require.NoError(t, err)
		<-ch

		ch = buf.Progressed()
		buf.Finish(nil)
		<-ch
	})

	t.Run("pause_blocks_append", func(t *testing.T) {
		buf := New(ProducerCapture, 10)
		buf.Pause()
		assert.True(t, buf.IsPaused())

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := buf.Append(ctx, []float64{1, 2})
			assert.NoError(t, err)
		}()

		time.Sleep(50 * time.Millisecond)
		assert.Zero(t, buf.Len())

		buf.Resume()
		wg.Wait()
		assert.Equal(t, 2, buf.Len())
	})

	t.Run("pause_respects_context", func(t *testing.T) {
		buf := New(ProducerCapture, 10)
		buf.Pause()
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := buf.Append(ctx, []float64{1})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Zero(t, buf.Len())
	})

	t.Run("reset", func(t *testing.T) {
		buf := New(ProducerCapture, 10)
		_, err := buf.Append(ctx, []float64{1, 2})
		require.NoError(t, err)
		buf.Reset()
		assert.Zero(t, buf.Len())
		assert.Equal(t, 10, buf.Cap())
	})
}
