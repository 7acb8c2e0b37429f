package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	calls   int
	locator string
	err     error
}

func (r *countingResolver) Resolve(context.Context, string) (string, error) {
	r.calls++
	return r.locator, r.err
}

func TestLocalResolver(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "track.ogg")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	locator, err := LocalResolver{}.Resolve(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, file, locator)

	locator, err = LocalResolver{}.Resolve(ctx, "https://example.com/a/track.mp3?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a/track.mp3?x=1", locator)

	for _, track := range []string{"", dir, "Some Artist - Some Title", "https://www.youtube.com/watch?v=xxx"} {
		_, err = LocalResolver{}.Resolve(ctx, track)
		assert.ErrorIs(t, err, ErrResolution, track)
	}
}

func TestYTDLPResolver(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ctx := context.Background()

	t.Run("first_line", func(t *testing.T) {
		r := &YTDLPResolver{
			Command: "sh",
			Args:    []string{"-c", `printf '\n%s\nhttps://second\n' "https://cdn/$1"`, "sh"},
		}
		locator, err := r.Resolve(ctx, "some title")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/ytsearch1:some title", locator)

		locator, err = r.Resolve(ctx, "https://www.youtube.com/watch?v=xxx")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/https://www.youtube.com/watch?v=xxx", locator)
	})

	t.Run("failure", func(t *testing.T) {
		r := &YTDLPResolver{
			Command: "sh",
			Args:    []string{"-c", "echo 'ERROR: nope' >&2; exit 1", "sh"},
		}
		_, err := r.Resolve(ctx, "some title")
		assert.ErrorIs(t, err, ErrResolution)
		assert.Contains(t, err.Error(), "ERROR: nope")
	})

	t.Run("nothing_found", func(t *testing.T) {
		r := &YTDLPResolver{
			Command: "sh",
			Args:    []string{"-c", "true", "sh"},
		}
		_, err := r.Resolve(ctx, "some title")
		assert.ErrorIs(t, err, ErrResolution)
	})

	t.Run("timeout", func(t *testing.T) {
		r := &YTDLPResolver{
			Command: "sh",
			Args:    []string{"-c", "exec sleep 10", "sh"},
			Timeout: 50 * time.Millisecond,
		}
		_, err := r.Resolve(ctx, "some title")
		assert.ErrorIs(t, err, ErrResolution)
	})
}

func TestCachingResolver(t *testing.T) {
	ctx := context.Background()
	inner := &countingResolver{locator: "https://cdn/track"}
	r := NewCachingResolver(inner, 2, time.Hour)

	for i := 0; i < 3; i++ {
		locator, err := r.Resolve(ctx, "title")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/track", locator)
	}
	assert.Equal(t, 1, inner.calls)

	inner.err = ErrResolution
	_, err := r.Resolve(ctx, "other title")
	assert.ErrorIs(t, err, ErrResolution)
	_, err = r.Resolve(ctx, "other title")
	assert.ErrorIs(t, err, ErrResolution)
	assert.Equal(t, 3, inner.calls)
}

func TestChainResolver(t *testing.T) {
	ctx := context.Background()

	failing := &countingResolver{err: errors.New("nope")}
	succeeding := &countingResolver{locator: "loc"}

	locator, err := ChainResolver{failing, succeeding}.Resolve(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "loc", locator)
	assert.Equal(t, 1, failing.calls)

	_, err = ChainResolver{failing, failing}.Resolve(ctx, "t")
	assert.ErrorIs(t, err, ErrResolution)

	_, err = ChainResolver{}.Resolve(ctx, "t")
	assert.ErrorIs(t, err, ErrResolution)
}
