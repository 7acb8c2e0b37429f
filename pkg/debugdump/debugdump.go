// Package debugdump stores correlation attempts on disk for offline
// inspection.
package debugdump

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	FileExtension = ".msgpack.zst"
)

// Attempt is a single correlation attempt: both windows and what was
// concluded from them.
type Attempt struct {
	Track      string    `msgpack:"track"`
	SampleRate uint32    `msgpack:"sample_rate"`
	Attempt    int       `msgpack:"attempt"`
	Capture    []float64 `msgpack:"capture"`
	Reference  []float64 `msgpack:"reference"`
	LagSamples int64     `msgpack:"lag_samples"`
	Confidence float64   `msgpack:"confidence"`
	Success    bool      `msgpack:"success"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

func FileName(a *Attempt) string {
	return fmt.Sprintf("%d-%d%s", a.CreatedAt.UnixNano(), a.Attempt, FileExtension)
}

func Encode(w io.Writer, a *Attempt) (_err error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("unable to initialize the zstd writer: %w", err)
	}
	defer func() {
		if err := zw.Close(); err != nil && _err == nil {
			_err = fmt.Errorf("unable to finalize the zstd stream: %w", err)
		}
	}()
	if err := msgpack.NewEncoder(zw).Encode(a); err != nil {
		return fmt.Errorf("unable to encode the attempt: %w", err)
	}
	return nil
}

func Decode(r io.Reader) (*Attempt, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the zstd reader: %w", err)
	}
	defer zr.Close()

	var a Attempt
	if err := msgpack.NewDecoder(zr).Decode(&a); err != nil {
		return nil, fmt.Errorf("unable to decode the attempt: %w", err)
	}
	return &a, nil
}

// Write stores the attempt in dir and returns the path of the file.
func Write(dir string, a *Attempt) (_ string, _err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create %q: %w", dir, err)
	}
	filePath := filepath.Join(dir, FileName(a))
	f, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("unable to create %q: %w", filePath, err)
	}
	defer func() {
		if err := f.Close(); err != nil && _err == nil {
			_err = fmt.Errorf("unable to close %q: %w", filePath, err)
		}
	}()
	if err := Encode(f, a); err != nil {
		return "", err
	}
	return filePath, nil
}

func Read(filePath string) (*Attempt, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", filePath, err)
	}
	defer f.Close()
	return Decode(f)
}
