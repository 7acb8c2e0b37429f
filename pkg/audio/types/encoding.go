package types

import (
	"time"
)

type SampleRate uint32

type Channel uint32

type Encoding interface {
	BytesPerSample() uint
	BytesForDuration(time.Duration) uint64
}

type EncodingPCM struct {
	PCMFormat  PCMFormat
	SampleRate SampleRate
}

var _ Encoding = EncodingPCM{}

func (e EncodingPCM) BytesPerSample() uint {
	return e.PCMFormat.Size()
}

// BytesForDuration returns the amount of bytes a single channel
// occupies for the given duration.
func (e EncodingPCM) BytesForDuration(d time.Duration) uint64 {
	return e.SamplesForDuration(d) * uint64(e.BytesPerSample())
}

func (e EncodingPCM) SamplesForDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) * uint64(e.SampleRate) / uint64(time.Second)
}

// DurationForSamples is the inverse of SamplesForDuration; negative
// sample counts yield negative durations.
func (e EncodingPCM) DurationForSamples(samples int64) time.Duration {
	if e.SampleRate == 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(e.SampleRate)
}
