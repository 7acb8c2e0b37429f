package audiosync

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/audiosync/pkg/audio/types"
	"github.com/xaionaro-go/audiosync/pkg/syncer"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/gccphat"
	"github.com/xaionaro-go/audiosync/pkg/syncer/implementations/xcorr"
)

const (
	AlgorithmXCorr   = "xcorr"
	AlgorithmGCCPHAT = "gccphat"
)

// Policy holds the tunables of a session.
type Policy struct {
	SampleRate types.SampleRate

	// Windows of MinDuration, MinDuration+Step, ... up to MaxDuration
	// are correlated until one of them matches.
	MinDuration time.Duration
	Step        time.Duration
	MaxDuration time.Duration

	Threshold  float64
	MinOverlap float64
	Algorithm  string

	// DebugDir is where correlation attempts are dumped while the
	// debug flag is set. Empty disables the dumps.
	DebugDir string
}

func DefaultPolicy() Policy {
	return Policy{
		SampleRate:  48000,
		MinDuration: 3 * time.Second,
		Step:        3 * time.Second,
		MaxDuration: 15 * time.Second,
		Threshold:   syncer.DefaultThreshold,
		MinOverlap:  syncer.DefaultMinOverlap,
		Algorithm:   AlgorithmXCorr,
	}
}

func (p Policy) Validate() error {
	switch {
	case p.SampleRate == 0:
		return fmt.Errorf("the sample rate is zero")
	case p.MinDuration <= 0:
		return fmt.Errorf("the minimal window duration must be positive, got %v", p.MinDuration)
	case p.Step <= 0:
		return fmt.Errorf("the window step must be positive, got %v", p.Step)
	case p.MaxDuration < p.MinDuration:
		return fmt.Errorf("the maximal window duration (%v) is less than the minimal one (%v)", p.MaxDuration, p.MinDuration)
	case p.Threshold < -1 || p.Threshold >= 1:
		return fmt.Errorf("the threshold must be in [-1, 1), got %v", p.Threshold)
	case p.MinOverlap < 0 || p.MinOverlap > 1:
		return fmt.Errorf("the minimal overlap must be in [0, 1], got %v", p.MinOverlap)
	}
	switch p.Algorithm {
	case AlgorithmXCorr, AlgorithmGCCPHAT:
	default:
		return fmt.Errorf("unknown algorithm %q", p.Algorithm)
	}
	return nil
}

// Schedule returns the window durations in the order they are tried.
// The last one is always MaxDuration.
func (p Policy) Schedule() []time.Duration {
	var result []time.Duration
	for d := p.MinDuration; d < p.MaxDuration; d += p.Step {
		result = append(result, d)
	}
	return append(result, p.MaxDuration)
}

func (p Policy) Encoding() types.EncodingPCM {
	return types.EncodingPCM{
		PCMFormat:  types.PCMFormatFloat64LE,
		SampleRate: p.SampleRate,
	}
}

func (p Policy) Verdict() syncer.Verdict {
	return syncer.Verdict{
		Threshold:  p.Threshold,
		MinOverlap: p.MinOverlap,
	}
}

func (p Policy) NewSyncer() (syncer.Syncer, error) {
	switch p.Algorithm {
	case AlgorithmXCorr, "":
		return xcorr.NewSyncer(p.Verdict()), nil
	case AlgorithmGCCPHAT:
		return gccphat.NewSyncer(float64(p.SampleRate), p.Verdict())
	default:
		return nil, fmt.Errorf("unknown algorithm %q", p.Algorithm)
	}
}
