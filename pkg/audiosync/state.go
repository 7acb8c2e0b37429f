package audiosync

import (
	"fmt"
)

type State int

const (
	StateIdle = State(iota)
	StateRunning
	StatePaused
	StateAborting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateAborting:
		return "aborting"
	default:
		return fmt.Sprintf("<unknown_%d>", int(s))
	}
}

type Outcome int

const (
	OutcomeUndefined = Outcome(iota)

	// OutcomeMatched means the lag was found.
	OutcomeMatched

	// OutcomeNoMatch means the correlation never became confident
	// enough. It is a negative result, not a fault.
	OutcomeNoMatch

	// OutcomeAborted means the session was aborted.
	OutcomeAborted

	// OutcomeFault means a source failed; Run returns the error.
	OutcomeFault

	// OutcomeBusy means no session was started since another one
	// was active.
	OutcomeBusy
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUndefined:
		return "undefined"
	case OutcomeMatched:
		return "matched"
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFault:
		return "fault"
	case OutcomeBusy:
		return "busy"
	default:
		return fmt.Sprintf("<unknown_%d>", int(o))
	}
}

type Result struct {
	// LagSamples is how far the capture is behind the beginning of
	// the reference; it is meaningful only if Success is true.
	LagSamples int64
	LagMS      int64
	Confidence float64
	Success    bool
	Outcome    Outcome

	// Attempts is the amount of windows that were correlated.
	Attempts int
}

func (r Result) String() string {
	return fmt.Sprintf("%s (lag: %dms, confidence: %.3f, attempts: %d)", r.Outcome, r.LagMS, r.Confidence, r.Attempts)
}
