package runner

import (
	"github.com/shigechika/speedtestz/internal/errors"
)

// State is a phase of the per-site measurement state machine.
type State int

const (
	StateNotStarted State = iota
	StateNavigating
	StateAwaitingTestStart
	StateAwaitingCompletion
	StateExtracting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateNavigating:
		return "navigating"
	case StateAwaitingTestStart:
		return "awaiting_test_start"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateExtracting:
		return "extracting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is the disposition of one site within a run.
type Status int

const (
	StatusSucceeded Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sample is one extracted metric, keyed below the site's prefix.
type Sample struct {
	Key   string
	Value float64
}

// Outcome is the result of one site runner execution. Exactly one is
// produced per site per run.
type Outcome struct {
	Site    string
	Status  Status
	Samples []Sample

	// Code classifies the failure when Status is StatusFailed.
	Code errors.ErrorCode
	// Detail carries context: the failing rule key, the skip reason.
	Detail string
}

// Succeeded builds a success outcome.
func Succeeded(site string, samples []Sample) Outcome {
	return Outcome{Site: site, Status: StatusSucceeded, Samples: samples}
}

// Skipped builds a frequency-gate rejection outcome.
func Skipped(site, reason string) Outcome {
	return Outcome{Site: site, Status: StatusSkipped, Detail: reason}
}

// Failed builds a classified failure outcome.
func Failed(site string, code errors.ErrorCode, detail string) Outcome {
	return Outcome{Site: site, Status: StatusFailed, Code: code, Detail: detail}
}
