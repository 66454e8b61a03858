package delivery

import (
	"time"

	"github.com/lysyi3m/answer-relay/app/answer"
	"github.com/lysyi3m/answer-relay/app/stats"
)

// State is the final state a candidate reached in one delivery attempt.
type State string

const (
	StateSucceeded          State = "succeeded"
	StateSkippedUnreachable State = "skipped_unreachable"
	StateSkippedEmpty       State = "skipped_empty"
	StateFailed             State = "failed"
	StateAlreadySeen        State = "already_seen"
	StateInterrupted        State = "interrupted"
)

// Retryable reports whether the candidate must stay eligible for a later cycle.
func (s State) Retryable() bool {
	switch s {
	case StateFailed, StateSkippedEmpty, StateInterrupted:
		return true
	}
	return false
}

func (s State) outcome() string {
	switch s {
	case StateSucceeded:
		return stats.OutcomePosted
	case StateSkippedUnreachable:
		return stats.OutcomeSkippedUnreachable
	case StateSkippedEmpty:
		return stats.OutcomeSkippedEmpty
	case StateAlreadySeen:
		return stats.OutcomeAlreadySeen
	case StateInterrupted:
		return stats.OutcomeInterrupted
	}
	return stats.OutcomeFailed
}

const (
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 5 * time.Second
	DefaultRetryMultiplier  = 2.0
	DefaultMaxBackoffDelay  = 5 * time.Minute
	DefaultMinPostInterval  = 10 * time.Second
	DefaultMaxContentLength = 25000
	DefaultCallTimeout      = 30 * time.Second

	truncationMarker = "..."
)

type Settings struct {
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMultiplier  float64
	MaxBackoffDelay  time.Duration
	MinPostInterval  time.Duration // zero disables spacing
	MaxContentLength int           // in runes
	CallTimeout      time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		MaxRetries:       DefaultMaxRetries,
		RetryBaseDelay:   DefaultRetryBaseDelay,
		RetryMultiplier:  DefaultRetryMultiplier,
		MaxBackoffDelay:  DefaultMaxBackoffDelay,
		MinPostInterval:  DefaultMinPostInterval,
		MaxContentLength: DefaultMaxContentLength,
		CallTimeout:      DefaultCallTimeout,
	}
}

type Result struct {
	Candidate answer.Candidate
	State     State
	PostedID  string
	Err       error
}

// BatchResult summarizes one Process call. Retryable holds the candidates
// that a later cycle has to fetch again.
type BatchResult struct {
	Counts    map[State]int
	Retryable []answer.Candidate
}

func (b BatchResult) Total() int {
	total := 0
	for _, n := range b.Counts {
		total += n
	}
	return total
}

// OutcomeRecorder receives one outcome label per delivered candidate.
type OutcomeRecorder interface {
	RecordOutcome(outcome string)
}
