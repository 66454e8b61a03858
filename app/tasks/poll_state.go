package tasks

import (
	"sync"
	"time"

	"github.com/lysyi3m/answer-relay/app/answer"
)

// PollState holds the fetch watermark. It lives only in memory and starts
// one lookback window before startup.
type PollState struct {
	mu        sync.RWMutex
	watermark time.Time
	lookback  time.Duration
}

func NewPollState(startedAt time.Time, lookback time.Duration) *PollState {
	return &PollState{
		watermark: startedAt.Add(-lookback),
		lookback:  lookback,
	}
}

func (s *PollState) Watermark() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark
}

// Advance moves the watermark to cycleStart, held back to the oldest
// retryable candidate so it is fetched again, but never further back than
// one lookback window. The watermark never moves backwards.
func (s *PollState) Advance(cycleStart time.Time, retryable []answer.Candidate) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cycleStart
	for _, c := range retryable {
		if c.CreatedAt.Before(next) {
			next = c.CreatedAt
		}
	}

	if floor := cycleStart.Add(-s.lookback); next.Before(floor) {
		next = floor
	}
	if next.After(s.watermark) {
		s.watermark = next
	}

	return s.watermark
}
