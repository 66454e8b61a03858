package tasks

import (
	"testing"
	"time"

	"github.com/lysyi3m/answer-relay/app/answer"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestPollState_StartsOneLookbackBack(t *testing.T) {
	state := NewPollState(epoch, 24*time.Hour)

	if want := epoch.Add(-24 * time.Hour); !state.Watermark().Equal(want) {
		t.Errorf("Expected watermark %v, got %v", want, state.Watermark())
	}
}

func TestPollState_AdvancesToCycleStart(t *testing.T) {
	state := NewPollState(epoch, time.Hour)
	cycleStart := epoch.Add(time.Minute)

	got := state.Advance(cycleStart, nil)
	if !got.Equal(cycleStart) {
		t.Errorf("Expected watermark %v, got %v", cycleStart, got)
	}
}

func TestPollState_HoldsBackForRetryable(t *testing.T) {
	state := NewPollState(epoch, time.Hour)
	cycleStart := epoch.Add(time.Minute)
	oldest := epoch.Add(-10 * time.Minute)

	got := state.Advance(cycleStart, []answer.Candidate{
		{ID: "a", CreatedAt: epoch.Add(-time.Minute)},
		{ID: "b", CreatedAt: oldest},
	})
	if !got.Equal(oldest) {
		t.Errorf("Expected watermark clamped to %v, got %v", oldest, got)
	}
}

func TestPollState_RetryableAgesOutOfLookback(t *testing.T) {
	state := NewPollState(epoch, time.Hour)

	cycleStart := epoch.Add(2 * time.Hour)
	got := state.Advance(cycleStart, []answer.Candidate{
		{ID: "stale", CreatedAt: epoch.Add(-30 * time.Minute)},
	})

	if want := cycleStart.Add(-time.Hour); !got.Equal(want) {
		t.Errorf("Expected watermark floored at %v, got %v", want, got)
	}
}

func TestPollState_NeverMovesBackwards(t *testing.T) {
	state := NewPollState(epoch, time.Hour)
	state.Advance(epoch.Add(10*time.Minute), nil)

	got := state.Advance(epoch.Add(5*time.Minute), nil)
	if want := epoch.Add(10 * time.Minute); !got.Equal(want) {
		t.Errorf("Expected watermark to stay at %v, got %v", want, got)
	}
}
