package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/answer-relay/app/clock"
)

const DefaultWaitSlice = 5 * time.Second

type Tracker struct {
	clock     clock.Clock
	recorder  WaitRecorder
	waitSlice time.Duration

	mu     sync.Mutex
	states map[Class]*State
}

func NewTracker(clk clock.Clock, recorder WaitRecorder) *Tracker {
	return &Tracker{
		clock:     clk,
		recorder:  recorder,
		waitSlice: DefaultWaitSlice,
		states:    make(map[Class]*State),
	}
}

func (t *Tracker) Update(class Class, meta Metadata) {
	if meta.IsEmpty() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[class]
	if !ok {
		state = &State{}
		t.states[class] = state
	}
	if meta.HasLimit {
		state.Limit = meta.Limit
	}
	if meta.HasRemaining {
		state.Remaining = meta.Remaining
	}
	if meta.HasReset {
		state.ResetAt = meta.ResetAt
	}

	slog.Debug("Rate limit updated", "class", string(class), "remaining", state.Remaining, "limit", state.Limit, "reset_at", state.ResetAt)
}

// Check reports whether a call in class may go out now. An elapsed window
// restores the remaining quota to the limit.
func (t *Tracker) Check(class Class) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[class]
	if !ok {
		return Decision{CanProceed: true}
	}

	now := t.clock.Now()
	state.LastCheckedAt = now

	if !now.Before(state.ResetAt) {
		state.Remaining = state.Limit
		return Decision{CanProceed: true}
	}
	if state.Remaining > 0 {
		return Decision{CanProceed: true}
	}

	return Decision{CanProceed: false, Wait: state.ResetAt.Sub(now)}
}

// AwaitReset sleeps for wait in bounded slices so that a cancelled context
// ends the wait within one slice.
func (t *Tracker) AwaitReset(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}

	slog.Info("Rate limit reached, waiting for reset", "wait", wait.String())

	var waited time.Duration
	defer func() {
		if t.recorder != nil {
			t.recorder.RecordRateLimitWait(waited)
		}
	}()

	for waited < wait {
		slice := min(t.waitSlice, wait-waited)
		if err := t.clock.Sleep(ctx, slice); err != nil {
			slog.Info("Rate limit wait interrupted", "waited", waited.String())
			return err
		}
		waited += slice
	}

	return nil
}

func (t *Tracker) Snapshot() map[Class]State {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[Class]State, len(t.states))
	for class, state := range t.states {
		out[class] = *state
	}
	return out
}
