package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/answer-relay/app/clock"
	"github.com/lysyi3m/answer-relay/app/delivery"
)

const DefaultFetchTimeout = 30 * time.Second

type PollCycleTask struct {
	Task
	fetcher      Fetcher
	processor    Processor
	state        *PollState
	clock        clock.Clock
	recorder     CycleRecorder
	fetchTimeout time.Duration
}

func NewPollCycleTask(fetcher Fetcher, processor Processor, state *PollState, clk clock.Clock, recorder CycleRecorder, fetchTimeout time.Duration) *PollCycleTask {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}

	return &PollCycleTask{
		Task:         NewTask(TaskTypePollCycle),
		fetcher:      fetcher,
		processor:    processor,
		state:        state,
		clock:        clk,
		recorder:     recorder,
		fetchTimeout: fetchTimeout,
	}
}

// Execute fetches candidates created between the watermark and the cycle
// start and delivers them.
// A failed fetch leaves the watermark where it was.
func (t *PollCycleTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cycleStart := t.clock.Now()
	since := t.state.Watermark()

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.fetchTimeout)
	candidates, err := t.fetcher.Fetch(fetchCtx, since, cycleStart)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to fetch candidates: %w", err)
	}

	if t.recorder != nil {
		t.recorder.RecordFetched(len(candidates))
	}

	if len(candidates) == 0 {
		t.state.Advance(cycleStart, nil)
		slog.Debug("No new answers", "since", since)
		return nil
	}

	batch := t.processor.Process(ctx, candidates)
	watermark := t.state.Advance(cycleStart, batch.Retryable)

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"duration", t.GetDuration(),
		"total", len(candidates),
		"posted", batch.Counts[delivery.StateSucceeded],
		"already_seen", batch.Counts[delivery.StateAlreadySeen],
		"skipped_unreachable", batch.Counts[delivery.StateSkippedUnreachable],
		"skipped_empty", batch.Counts[delivery.StateSkippedEmpty],
		"failed", batch.Counts[delivery.StateFailed],
		"interrupted", batch.Counts[delivery.StateInterrupted],
		"watermark", watermark)

	return nil
}
