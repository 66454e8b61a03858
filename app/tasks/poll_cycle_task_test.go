package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/answer-relay/app/answer"
	"github.com/lysyi3m/answer-relay/app/clock"
	"github.com/lysyi3m/answer-relay/app/delivery"
)

type mockFetcher struct {
	candidates []answer.Candidate
	err        error
	sinces     []time.Time
	untils     []time.Time
	ctxErr     error
}

func (m *mockFetcher) Fetch(ctx context.Context, since, until time.Time) ([]answer.Candidate, error) {
	m.sinces = append(m.sinces, since)
	m.untils = append(m.untils, until)
	m.ctxErr = ctx.Err()
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}

type mockProcessor struct {
	result    delivery.BatchResult
	processed [][]answer.Candidate
}

func (m *mockProcessor) Process(ctx context.Context, candidates []answer.Candidate) delivery.BatchResult {
	m.processed = append(m.processed, candidates)
	if m.result.Counts == nil {
		return delivery.BatchResult{Counts: map[delivery.State]int{delivery.StateSucceeded: len(candidates)}}
	}
	return m.result
}

type mockCycleRecorder struct {
	cycles  int
	errs    []error
	fetched int
}

func (m *mockCycleRecorder) RecordCycle(finishedAt time.Time, duration time.Duration, err error) {
	m.cycles++
	m.errs = append(m.errs, err)
}

func (m *mockCycleRecorder) RecordFetched(n int) {
	m.fetched += n
}

func TestPollCycleTask_FetchesSinceWatermarkAndAdvances(t *testing.T) {
	fake := clock.NewFake(epoch)
	state := NewPollState(epoch, time.Hour)
	fetcher := &mockFetcher{candidates: []answer.Candidate{{ID: "a1", CreatedAt: epoch.Add(-time.Minute)}}}
	processor := &mockProcessor{}
	recorder := &mockCycleRecorder{}

	task := NewPollCycleTask(fetcher, processor, state, fake, recorder, time.Second)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(fetcher.sinces) != 1 || !fetcher.sinces[0].Equal(epoch.Add(-time.Hour)) {
		t.Errorf("Expected fetch since %v, got %v", epoch.Add(-time.Hour), fetcher.sinces)
	}
	if len(fetcher.untils) != 1 || !fetcher.untils[0].Equal(epoch) {
		t.Errorf("Expected fetch until cycle start %v, got %v", epoch, fetcher.untils)
	}
	if len(processor.processed) != 1 || len(processor.processed[0]) != 1 {
		t.Errorf("Expected one batch of one candidate, got %v", processor.processed)
	}
	if !state.Watermark().Equal(epoch) {
		t.Errorf("Expected watermark at cycle start %v, got %v", epoch, state.Watermark())
	}
	if recorder.fetched != 1 {
		t.Errorf("Expected 1 fetched, got %d", recorder.fetched)
	}
}

func TestPollCycleTask_FetchErrorKeepsWatermark(t *testing.T) {
	state := NewPollState(epoch, time.Hour)
	before := state.Watermark()
	fetcher := &mockFetcher{err: errors.New("connection refused")}
	processor := &mockProcessor{}

	task := NewPollCycleTask(fetcher, processor, state, clock.NewFake(epoch.Add(time.Minute)), nil, time.Second)
	err := task.Execute(context.Background())

	if err == nil {
		t.Fatal("Expected fetch error")
	}
	if !state.Watermark().Equal(before) {
		t.Errorf("Expected watermark %v to be unchanged, got %v", before, state.Watermark())
	}
	if len(processor.processed) != 0 {
		t.Error("Expected nothing to be processed")
	}
}

func TestPollCycleTask_RetryableHoldsWatermark(t *testing.T) {
	state := NewPollState(epoch, time.Hour)
	failedAt := epoch.Add(-5 * time.Minute)
	failed := answer.Candidate{ID: "a1", CreatedAt: failedAt}

	fetcher := &mockFetcher{candidates: []answer.Candidate{failed}}
	processor := &mockProcessor{result: delivery.BatchResult{
		Counts:    map[delivery.State]int{delivery.StateFailed: 1},
		Retryable: []answer.Candidate{failed},
	}}

	task := NewPollCycleTask(fetcher, processor, state, clock.NewFake(epoch), nil, time.Second)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !state.Watermark().Equal(failedAt) {
		t.Errorf("Expected watermark held at %v, got %v", failedAt, state.Watermark())
	}
}

func TestPollCycleTask_EmptyFetchAdvances(t *testing.T) {
	state := NewPollState(epoch, time.Hour)
	cycleStart := epoch.Add(time.Minute)

	task := NewPollCycleTask(&mockFetcher{}, &mockProcessor{}, state, clock.NewFake(cycleStart), nil, time.Second)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !state.Watermark().Equal(cycleStart) {
		t.Errorf("Expected watermark %v, got %v", cycleStart, state.Watermark())
	}
}

func TestPollCycleTask_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &mockFetcher{}
	task := NewPollCycleTask(fetcher, &mockProcessor{}, NewPollState(epoch, time.Hour), clock.NewFake(epoch), nil, time.Second)

	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(fetcher.sinces) != 0 {
		t.Error("Expected no fetch after cancellation")
	}
}

func TestPollCycleTask_ReportsTaskType(t *testing.T) {
	task := NewPollCycleTask(&mockFetcher{}, &mockProcessor{}, NewPollState(epoch, time.Hour), clock.NewFake(epoch), nil, 0)

	if task.GetType() != TaskTypePollCycle {
		t.Errorf("Expected type %s, got %s", TaskTypePollCycle, task.GetType())
	}
	if task.GetID() == "" {
		t.Error("Expected task id to be set")
	}
	if task.GetDuration() != 0 {
		t.Error("Expected zero duration before Start")
	}
}
