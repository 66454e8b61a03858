package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/answer-relay/app/clock"
)

type funcTask struct {
	Task
	run func(ctx context.Context) error
}

func (t *funcTask) Execute(ctx context.Context) error {
	return t.run(ctx)
}

type safeRecorder struct {
	mu       sync.Mutex
	cycles   int
	errs     []error
	finished []time.Time
}

func (r *safeRecorder) RecordCycle(finishedAt time.Time, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
	r.errs = append(r.errs, err)
	r.finished = append(r.finished, finishedAt)
}

func (r *safeRecorder) RecordFetched(n int) {}

func (r *safeRecorder) snapshot() (int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycles, append([]error(nil), r.errs...)
}

func TestScheduler_RunsImmediatelyOnStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	recorder := &safeRecorder{}

	scheduler := NewScheduler(time.Hour, clock.Real(), func() TaskInterface {
		return &funcTask{Task: NewTask(TaskTypePollCycle), run: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		}}
	}, recorder)

	scheduler.Start()
	defer scheduler.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a cycle right after Start")
	}
}

func TestScheduler_SurvivesPanicsAndErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})

	recorder := &safeRecorder{}
	scheduler := NewScheduler(10*time.Millisecond, clock.Real(), func() TaskInterface {
		return &funcTask{Task: NewTask(TaskTypePollCycle), run: func(ctx context.Context) error {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()

			switch n {
			case 1:
				panic("boom")
			case 2:
				return errors.New("cycle failed")
			case 3:
				close(done)
			}
			return nil
		}}
	}, recorder)

	scheduler.Start()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the loop to keep running after a panic and an error")
	}
	scheduler.Stop()

	cycles, errs := recorder.snapshot()
	if cycles < 3 {
		t.Fatalf("Expected at least 3 recorded cycles, got %d", cycles)
	}
	if errs[0] == nil || errs[1] == nil {
		t.Errorf("Expected the first two cycles to record errors, got %v", errs[:2])
	}
	if errs[2] != nil {
		t.Errorf("Expected the third cycle to succeed, got %v", errs[2])
	}
}

func TestScheduler_StopWaitsForInFlightTask(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	scheduler := NewScheduler(time.Hour, clock.Real(), func() TaskInterface {
		return &funcTask{Task: NewTask(TaskTypePollCycle), run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
			close(finished)
			return ctx.Err()
		}}
	}, nil)

	scheduler.Start()
	<-started
	scheduler.Stop()

	select {
	case <-finished:
	default:
		t.Error("Expected Stop to return only after the in-flight task finished")
	}
}

func TestScheduler_StampsCyclesWithInjectedClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	recorder := &safeRecorder{}
	done := make(chan struct{})

	scheduler := NewScheduler(time.Hour, clk, func() TaskInterface {
		return &funcTask{Task: NewTask(TaskTypePollCycle), run: func(ctx context.Context) error {
			clk.Advance(90 * time.Second)
			close(done)
			return nil
		}}
	}, recorder)

	scheduler.Start()
	<-done
	scheduler.Stop()

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	if len(recorder.finished) != 1 {
		t.Fatalf("Expected one recorded cycle, got %d", len(recorder.finished))
	}
	want := now.Add(90 * time.Second)
	if !recorder.finished[0].Equal(want) {
		t.Errorf("Expected cycle finished at %v, got %v", want, recorder.finished[0])
	}
}
