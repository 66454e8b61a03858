package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lysyi3m/answer-relay/app/clock"
)

const DefaultInterval = 60 * time.Second

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs one task per tick on a single goroutine. A tick that
// arrives while a task is still running is dropped.
type Scheduler struct {
	interval time.Duration
	clock    clock.Clock
	newTask  func() TaskInterface
	recorder CycleRecorder
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(interval time.Duration, clk clock.Clock, newTask func() TaskInterface, recorder CycleRecorder) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		interval: interval,
		clock:    clk,
		newTask:  newTask,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runTask()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runTask()
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight step to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) runTask() {
	if s.ctx.Err() != nil {
		return
	}

	task := s.newTask()
	task.Start()

	err := s.execute(task)

	if s.recorder != nil {
		s.recorder.RecordCycle(s.clock.Now(), task.GetDuration(), err)
	}
	if err != nil {
		slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
	}
}

func (s *Scheduler) execute(task TaskInterface) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Task panicked", "type", string(task.GetType()), "id", task.GetID(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return task.Execute(s.ctx)
}
