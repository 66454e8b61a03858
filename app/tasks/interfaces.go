package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/answer-relay/app/answer"
	"github.com/lysyi3m/answer-relay/app/delivery"
)

// TaskSchedulerInterface is the poll loop as seen by main.
//
//	scheduler := NewScheduler(interval, clk, factory, stats)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
}

type Fetcher interface {
	Fetch(ctx context.Context, since, until time.Time) ([]answer.Candidate, error)
}

type Processor interface {
	Process(ctx context.Context, candidates []answer.Candidate) delivery.BatchResult
}

type CycleRecorder interface {
	RecordCycle(finishedAt time.Time, duration time.Duration, err error)
	RecordFetched(n int)
}
