package api

import (
	"context"
	"time"

	"github.com/lysyi3m/answer-relay/app/database"
	"github.com/lysyi3m/answer-relay/app/ratelimit"
	"github.com/lysyi3m/answer-relay/app/stats"
)

type StatsProvider interface {
	Snapshot() stats.Snapshot
}

type RateLimitProvider interface {
	Snapshot() map[ratelimit.Class]ratelimit.State
}

type WatermarkProvider interface {
	Watermark() time.Time
}

type SeenCounter interface {
	Len() int
}

type Pinger interface {
	Name() string
	Ping(ctx context.Context) error
}

type Handler struct {
	stats     StatsProvider
	limits    RateLimitProvider
	watermark WatermarkProvider
	seen      SeenCounter
	ledger    database.LedgerRepository
	stores    []Pinger
	version   string
}
