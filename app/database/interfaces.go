package database

import (
	"context"
	"time"
)

type AnswerRepository interface {
	GetAnswersBetween(ctx context.Context, since, until time.Time, limit int) ([]Answer, error)
}

type LedgerRepository interface {
	LoadSeenIDs(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, outcome Outcome) error

	GetOutcome(ctx context.Context, recordID string) (*Outcome, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
}
