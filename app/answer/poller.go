package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/answer-relay/app/database"
)

const DefaultPageSize = 50

type Poller struct {
	repo     database.AnswerRepository
	pageSize int
}

func NewPoller(repo database.AnswerRepository, pageSize int) *Poller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Poller{repo: repo, pageSize: pageSize}
}

// Fetch returns answers created in [since, until), newest first. Rows without
// content or without a target are dropped; a missing proof is fine.
func (p *Poller) Fetch(ctx context.Context, since, until time.Time) ([]Candidate, error) {
	rows, err := p.repo.GetAnswersBetween(ctx, since, until, p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch answers: %w", err)
	}

	candidates := make([]Candidate, 0, len(rows))
	invalid := 0
	for _, row := range rows {
		if strings.TrimSpace(row.Content) == "" || strings.TrimSpace(row.TargetID) == "" {
			invalid++
			continue
		}
		candidates = append(candidates, Candidate{
			ID:        row.ID,
			Content:   row.Content,
			TargetID:  strings.TrimSpace(row.TargetID),
			Proof:     row.Proof,
			CreatedAt: row.CreatedAt,
		})
	}

	if invalid > 0 {
		slog.Debug("Dropped invalid answers", "count", invalid, "since", since)
	}

	return candidates, nil
}
