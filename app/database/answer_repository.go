package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

const DefaultSourceTable = "answers"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var _ AnswerRepository = (*answerRepository)(nil)

type answerRepository struct {
	db    *DB
	query string
}

// NewAnswerRepository reads candidate answers from table, which must expose
// id, content, tweet_id, proof and created_at columns.
func NewAnswerRepository(db *DB, table string) (AnswerRepository, error) {
	if table == "" {
		table = DefaultSourceTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid source table name: %q", table)
	}

	return &answerRepository{
		db: db,
		query: fmt.Sprintf(`
			SELECT id, COALESCE(content, ''), COALESCE(tweet_id, ''), proof, created_at
			FROM %s
			WHERE created_at >= $1 AND created_at < $2
			ORDER BY created_at DESC
			LIMIT $3
		`, table),
	}, nil
}

// GetAnswersBetween returns answers created in [since, until), newest first.
func (r *answerRepository) GetAnswersBetween(ctx context.Context, since, until time.Time, limit int) ([]Answer, error) {
	answers, err := Select(ctx, r.db, func(rows *sql.Rows) (Answer, error) {
		var a Answer
		var proof sql.NullString
		if err := rows.Scan(&a.ID, &a.Content, &a.TargetID, &proof, &a.CreatedAt); err != nil {
			return a, fmt.Errorf("failed to scan answer row: %w", err)
		}
		a.Proof = proof.String
		return a, nil
	}, r.query, since.UTC(), until.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers since %s: %w", since.Format(time.RFC3339), err)
	}

	return answers, nil
}
