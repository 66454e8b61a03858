package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ LedgerRepository = (*ledgerRepository)(nil)

type ledgerRepository struct {
	db *DB
}

func NewLedgerRepository(db *DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// LoadSeenIDs returns every record id the ledger has ever stored.
func (r *ledgerRepository) LoadSeenIDs(ctx context.Context) ([]string, error) {
	ids, err := Select(ctx, r.db, func(rows *sql.Rows) (string, error) {
		var id string
		err := rows.Scan(&id)
		return id, err
	}, `SELECT record_id FROM processed_answers`)
	if err != nil {
		return nil, fmt.Errorf("failed to load seen ids: %w", err)
	}

	return ids, nil
}

// Upsert inserts the outcome or, for a known record id, overwrites posted_id,
// status and updated_at in one statement. Creation fields are left alone.
func (r *ledgerRepository) Upsert(ctx context.Context, outcome Outcome) error {
	if outcome.RecordID == "" {
		return errors.New("outcome record id is required")
	}

	now := time.Now().UTC()
	if outcome.ProcessedAt.IsZero() {
		outcome.ProcessedAt = now
	}
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = outcome.ProcessedAt
	}
	if outcome.UpdatedAt.IsZero() {
		outcome.UpdatedAt = outcome.ProcessedAt
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO processed_answers (
			record_id, posted_id, target_id, status, content_length,
			proof, processed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (record_id) DO UPDATE SET
			posted_id = EXCLUDED.posted_id,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, outcome.RecordID, nullString(outcome.PostedID), outcome.TargetID, outcome.Status,
		outcome.ContentLength, nullString(outcome.Proof),
		outcome.ProcessedAt.UTC(), outcome.CreatedAt.UTC(), outcome.UpdatedAt.UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert outcome %s: %w", outcome.RecordID, err)
	}

	return nil
}

// GetOutcome returns nil when the record id is unknown.
func (r *ledgerRepository) GetOutcome(ctx context.Context, recordID string) (*Outcome, error) {
	var o Outcome
	var postedID, proof sql.NullString

	err := r.db.QueryRow(ctx, `
		SELECT record_id, posted_id, target_id, status, content_length,
		       proof, processed_at, created_at, updated_at
		FROM processed_answers
		WHERE record_id = $1
	`, []any{recordID},
		&o.RecordID, &postedID, &o.TargetID, &o.Status, &o.ContentLength,
		&proof, &o.ProcessedAt, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome %s: %w", recordID, err)
	}

	o.PostedID = postedID.String
	o.Proof = proof.String
	return &o, nil
}

func (r *ledgerRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	type statusCount struct {
		status string
		count  int
	}

	rows, err := Select(ctx, r.db, func(rows *sql.Rows) (statusCount, error) {
		var sc statusCount
		err := rows.Scan(&sc.status, &sc.count)
		return sc, err
	}, `SELECT status, COUNT(*) FROM processed_answers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes by status: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, sc := range rows {
		counts[sc.status] = sc.count
	}
	return counts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
