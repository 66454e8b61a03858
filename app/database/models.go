package database

import (
	"time"
)

// Terminal ledger statuses. Any other status is a free-form failure tag.
const (
	StatusSuccess                  = "success"
	StatusSkippedTargetUnreachable = "skipped_target_unreachable"
	StatusSkippedEmptyAfterClean   = "skipped_empty_after_clean"
)

// Answer is a row of the read-only source table.
type Answer struct {
	ID        string
	Content   string
	TargetID  string
	Proof     string // empty when NULL
	CreatedAt time.Time
}

// Outcome is a ledger row, keyed by the source answer id.
type Outcome struct {
	RecordID      string
	PostedID      string // empty unless the reply was created
	TargetID      string
	Status        string
	ContentLength int
	Proof         string
	ProcessedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal reports whether the record must never be delivered again.
func (o Outcome) IsTerminal() bool {
	switch o.Status {
	case StatusSuccess, StatusSkippedTargetUnreachable, StatusSkippedEmptyAfterClean:
		return true
	}
	return false
}
