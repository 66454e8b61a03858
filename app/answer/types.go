package answer

import (
	"time"
)

// Candidate is a source answer awaiting delivery as a reply.
type Candidate struct {
	ID        string
	Content   string
	TargetID  string // post the answer replies to
	Proof     string // optional, informational only
	CreatedAt time.Time
}
