package delivery

import (
	"context"
	"fmt"
	"sync"

	"github.com/lysyi3m/answer-relay/app/database"
)

// SeenSet holds the ids of records with a stored outcome.
type SeenSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewSeenSet(ids ...string) *SeenSet {
	s := &SeenSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// LoadSeenSet seeds a set from every record id in the ledger.
func LoadSeenSet(ctx context.Context, ledger database.LedgerRepository) (*SeenSet, error) {
	ids, err := ledger.LoadSeenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to seed seen set: %w", err)
	}
	return NewSeenSet(ids...), nil
}

func (s *SeenSet) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *SeenSet) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *SeenSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
