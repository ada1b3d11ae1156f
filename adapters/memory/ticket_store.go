// Package memory holds in-process implementations of the repositories.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/satriahrh/convai-relay/domain/repositories"
)

// TicketStore remembers consumed ticket ids until they expire. It is only
// correct for a single server instance.
type TicketStore struct {
	mu       sync.Mutex
	consumed map[string]time.Time // id -> expiry
	now      func() time.Time
}

var _ repositories.TicketStore = (*TicketStore)(nil)

// NewTicketStore creates a new in-memory ticket store
func NewTicketStore() *TicketStore {
	return &TicketStore{
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Consume implements TicketStore interface
func (s *TicketStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, exists := s.consumed[id]; exists && now.Before(expiry) {
		return false, nil
	}
	s.consumed[id] = now.Add(ttl)
	return true, nil
}

// Sweep forgets ids whose tickets have expired and returns how many went
func (s *TicketStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, expiry := range s.consumed {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !now.Before(expiry) {
			delete(s.consumed, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of remembered ids
func (s *TicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.consumed)
}
