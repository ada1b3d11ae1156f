package repositories

import (
	"context"
	"time"
)

// TicketStore remembers consumed relay tickets so each can be used once
type TicketStore interface {
	// Consume marks id as used. It returns false when id was already consumed.
	Consume(ctx context.Context, id string, ttl time.Duration) (bool, error)
}
