// Package redis stores consumed relay tickets in Redis so every server
// instance sees the same set.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain/repositories"
)

const keyPrefix = "convai-relay:ticket:"

// TicketStore marks tickets consumed with SETNX; the key expires with the ticket
type TicketStore struct {
	client *goredis.Client
	logger *zap.Logger
}

var _ repositories.TicketStore = (*TicketStore)(nil)

// NewTicketStore creates a ticket store on an existing client
func NewTicketStore(client *goredis.Client, logger *zap.Logger) *TicketStore {
	return &TicketStore{client: client, logger: logger}
}

// Connect parses redisURL, opens a client and pings it
func Connect(ctx context.Context, redisURL string, logger *zap.Logger) (*TicketStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return NewTicketStore(client, logger), nil
}

// Consume implements TicketStore interface
func (s *TicketStore) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	fresh, err := s.client.SetNX(ctx, keyPrefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record ticket: %w", err)
	}
	return fresh, nil
}

// Close closes the underlying client
func (s *TicketStore) Close() error {
	return s.client.Close()
}
