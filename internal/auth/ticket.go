package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain/repositories"
)

const ticketSubject = "relay"

var (
	// ErrTicketInvalid is returned for malformed, expired or foreign tickets
	ErrTicketInvalid = errors.New("invalid relay ticket")
	// ErrTicketReused is returned when a ticket was already consumed
	ErrTicketReused = errors.New("relay ticket already used")
)

// TicketClaims represents the claims in a relay ticket
type TicketClaims struct {
	jwt.RegisteredClaims
}

// Ticket is an issued relay ticket
type Ticket struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

// TicketIssuer signs short-lived, single-use tickets that admit one browser
// connection to the relay.
type TicketIssuer struct {
	secret []byte
	ttl    time.Duration
	store  repositories.TicketStore
	logger *zap.Logger
	now    func() time.Time
}

// NewTicketIssuer creates a ticket issuer
func NewTicketIssuer(secret string, ttl time.Duration, store repositories.TicketStore, logger *zap.Logger) *TicketIssuer {
	return &TicketIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Issue generates a new ticket
func (i *TicketIssuer) Issue() (Ticket, error) {
	now := i.now()
	id := uuid.NewString()
	expiresAt := now.Add(i.ttl)

	claims := &TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   ticketSubject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return Ticket{}, fmt.Errorf("failed to sign ticket: %w", err)
	}

	return Ticket{Token: signed, ID: id, ExpiresAt: expiresAt}, nil
}

// Validate checks the signature and expiry of a ticket and returns its claims
func (i *TicketIssuer) Validate(tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(ticketSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTicketInvalid, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrTicketInvalid
	}
	return claims, nil
}

// Redeem validates a ticket and consumes it. A ticket redeems only once.
func (i *TicketIssuer) Redeem(ctx context.Context, tokenString string) (*TicketClaims, error) {
	claims, err := i.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	remaining := claims.ExpiresAt.Time.Sub(i.now())
	if remaining < time.Second {
		remaining = time.Second
	}

	fresh, err := i.store.Consume(ctx, claims.ID, remaining)
	if err != nil {
		return nil, fmt.Errorf("failed to consume ticket: %w", err)
	}
	if !fresh {
		i.logger.Warn("Relay ticket reuse rejected", zap.String("ticketID", claims.ID))
		return nil, ErrTicketReused
	}
	return claims, nil
}
