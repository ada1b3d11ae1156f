package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/convai-relay/adapters/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newIssuer(t *testing.T, ttl time.Duration) *TicketIssuer {
	t.Helper()
	return NewTicketIssuer(testSecret, ttl, memory.NewTicketStore(), zaptest.NewLogger(t))
}

func TestIssueAndValidate(t *testing.T) {
	issuer := newIssuer(t, time.Minute)

	ticket, err := issuer.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if ticket.ID == "" || ticket.Token == "" {
		t.Fatal("Expected ticket id and token")
	}

	claims, err := issuer.Validate(ticket.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.ID != ticket.ID {
		t.Errorf("Expected id %s, got %s", ticket.ID, claims.ID)
	}
	if claims.Subject != ticketSubject {
		t.Errorf("Expected subject %s, got %s", ticketSubject, claims.Subject)
	}
}

func TestIssueUniqueIDs(t *testing.T) {
	issuer := newIssuer(t, time.Minute)
	first, _ := issuer.Issue()
	second, _ := issuer.Issue()
	if first.ID == second.ID {
		t.Error("Expected distinct ticket ids")
	}
}

func TestValidateRejects(t *testing.T) {
	issuer := newIssuer(t, time.Minute)
	ticket, _ := issuer.Issue()

	other := NewTicketIssuer("another-secret-another-secret", time.Minute, memory.NewTicketStore(), zaptest.NewLogger(t))
	foreign, _ := other.Issue()

	expiredIssuer := newIssuer(t, time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	expired, _ := expiredIssuer.Issue()

	wrongSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, &TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "abc",
			Subject:   "device",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	wrongSubjectToken, _ := wrongSubject.SignedString([]byte(testSecret))

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, &TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "abc",
			Subject:   ticketSubject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	noneToken, _ := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "tampered", token: ticket.Token + "x"},
		{name: "foreign secret", token: foreign.Token},
		{name: "expired", token: expired.Token},
		{name: "wrong subject", token: wrongSubjectToken},
		{name: "none algorithm", token: noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.Validate(tt.token); !errors.Is(err, ErrTicketInvalid) {
				t.Errorf("Expected ErrTicketInvalid, got %v", err)
			}
		})
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	issuer := newIssuer(t, time.Minute)
	ticket, _ := issuer.Issue()

	if _, err := issuer.Redeem(context.Background(), ticket.Token); err != nil {
		t.Fatalf("First redeem failed: %v", err)
	}
	if _, err := issuer.Redeem(context.Background(), ticket.Token); !errors.Is(err, ErrTicketReused) {
		t.Errorf("Expected ErrTicketReused, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Consume(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("store unavailable")
}

func TestRedeemStoreFailure(t *testing.T) {
	issuer := NewTicketIssuer(testSecret, time.Minute, failingStore{}, zaptest.NewLogger(t))
	ticket, _ := issuer.Issue()

	_, err := issuer.Redeem(context.Background(), ticket.Token)
	if err == nil || errors.Is(err, ErrTicketReused) || errors.Is(err, ErrTicketInvalid) {
		t.Errorf("Expected a store error, got %v", err)
	}
}
