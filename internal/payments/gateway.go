package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session is a hosted payment page reference produced by the gateway.
type Session struct {
	ID  string
	URL string
}

// Gateway is the opaque payment collaborator. It produces hosted sessions and
// later reports the outcome through the webhook endpoint.
type Gateway interface {
	CreateSession(ctx context.Context, amount decimal.Decimal, successURL, cancelURL string) (*Session, error)
}

type mockGateway struct {
	mu       sync.RWMutex
	sessions map[string]decimal.Decimal
}

// NewMockGateway returns an in-memory gateway for local runs and tests.
func NewMockGateway() Gateway {
	return &mockGateway{sessions: make(map[string]decimal.Decimal)}
}

func (g *mockGateway) CreateSession(ctx context.Context, amount decimal.Decimal, successURL, cancelURL string) (*Session, error) {
	id := "cs_" + uuid.NewString()
	g.mu.Lock()
	g.sessions[id] = amount
	g.mu.Unlock()
	return &Session{
		ID:  id,
		URL: fmt.Sprintf("https://gateway.example.com/pay/%s", id),
	}, nil
}
