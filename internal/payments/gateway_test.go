package payments

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMockGatewaySessions(t *testing.T) {
	g := NewMockGateway()

	s1, err := g.CreateSession(context.Background(), decimal.NewFromFloat(45.00), "https://shop.test/ok", "https://shop.test/cancel")
	require.NoError(t, err)
	s2, err := g.CreateSession(context.Background(), decimal.NewFromFloat(10.00), "https://shop.test/ok", "https://shop.test/cancel")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(s1.ID, "cs_"))
	require.NotEqual(t, s1.ID, s2.ID)
	require.Contains(t, s1.URL, s1.ID)
}
