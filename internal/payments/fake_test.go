package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gogift-backend/pkg/enums"
)

func TestFakeGatewayScriptsOutcomes(t *testing.T) {
	gw := NewFakeGateway()
	orderID := uuid.New()
	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		OrderID:   orderID,
		Total:     decimal.RequireFromString("10.50"),
		ExpiresAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	outcome, err := gw.QueryStatus(context.Background(), intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentOutcomePending, outcome.Status)
	assert.False(t, outcome.Settles())

	gw.SetOutcome(intent.Reference, Outcome{Status: enums.PaymentOutcomeApproved, PaymentID: "pay_1"})
	outcome, err = gw.QueryStatus(context.Background(), intent.Reference)
	require.NoError(t, err)
	assert.Equal(t, orderID, outcome.OrderID)
	assert.True(t, outcome.Amount.Equal(decimal.RequireFromString("10.50")))
	assert.True(t, outcome.Settles())

	ref, err := gw.ReferenceForPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, intent.Reference, ref)

	require.NoError(t, gw.ExpireIntent(context.Background(), intent.Reference))
	assert.Equal(t, []string{intent.Reference}, gw.Expired())
}
