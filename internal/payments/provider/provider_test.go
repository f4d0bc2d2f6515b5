package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gogift-backend/internal/payments"
	stripegateway "github.com/angelmondragon/gogift-backend/internal/payments/stripe"
	"github.com/angelmondragon/gogift-backend/pkg/config"
)

func TestNewSelectsProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = config.AppEnvDev
	cfg.Gateway.Provider = "FAKE"

	gw, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &payments.FakeGateway{}, gw)

	cfg.Gateway.Provider = Stripe
	cfg.Stripe = config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_123", Env: "test"}
	gw, err = New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &stripegateway.Gateway{}, gw)
}

func TestNewRejectsBadProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = config.AppEnvProd
	cfg.Gateway.Provider = Fake
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg.Gateway.Provider = "paypal"
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg.Gateway.Provider = Stripe
	_, err = New(context.Background(), cfg, nil)
	assert.Error(t, err, "missing stripe credentials")
}
