// Package provider picks the payment gateway named by configuration.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/gogift-backend/internal/payments"
	stripegateway "github.com/angelmondragon/gogift-backend/internal/payments/stripe"
	"github.com/angelmondragon/gogift-backend/pkg/config"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/stripe"
)

const (
	Stripe = "stripe"
	Fake   = "fake"
)

// New builds the configured gateway. The fake provider is refused in
// production.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Gateway, error) {
	switch name := strings.ToLower(strings.TrimSpace(cfg.Gateway.Provider)); name {
	case "", Stripe:
		client, err := stripe.NewClient(ctx, cfg.Stripe, cfg.App, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		return stripegateway.New(client, cfg.Gateway.RequestTimeout)
	case Fake:
		if cfg.App.IsProd() {
			return nil, fmt.Errorf("fake payment gateway is not allowed in %s", cfg.App.Env)
		}
		if logg != nil {
			logg.Warn(ctx, "using in-memory payment gateway")
		}
		return payments.NewFakeGateway(), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway provider %q", name)
	}
}
