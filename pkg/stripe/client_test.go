package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/gogift-backend/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	app := config.AppConfig{FrontendURL: "https://gogift.test/"}

	_, err := NewClient(context.Background(), config.StripeConfig{Secret: "whsec"}, app, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1"}, app, nil)
	assert.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec", Env: "test"}, app, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec", Env: "staging"}, app, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)
}

func TestNewClientBuildsReturnURLs(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{APIKey: "rk_test_1", Secret: "whsec", Env: "TEST"}, config.AppConfig{FrontendURL: "https://gogift.test/"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec", client.SigningSecret())
	assert.Equal(t, "https://gogift.test/orders/success?session_id={CHECKOUT_SESSION_ID}", client.SuccessURL())
	assert.Equal(t, "https://gogift.test/orders/cancelled", client.CancelURL())
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	assert.Empty(t, c.Environment())
	assert.Empty(t, c.SigningSecret())
	assert.Empty(t, c.SuccessURL())
}
