// Package stripe configures the Stripe SDK for one account mode and holds the
// secrets the payment and webhook layers read.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// secret and restricted key prefixes accepted per mode
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe: api key is required")
	errSecretRequired = errors.New("stripe: webhook signing secret is required")
	errUnknownMode    = errors.New(`stripe: mode must be "test" or "live"`)
)

type Client struct {
	api            *stripe.Client
	mode           Mode
	signingSecret  string
	publishableKey string
}

// NewClient validates cfg and sets the SDK's package-level key, which the
// resource packages such as paymentintent read.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	if _, known := keyPrefixes[mode]; !known {
		return nil, errUnknownMode
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !keyMatches(mode, apiKey) {
		return nil, fmt.Errorf("stripe: %s mode needs one of %v keys", mode, keyPrefixes[mode])
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}

	stripe.Key = apiKey
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe configured")
	}
	return &Client{
		api:            stripe.NewClient(apiKey),
		mode:           mode,
		signingSecret:  secret,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
	}, nil
}

func keyMatches(mode Mode, key string) bool {
	for _, prefix := range keyPrefixes[mode] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret verifies Stripe-Signature headers.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// PublishableKey is safe to hand to browsers.
func (c *Client) PublishableKey() string {
	if c == nil {
		return ""
	}
	return c.publishableKey
}
