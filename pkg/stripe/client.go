package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/pixelmint/pixelmint-backend/pkg/config"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how old a signed webhook timestamp may be.
const DefaultTolerance = 5 * time.Minute

// Secret key prefixes accepted per environment. Restricted keys (rk_) are
// allowed so checkout can run with a key scoped to sessions only.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// Client verifies webhook deliveries. NewClient also installs the API key on
// the stripe package so checkout/session calls are authenticated.
type Client struct {
	environment   string
	signingSecret string
	tolerance     time.Duration
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("stripe %s environment requires one of %s keys", env, strings.Join(prefixes, ", "))
	}

	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}

	stripe.Key = apiKey

	if logg != nil {
		ctx = logg.WithField(ctx, "stripe_env", env)
		logg.Info(ctx, "stripe.client.ready")
	}

	return &Client{
		environment:   env,
		signingSecret: secret,
		tolerance:     DefaultTolerance,
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Environment reports "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func (c *Client) IsLive() bool {
	return c.Environment() == "live"
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// Events pinned to other API versions are accepted; handlers read the fields
// they need from the raw object.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	tolerance := DefaultTolerance
	if c != nil && c.tolerance > 0 {
		tolerance = c.tolerance
	}
	return constructEvent(payload, header, c.SigningSecret(), tolerance)
}

// ConstructEvent verifies a delivery against an explicit secret.
func ConstructEvent(payload []byte, header, secret string) (stripe.Event, error) {
	return constructEvent(payload, header, secret, DefaultTolerance)
}

func constructEvent(payload []byte, header, secret string, tolerance time.Duration) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, errSecretRequired
	}
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}
