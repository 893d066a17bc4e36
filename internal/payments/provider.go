// Package payments adapts external payment providers: opening intents and
// checking the signatures they return after checkout.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

// ErrUnsupportedProvider is returned for an unknown provider name.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// IntentRequest asks the provider to open an intent for an amount in minor units.
type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Metadata map[string]string
}

// Intent is the provider-side handle for a payment.
type Intent struct {
	ID           string
	Amount       int64
	Currency     string
	Status       string
	ClientSecret string
}

// Provider opens payment intents.
type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// NewProvider builds the provider named in cfg.
func NewProvider(cfg config.ProviderConfig, logger *logging.LoggerV2) (Provider, error) {
	switch cfg.Name {
	case "razorpay":
		return NewRazorpayProvider(cfg, logger), nil
	case "stripe":
		p, err := NewStripeProvider(StripeProviderConfig{APIKey: cfg.KeySecret, Logger: logger})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Name)
	}
}
