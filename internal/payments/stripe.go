package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   *logging.LoggerV2
	Intents  stripePaymentIntentAPI
}

// StripeProvider opens PaymentIntents through the Stripe API.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	logger  *logging.LoggerV2
}

func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StripeProvider{intents: intents, logger: logger}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

// CreateIntent creates a PaymentIntent; the receipt doubles as the idempotency key.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if req.Receipt != "" {
		params.SetIdempotencyKey(req.Receipt)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		p.logger.Error("Stripe payment intent creation failed", logging.Fields{"error": err.Error()})
		return Intent{}, err
	}

	return Intent{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}
