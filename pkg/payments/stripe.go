package payments

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/vinetrail/vinetrail-backend/logger"
)

// StripeRegistry hands out one Stripe client per secret key.
type StripeRegistry struct {
	keyFor     func(brandCode string) string
	backendURL string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*StripeProvider
}

// StripeOption configures a StripeRegistry.
type StripeOption func(*StripeRegistry)

// WithBackendURL points the clients at a different API host, e.g. stripe-mock.
func WithBackendURL(url string) StripeOption {
	return func(r *StripeRegistry) { r.backendURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) StripeOption {
	return func(r *StripeRegistry) { r.httpClient = c }
}

// NewStripeRegistry resolves keys through keyFor, usually
// config.PaymentsConfig.KeyForBrand.
func NewStripeRegistry(keyFor func(brandCode string) string, opts ...StripeOption) *StripeRegistry {
	r := &StripeRegistry{
		keyFor:  keyFor,
		clients: make(map[string]*StripeProvider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForBrand implements Registry.
func (r *StripeRegistry) ForBrand(brandCode string) (Provider, error) {
	key := r.keyFor(brandCode)
	if key == "" {
		return nil, ErrNotConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.clients[key]; ok {
		return p, nil
	}

	// Confirmation must never be retried blindly, so the SDK's own network
	// retries are off.
	cfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if r.backendURL != "" {
		cfg.URL = stripe.String(r.backendURL)
	}
	if r.httpClient != nil {
		cfg.HTTPClient = r.httpClient
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}

	p := &StripeProvider{api: client.New(key, backends)}
	r.clients[key] = p
	return p, nil
}

// StripeProvider implements Provider with PaymentIntents.
type StripeProvider struct {
	api *client.API
}

// CreatePaymentIntent implements Provider.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, in CreateIntentParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	logger.GetLogger().Infow("Created payment intent", "paymentIntentId", pi.ID, "amount", pi.Amount)
	return toIntent(pi), nil
}

// GetPaymentIntent implements Provider.
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, id string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}

func translateStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &ProviderError{
			StatusCode: stripeErr.HTTPStatusCode,
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
		}
	}
	return err
}
