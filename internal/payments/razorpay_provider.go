package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayLogger defines the logging contract for gateway operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID     string
	KeySecret string
	Logger    RazorpayLogger
	Clock     func() time.Time
	// Orders overrides the SDK order API, primarily for tests.
	Orders razorpayOrderAPI
}

// RazorpayProvider implements the Provider interface using the Razorpay Orders API.
type RazorpayProvider struct {
	orders razorpayOrderAPI
	clock  func() time.Time
	logger RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if cfg.Orders == nil && (keyID == "" || keySecret == "") {
		return nil, errors.New("razorpay: key id and key secret are required")
	}

	orders := cfg.Orders
	if orders == nil {
		client := razorpay.NewClient(keyID, keySecret)
		orders = client.Order
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		orders: orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a gateway order for the requested amount. The amount is
// already in the minor unit; it is only rounded to the integral value the
// gateway API requires.
func (p *RazorpayProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("razorpay: provider is nil")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Intent{}, errors.New("razorpay: currency is required")
	}
	if req.Amount <= 0 {
		return Intent{}, errors.New("razorpay: amount must be positive")
	}

	receipt := strings.TrimSpace(req.Receipt)
	if receipt == "" {
		receipt = NewReceiptTag(p.clock())
	}

	minorAmount := int64(math.Round(req.Amount))
	data := map[string]interface{}{
		"amount":   minorAmount,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	started := p.clock()
	raw, err := p.orders.Create(data, nil)
	if err != nil {
		p.logger(ctx, "razorpay.order.create_failed", map[string]any{
			"currency":   currency,
			"latency_ms": p.clock().Sub(started).Milliseconds(),
		})
		return Intent{}, fmt.Errorf("razorpay: create order: %w", err)
	}

	id, _ := raw["id"].(string)
	if id == "" {
		p.logger(ctx, "razorpay.order.malformed_response", map[string]any{
			"currency": currency,
		})
		return Intent{}, ErrMalformedResponse
	}

	intent := Intent{
		ID:       id,
		Amount:   minorAmount,
		Currency: currency,
		Receipt:  receipt,
		Raw:      raw,
	}
	if amount, ok := numericField(raw, "amount"); ok {
		intent.Amount = amount
	}
	if c, ok := raw["currency"].(string); ok && c != "" {
		intent.Currency = strings.ToUpper(c)
	}
	if r, ok := raw["receipt"].(string); ok && r != "" {
		intent.Receipt = r
	}

	p.logger(ctx, "razorpay.order.created", map[string]any{
		"currency":   intent.Currency,
		"latency_ms": p.clock().Sub(started).Milliseconds(),
	})
	return intent, nil
}

// numericField tolerates the SDK decoding integers as json float64.
func numericField(raw map[string]any, key string) (int64, bool) {
	switch v := raw[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(math.Round(v)), true
	default:
		return 0, false
	}
}

var _ Provider = (*RazorpayProvider)(nil)
