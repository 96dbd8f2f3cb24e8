package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedResponse is returned when the gateway answers without the fields
// required to hand the intent to a client.
var ErrMalformedResponse = errors.New("payments: malformed gateway response")

// IntentRequest captures the payload required to open a payment intent with the gateway.
type IntentRequest struct {
	// Amount is expressed in the processor's minor currency unit (e.g. paise,
	// not rupees). Callers convert before building the request; adapters only
	// round to the nearest integer.
	Amount   float64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Intent represents the gateway order returned to the client for checkout.
// Raw carries the gateway response verbatim so clients receive every field the
// checkout widget expects.
type Intent struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Raw      map[string]any
}

// Provider defines the contract for payment gateway adapters.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// NewReceiptTag generates a collision-resistant receipt reference for a new
// payment intent. The gateway echoes the receipt back on settlement callbacks.
func NewReceiptTag(now time.Time) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failures leave the timestamp as the only entropy source.
		return fmt.Sprintf("order_%d", now.UnixMilli())
	}
	return fmt.Sprintf("order_%d_%s", now.UnixMilli(), hex.EncodeToString(buf[:]))
}
