package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/coursekart/payments-api/internal/domain"
	"github.com/coursekart/payments-api/internal/payments"
	"github.com/coursekart/payments-api/internal/platform/observability"
	"github.com/coursekart/payments-api/internal/repositories"
)

// Orders settle to a single document per processor payment id; the tolerance
// below covers float drift when comparing recomputed subtotals to the
// processor-confirmed charge.
const subtotalTolerance = 0.01

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderSignature indicates the settlement callback failed signature verification.
	ErrOrderSignature = errors.New("orders: signature verification failed")
	// ErrOrderUnavailable indicates order dependencies are currently unavailable.
	ErrOrderUnavailable = errors.New("orders: unavailable")
	// ErrIntentDisabled indicates the gateway is not configured for this deployment.
	ErrIntentDisabled = errors.New("orders: payment intents disabled")
	// ErrIntentFailed indicates the gateway rejected or failed the intent request.
	ErrIntentFailed = errors.New("orders: intent creation failed")
)

// ValidationError lists the callback fields that failed shape validation.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("orders: invalid payment callback, fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// CreateIntentCommand carries the input for opening a payment intent.
type CreateIntentCommand struct {
	// Amount is the charge in the processor's minor currency unit; it is
	// forwarded to the gateway without conversion.
	Amount   float64
	Currency string
	Notes    map[string]string
}

// IntentResult is returned to the client so the checkout widget can open.
type IntentResult struct {
	Intent payments.Intent
	// KeyID is the publishable gateway key the client initialises the widget with.
	KeyID string
}

// SubmittedLine is one cart line as received from the settlement callback.
// Prices are client-submitted and never trusted for totals.
type SubmittedLine struct {
	ItemID         string
	Title          string
	Name           string
	Kind           string
	Price          float64
	DiscountPrice  float64
	Quantity       int64
	SelectedLevel  string
	SelectedFormat string
}

// SubmittedBilling is the billing block of the settlement callback. The
// callback contract splits the payer name into first and last names; the
// persisted snapshot stores the composed full name.
type SubmittedBilling struct {
	FirstName  string
	LastName   string
	Address    string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
	Email      string
}

func (b SubmittedBilling) snapshot() domain.BillingSnapshot {
	return domain.BillingSnapshot{
		FullName:   strings.TrimSpace(b.FirstName + " " + b.LastName),
		Address:    b.Address,
		City:       b.City,
		State:      b.State,
		PostalCode: b.PostalCode,
		Country:    b.Country,
		Phone:      b.Phone,
		Email:      b.Email,
	}
}

// ReconcileOrderCommand carries the settlement callback payload.
type ReconcileOrderCommand struct {
	ProcessorOrderID   string
	ProcessorPaymentID string
	Signature          string
	Items              []SubmittedLine
	Billing            SubmittedBilling
	TotalAmount        float64
	PayerEmail         string
}

// ReconcileResult reports the order an accepted callback settled to.
type ReconcileResult struct {
	OrderID string
	// AlreadyReconciled is true when the payment had been recorded before this
	// call, by an earlier callback or a concurrent one.
	AlreadyReconciled bool
}

// ReconciledMessage is published after a new order is reconciled.
type ReconciledMessage struct {
	OrderID            string    `json:"orderId"`
	ProcessorOrderID   string    `json:"processorOrderId"`
	ProcessorPaymentID string    `json:"processorPaymentId"`
	TotalPrice         float64   `json:"totalPrice"`
	PayerEmail         string    `json:"payerEmail"`
	ReconciledAt       time.Time `json:"reconciledAt"`
}

// ReconciledPublisher fans out reconciliation events. Publishing is best
// effort; failures never roll back a persisted order.
type ReconciledPublisher interface {
	PublishReconciled(ctx context.Context, msg ReconciledMessage) error
}

// OrderService owns the payment intent and reconciliation flows.
type OrderService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (IntentResult, error)
	Reconcile(ctx context.Context, cmd ReconcileOrderCommand) (ReconcileResult, error)
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	// Gateway may be nil when credentials are absent; intent creation is then disabled.
	Gateway         payments.Provider
	KeyID           string
	SigningSecret   string
	DefaultCurrency string
	Publisher       ReconciledPublisher
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders          repositories.OrderRepository
	gateway         payments.Provider
	keyID           string
	signingSecret   string
	defaultCurrency string
	publisher       ReconciledPublisher
	now             func() time.Time
	logger          func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "INR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:          deps.Orders,
		gateway:         deps.Gateway,
		keyID:           strings.TrimSpace(deps.KeyID),
		signingSecret:   deps.SigningSecret,
		defaultCurrency: currency,
		publisher:       deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent opens a gateway order for the requested amount.
func (s *orderService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (IntentResult, error) {
	if s == nil || s.orders == nil {
		return IntentResult{}, ErrOrderUnavailable
	}
	if s.gateway == nil || s.keyID == "" {
		return IntentResult{}, ErrIntentDisabled
	}

	if cmd.Amount <= 0 || math.IsNaN(cmd.Amount) || math.IsInf(cmd.Amount, 0) {
		return IntentResult{}, ErrOrderInvalidInput
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		Amount:   cmd.Amount,
		Currency: currency,
		Receipt:  payments.NewReceiptTag(s.now()),
		Notes:    cmd.Notes,
	})
	if err != nil {
		s.logger(ctx, "orders.intent_failed", map[string]any{
			"currency": currency,
			"error":    err.Error(),
		})
		return IntentResult{}, ErrIntentFailed
	}

	return IntentResult{Intent: intent, KeyID: s.keyID}, nil
}

// Reconcile verifies a settlement callback and persists the resulting order
// exactly once per processor payment id.
func (s *orderService) Reconcile(ctx context.Context, cmd ReconcileOrderCommand) (ReconcileResult, error) {
	if s == nil || s.orders == nil {
		return ReconcileResult{}, ErrOrderUnavailable
	}

	cmd = normaliseReconcileCommand(cmd)
	if err := validateReconcileCommand(cmd); err != nil {
		return ReconcileResult{}, err
	}

	if s.signingSecret == "" {
		s.logger(ctx, "orders.signing_secret_missing", map[string]any{})
		return ReconcileResult{}, ErrOrderUnavailable
	}

	if !payments.VerifySignature(cmd.ProcessorOrderID, cmd.ProcessorPaymentID, cmd.Signature, s.signingSecret) {
		s.logger(ctx, "orders.signature_rejected", map[string]any{
			"processorOrderId":   observability.MaskIdentifier(cmd.ProcessorOrderID),
			"processorPaymentId": observability.MaskIdentifier(cmd.ProcessorPaymentID),
		})
		return ReconcileResult{}, ErrOrderSignature
	}

	if existing, err := s.orders.FindByPaymentID(ctx, cmd.ProcessorPaymentID); err == nil {
		return ReconcileResult{OrderID: existing.ID, AlreadyReconciled: true}, nil
	} else if translated := s.translateOrderError(err, true); translated != nil {
		return ReconcileResult{}, translated
	}

	now := s.now()
	lines := s.materialiseLines(ctx, cmd)
	itemsPrice := roundMoney(sumLines(lines))
	if diff := math.Abs(itemsPrice - cmd.TotalAmount); diff > subtotalTolerance {
		s.logger(ctx, "orders.subtotal_mismatch", map[string]any{
			"processorPaymentId": observability.MaskIdentifier(cmd.ProcessorPaymentID),
			"itemsPrice":         itemsPrice,
			"totalAmount":        cmd.TotalAmount,
		})
	}

	order := domain.Order{
		Lines:         lines,
		Billing:       cmd.Billing.snapshot(),
		PaymentMethod: domain.PaymentMethodRazorpay,
		Payment: domain.PaymentResult{
			ProcessorPaymentID: cmd.ProcessorPaymentID,
			Status:             domain.PaymentStatusCompleted,
			SettledAt:          now,
			PayerEmail:         cmd.PayerEmail,
		},
		ItemsPrice:       itemsPrice,
		TotalPrice:       cmd.TotalAmount,
		IsPaid:           true,
		PaidAt:           now,
		ProcessorOrderID: cmd.ProcessorOrderID,
		CreatedAt:        now,
	}

	saved, err := s.orders.Insert(ctx, order)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			// A concurrent callback won the insert; converge on its order.
			winner, findErr := s.orders.FindByPaymentID(ctx, cmd.ProcessorPaymentID)
			if findErr != nil {
				return ReconcileResult{}, ErrOrderUnavailable
			}
			return ReconcileResult{OrderID: winner.ID, AlreadyReconciled: true}, nil
		}
		s.logger(ctx, "orders.persist_failed", map[string]any{
			"processorPaymentId": observability.MaskIdentifier(cmd.ProcessorPaymentID),
			"error":              err.Error(),
		})
		return ReconcileResult{}, ErrOrderUnavailable
	}

	s.publishReconciled(ctx, saved)

	return ReconcileResult{OrderID: saved.ID}, nil
}

func (s *orderService) publishReconciled(ctx context.Context, order domain.Order) {
	if s.publisher == nil {
		return
	}
	msg := ReconciledMessage{
		OrderID:            order.ID,
		ProcessorOrderID:   order.ProcessorOrderID,
		ProcessorPaymentID: order.Payment.ProcessorPaymentID,
		TotalPrice:         order.TotalPrice,
		PayerEmail:         order.Payment.PayerEmail,
		ReconciledAt:       order.PaidAt,
	}
	if err := s.publisher.PublishReconciled(ctx, msg); err != nil {
		s.logger(ctx, "orders.publish_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

// materialiseLines resolves the untrusted submitted lines into order lines,
// inferring the item kind when the client omitted or mangled it.
func (s *orderService) materialiseLines(ctx context.Context, cmd ReconcileOrderCommand) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		kind := domain.ItemKind(strings.ToLower(strings.TrimSpace(item.Kind)))
		if !kind.Valid() {
			if strings.TrimSpace(item.Title) != "" {
				kind = domain.ItemKindCourse
			} else {
				kind = domain.ItemKindProduct
			}
			s.logger(ctx, "orders.item_kind_inferred", map[string]any{
				"itemId": item.ItemID,
				"kind":   string(kind),
			})
		}

		unitPrice := item.Price
		if item.DiscountPrice > 0 {
			unitPrice = item.DiscountPrice
		}
		if unitPrice < 0 {
			unitPrice = 0
		}

		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		name := strings.TrimSpace(item.Title)
		if name == "" {
			name = strings.TrimSpace(item.Name)
		}
		if name == "" {
			name = strings.TrimSpace(item.ItemID)
		}

		lines = append(lines, domain.OrderLine{
			Name:           name,
			Quantity:       quantity,
			UnitPrice:      unitPrice,
			ItemID:         strings.TrimSpace(item.ItemID),
			ItemKind:       kind,
			SelectedLevel:  strings.TrimSpace(item.SelectedLevel),
			SelectedFormat: strings.TrimSpace(item.SelectedFormat),
		})
	}
	return lines
}

// translateOrderError maps repository failures to service errors. When
// notFoundOK is set a missing document is not an error.
func (s *orderService) translateOrderError(err error, notFoundOK bool) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() && notFoundOK {
		return nil
	}
	return ErrOrderUnavailable
}

func normaliseReconcileCommand(cmd ReconcileOrderCommand) ReconcileOrderCommand {
	cmd.ProcessorOrderID = strings.TrimSpace(cmd.ProcessorOrderID)
	cmd.ProcessorPaymentID = strings.TrimSpace(cmd.ProcessorPaymentID)
	cmd.Signature = strings.TrimSpace(cmd.Signature)
	cmd.PayerEmail = strings.TrimSpace(cmd.PayerEmail)
	cmd.Billing = normaliseBilling(cmd.Billing)
	return cmd
}

func normaliseBilling(b SubmittedBilling) SubmittedBilling {
	b.FirstName = strings.TrimSpace(b.FirstName)
	b.LastName = strings.TrimSpace(b.LastName)
	b.Address = strings.TrimSpace(b.Address)
	b.City = strings.TrimSpace(b.City)
	b.State = strings.TrimSpace(b.State)
	b.PostalCode = strings.TrimSpace(b.PostalCode)
	b.Country = strings.TrimSpace(b.Country)
	b.Phone = strings.TrimSpace(b.Phone)
	b.Email = strings.TrimSpace(b.Email)
	return b
}

func validateReconcileCommand(cmd ReconcileOrderCommand) error {
	var fields []string

	if cmd.ProcessorOrderID == "" {
		fields = append(fields, "orderId")
	}
	if cmd.ProcessorPaymentID == "" {
		fields = append(fields, "paymentId")
	}
	if cmd.Signature == "" {
		fields = append(fields, "signature")
	}
	if len(cmd.Items) == 0 {
		fields = append(fields, "items")
	}
	if cmd.TotalAmount <= 0 || math.IsNaN(cmd.TotalAmount) || math.IsInf(cmd.TotalAmount, 0) {
		fields = append(fields, "totalAmount")
	}
	if cmd.Billing.FirstName == "" {
		fields = append(fields, "billing.firstName")
	}
	if cmd.Billing.LastName == "" {
		fields = append(fields, "billing.lastName")
	}
	if cmd.Billing.Address == "" {
		fields = append(fields, "billing.address")
	}
	if cmd.Billing.City == "" {
		fields = append(fields, "billing.city")
	}
	if cmd.Billing.PostalCode == "" {
		fields = append(fields, "billing.postalCode")
	}
	if cmd.Billing.Country == "" {
		fields = append(fields, "billing.country")
	}
	if cmd.Billing.Phone == "" {
		fields = append(fields, "billing.phone")
	}
	if cmd.Billing.Email == "" {
		fields = append(fields, "billing.email")
	}

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func sumLines(lines []domain.OrderLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.UnitPrice * float64(line.Quantity)
	}
	return total
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
