package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coursekart/payments-api/internal/platform/httpx"
	"github.com/coursekart/payments-api/internal/services"
)

const maxOrderRequestBody = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// OrderHandlers exposes the payment intent and reconciliation endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers over the given service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/intent", h.createIntent)
	r.Post("/confirm", h.confirmOrder)
}

type intentRequest struct {
	Amount   float64           `json:"amount"`
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes"`
}

type submittedItem struct {
	ItemID         string  `json:"itemId"`
	Title          string  `json:"title"`
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	Price          float64 `json:"price"`
	DiscountPrice  float64 `json:"discountPrice"`
	Quantity       int64   `json:"quantity"`
	SelectedLevel  string  `json:"selectedLevel"`
	SelectedFormat string  `json:"selectedFormat"`
}

type billingInfo struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type confirmRequest struct {
	OrderID     string          `json:"orderId"`
	PaymentID   string          `json:"paymentId"`
	Signature   string          `json:"signature"`
	Items       []submittedItem `json:"items"`
	Billing     billingInfo     `json:"billing"`
	TotalAmount float64         `json:"totalAmount"`
	PayerEmail  string          `json:"payerEmail"`
}

func (h *OrderHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req intentRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	result, err := h.orders.CreateIntent(ctx, services.CreateIntentCommand{
		Amount:   req.Amount,
		Currency: req.Currency,
		Notes:    req.Notes,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteSuccess(ctx, w, http.StatusOK, "payment intent created", map[string]any{
		"order": result.Intent.Raw,
		"keyId": result.KeyID,
	})
}

func (h *OrderHandlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req confirmRequest
	if !decodeOrderBody(ctx, w, r, &req) {
		return
	}

	items := make([]services.SubmittedLine, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.SubmittedLine{
			ItemID:         item.ItemID,
			Title:          item.Title,
			Name:           item.Name,
			Kind:           item.Kind,
			Price:          item.Price,
			DiscountPrice:  item.DiscountPrice,
			Quantity:       item.Quantity,
			SelectedLevel:  item.SelectedLevel,
			SelectedFormat: item.SelectedFormat,
		})
	}

	cmd := services.ReconcileOrderCommand{
		ProcessorOrderID:   req.OrderID,
		ProcessorPaymentID: req.PaymentID,
		Signature:          req.Signature,
		Items:              items,
		Billing: services.SubmittedBilling{
			FirstName:  req.Billing.FirstName,
			LastName:   req.Billing.LastName,
			Address:    req.Billing.Address,
			City:       req.Billing.City,
			State:      req.Billing.State,
			PostalCode: req.Billing.PostalCode,
			Country:    req.Billing.Country,
			Phone:      req.Billing.Phone,
			Email:      req.Billing.Email,
		},
		TotalAmount: req.TotalAmount,
		PayerEmail:  req.PayerEmail,
	}

	result, err := h.orders.Reconcile(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	if result.AlreadyReconciled {
		httpx.WriteSuccess(ctx, w, http.StatusOK, "already reconciled", map[string]any{
			"orderId": result.OrderID,
		})
		return
	}

	httpx.WriteSuccess(ctx, w, http.StatusCreated, "order reconciled", map[string]any{
		"orderId": result.OrderID,
	})
}

// decodeOrderBody reads and unmarshals the request body, writing the error
// response itself when the body is unusable.
func decodeOrderBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		message := fmt.Sprintf("invalid payment data: %s", strings.Join(validation.Fields(), ", "))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_data", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_amount", "a positive amount is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderSignature):
		httpx.WriteError(ctx, w, httpx.NewError("signature_verification_failed", "signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrIntentDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("payments_disabled", "payment processing is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrIntentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("intent_failed", "unable to create payment intent", http.StatusInternalServerError))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order service unavailable", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderRequestBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
