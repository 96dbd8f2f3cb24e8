package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coursekart/payments-api/internal/domain"
	"github.com/coursekart/payments-api/internal/payments"
	"github.com/coursekart/payments-api/internal/services"
)

type stubOrderService struct {
	intentResult    services.IntentResult
	intentErr       error
	reconcileResult services.ReconcileResult
	reconcileErr    error
	lastIntent      services.CreateIntentCommand
	lastReconcile   services.ReconcileOrderCommand
}

func (s *stubOrderService) CreateIntent(_ context.Context, cmd services.CreateIntentCommand) (services.IntentResult, error) {
	s.lastIntent = cmd
	if s.intentErr != nil {
		return services.IntentResult{}, s.intentErr
	}
	return s.intentResult, nil
}

func (s *stubOrderService) Reconcile(_ context.Context, cmd services.ReconcileOrderCommand) (services.ReconcileResult, error) {
	s.lastReconcile = cmd
	if s.reconcileErr != nil {
		return services.ReconcileResult{}, s.reconcileErr
	}
	return s.reconcileResult, nil
}

type noopRepoError struct{}

func (noopRepoError) Error() string       { return "not found" }
func (noopRepoError) IsNotFound() bool    { return true }
func (noopRepoError) IsConflict() bool    { return false }
func (noopRepoError) IsUnavailable() bool { return false }

// noopRepo satisfies the repository contract so the real service can be used
// to manufacture a ValidationError with its unexported field list.
type noopRepo struct{}

func (noopRepo) Insert(context.Context, domain.Order) (domain.Order, error) {
	return domain.Order{}, noopRepoError{}
}

func (noopRepo) FindByPaymentID(context.Context, string) (domain.Order, error) {
	return domain.Order{}, noopRepoError{}
}

func (noopRepo) Get(context.Context, string) (domain.Order, error) {
	return domain.Order{}, noopRepoError{}
}

func newOrderRouter(svc services.OrderService) http.Handler {
	return NewRouter(WithOrderRoutes(NewOrderHandlers(svc).Routes))
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	payload := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("response body is not JSON: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, payload
}

const validConfirmBody = `{
	"orderId": "order_N9eXjYqkpyGZ2z",
	"paymentId": "pay_N9eYvBhnYw71Qa",
	"signature": "deadbeef",
	"items": [{"itemId": "crs_go101", "title": "Go Fundamentals", "kind": "course", "price": 1999, "discountPrice": 1499, "quantity": 1}],
	"billing": {"firstName": "Asha", "lastName": "Iyer", "address": "12 MG Road", "city": "Bengaluru", "postalCode": "560001", "country": "IN", "phone": "+919800000000", "email": "asha@example.com"},
	"totalAmount": 1499,
	"payerEmail": "asha@example.com"
}`

func TestCreateIntentReturnsGatewayOrderAndKeyID(t *testing.T) {
	svc := &stubOrderService{
		intentResult: services.IntentResult{
			Intent: payments.Intent{
				ID:  "order_N9eXjYqkpyGZ2z",
				Raw: map[string]any{"id": "order_N9eXjYqkpyGZ2z", "amount": float64(149900), "status": "created"},
			},
			KeyID: "rzp_test_abc123",
		},
	}
	router := newOrderRouter(svc)

	rec, payload := doJSON(t, router, http.MethodPost, "/api/v1/orders/intent", `{"amount": 1499}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if payload["success"] != true {
		t.Error("expected success true")
	}
	if payload["keyId"] != "rzp_test_abc123" {
		t.Errorf("unexpected keyId %v", payload["keyId"])
	}
	order, ok := payload["order"].(map[string]any)
	if !ok {
		t.Fatalf("expected raw order object, got %v", payload["order"])
	}
	if order["status"] != "created" {
		t.Errorf("raw gateway fields must pass through, got %v", order)
	}
	if svc.lastIntent.Amount != 1499 {
		t.Errorf("unexpected amount forwarded to service: %v", svc.lastIntent.Amount)
	}
}

func TestCreateIntentInvalidAmount(t *testing.T) {
	svc := &stubOrderService{intentErr: services.ErrOrderInvalidInput}
	rec, payload := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/intent", `{"amount": -5}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload["success"] != false {
		t.Error("expected success false")
	}
	if payload["message"] == "" {
		t.Error("expected a message")
	}
}

func TestCreateIntentDisabledGateway(t *testing.T) {
	svc := &stubOrderService{intentErr: services.ErrIntentDisabled}
	rec, _ := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/intent", `{"amount": 10}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCreateIntentGatewayFailure(t *testing.T) {
	svc := &stubOrderService{intentErr: services.ErrIntentFailed}
	rec, _ := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/intent", `{"amount": 10}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestConfirmNewOrderReturns201(t *testing.T) {
	svc := &stubOrderService{reconcileResult: services.ReconcileResult{OrderID: "ord_01HTESTXYZ"}}
	rec, payload := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", validConfirmBody)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if payload["success"] != true {
		t.Error("expected success true")
	}
	if payload["orderId"] != "ord_01HTESTXYZ" {
		t.Errorf("unexpected orderId %v", payload["orderId"])
	}
	if svc.lastReconcile.ProcessorPaymentID != "pay_N9eYvBhnYw71Qa" {
		t.Errorf("unexpected payment id forwarded: %s", svc.lastReconcile.ProcessorPaymentID)
	}
	if len(svc.lastReconcile.Items) != 1 || svc.lastReconcile.Items[0].DiscountPrice != 1499 {
		t.Errorf("items not forwarded faithfully: %+v", svc.lastReconcile.Items)
	}
	if svc.lastReconcile.Billing.FirstName != "Asha" || svc.lastReconcile.Billing.LastName != "Iyer" {
		t.Errorf("billing names not forwarded faithfully: %+v", svc.lastReconcile.Billing)
	}
}

func TestConfirmReplayReturns200WithMessage(t *testing.T) {
	svc := &stubOrderService{reconcileResult: services.ReconcileResult{OrderID: "ord_01HTESTXYZ", AlreadyReconciled: true}}
	rec, payload := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", validConfirmBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["message"] != "already reconciled" {
		t.Errorf("unexpected message %v", payload["message"])
	}
	if payload["orderId"] != "ord_01HTESTXYZ" {
		t.Errorf("unexpected orderId %v", payload["orderId"])
	}
}

func TestConfirmValidationFailure(t *testing.T) {
	validationErr := func() error {
		svc, err := services.NewOrderService(services.OrderServiceDeps{Orders: noopRepo{}})
		if err != nil {
			t.Fatalf("NewOrderService returned error: %v", err)
		}
		_, err = svc.Reconcile(context.Background(), services.ReconcileOrderCommand{})
		return err
	}()

	svc := &stubOrderService{reconcileErr: validationErr}
	rec, payload := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", `{"orderId": ""}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	message, _ := payload["message"].(string)
	if !strings.Contains(message, "paymentId") {
		t.Errorf("expected offending fields in message, got %q", message)
	}
	if !strings.Contains(message, "billing.firstName") || !strings.Contains(message, "billing.lastName") {
		t.Errorf("expected billing name fields in message, got %q", message)
	}
}

func TestConfirmSignatureFailure(t *testing.T) {
	svc := &stubOrderService{reconcileErr: services.ErrOrderSignature}
	rec, payload := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", validConfirmBody)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload["message"] != "signature verification failed" {
		t.Errorf("unexpected message %v", payload["message"])
	}
}

func TestConfirmServiceUnavailable(t *testing.T) {
	svc := &stubOrderService{reconcileErr: services.ErrOrderUnavailable}
	rec, _ := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", validConfirmBody)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestConfirmRejectsMalformedJSON(t *testing.T) {
	svc := &stubOrderService{}
	rec, payload := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", `{"orderId": `)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload["success"] != false {
		t.Error("expected success false")
	}
}

func TestConfirmRejectsEmptyBody(t *testing.T) {
	svc := &stubOrderService{}
	rec, _ := doJSON(t, newOrderRouter(svc), http.MethodPost, "/api/v1/orders/confirm", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	rec, payload := doJSON(t, newOrderRouter(&stubOrderService{}), http.MethodGet, "/api/v1/unknown", "{}")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if payload["success"] != false {
		t.Error("expected success false")
	}
}
