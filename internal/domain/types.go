package domain

import "time"

// ItemKind distinguishes the two sellable catalog types carried on order lines.
type ItemKind string

const (
	ItemKindCourse  ItemKind = "course"
	ItemKindProduct ItemKind = "product"
)

// Valid reports whether the kind is one of the known tags.
func (k ItemKind) Valid() bool {
	return k == ItemKindCourse || k == ItemKindProduct
}

// PaymentMethodRazorpay tags orders settled through the Razorpay gateway.
const PaymentMethodRazorpay = "razorpay"

// PaymentStatusCompleted is the only payment state a reconciled order carries;
// orders are never persisted for unsettled payments.
const PaymentStatusCompleted = "completed"

// OrderLine is a single materialised cart line on a persisted order. UnitPrice
// is in the major currency unit and is resolved server-side from the submitted
// price/discount pair.
type OrderLine struct {
	Name           string   `firestore:"name" json:"name"`
	Quantity       int64    `firestore:"quantity" json:"quantity"`
	UnitPrice      float64  `firestore:"unitPrice" json:"unitPrice"`
	ItemID         string   `firestore:"itemId" json:"itemId"`
	ItemKind       ItemKind `firestore:"itemKind" json:"itemKind"`
	SelectedLevel  string   `firestore:"selectedLevel,omitempty" json:"selectedLevel,omitempty"`
	SelectedFormat string   `firestore:"selectedFormat,omitempty" json:"selectedFormat,omitempty"`
}

// BillingSnapshot freezes the billing details submitted with the payment
// confirmation. It is a snapshot, not a reference to a mutable profile.
type BillingSnapshot struct {
	FullName   string `firestore:"fullName" json:"fullName"`
	Address    string `firestore:"address" json:"address"`
	City       string `firestore:"city" json:"city"`
	State      string `firestore:"state,omitempty" json:"state,omitempty"`
	PostalCode string `firestore:"postalCode" json:"postalCode"`
	Country    string `firestore:"country" json:"country"`
	Phone      string `firestore:"phone" json:"phone"`
	Email      string `firestore:"email" json:"email"`
}

// PaymentResult records the processor-confirmed settlement attached to an order.
// ProcessorPaymentID is unique across all orders; the repository enforces this.
type PaymentResult struct {
	ProcessorPaymentID string    `firestore:"processorPaymentId" json:"processorPaymentId"`
	Status             string    `firestore:"status" json:"status"`
	SettledAt          time.Time `firestore:"settledAt" json:"settledAt"`
	PayerEmail         string    `firestore:"payerEmail" json:"payerEmail"`
}

// Order is the authoritative record created once per settled payment.
//
// ItemsPrice is always recomputed from Lines; TotalPrice is the processor
// confirmed charge and is taken from the callback as-is.
type Order struct {
	ID               string          `firestore:"-" json:"id"`
	Lines            []OrderLine     `firestore:"orderLines" json:"orderLines"`
	Billing          BillingSnapshot `firestore:"billingSnapshot" json:"billingSnapshot"`
	PaymentMethod    string          `firestore:"paymentMethod" json:"paymentMethod"`
	Payment          PaymentResult   `firestore:"paymentResult" json:"paymentResult"`
	ItemsPrice       float64         `firestore:"itemsPrice" json:"itemsPrice"`
	TaxPrice         float64         `firestore:"taxPrice" json:"taxPrice"`
	ShippingPrice    float64         `firestore:"shippingPrice" json:"shippingPrice"`
	TotalPrice       float64         `firestore:"totalPrice" json:"totalPrice"`
	IsPaid           bool            `firestore:"isPaid" json:"isPaid"`
	PaidAt           time.Time       `firestore:"paidAt" json:"paidAt"`
	ProcessorOrderID string          `firestore:"processorOrderId" json:"processorOrderId"`
	CreatedAt        time.Time       `firestore:"createdAt" json:"createdAt"`
}
