package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/coursekart/payments-api/internal/domain"
	pfirestore "github.com/coursekart/payments-api/internal/platform/firestore"
	"github.com/coursekart/payments-api/internal/repositories"
)

const (
	ordersCollection     = "orders"
	orderIDPrefix        = "ord_"
	paymentIDField       = "paymentResult.processorPaymentId"
	errPaymentIDRequired = "order repository: processor payment id is required"
)

// OrderRepository persists reconciled orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert stores a new order, enforcing processor payment id uniqueness inside
// a transaction. Concurrent inserts for the same payment settle to a single
// winner; losers receive a conflict error.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	paymentID := strings.TrimSpace(order.Payment.ProcessorPaymentID)
	if paymentID == "" {
		return domain.Order{}, errors.New(errPaymentIDRequired)
	}

	now := time.Now().UTC()
	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		query := coll.Where(paymentIDField, "==", paymentID).Limit(1)
		snaps, err := tx.Documents(query).GetAll()
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if len(snaps) > 0 {
			return status.Error(codes.AlreadyExists, "order already exists for payment")
		}

		docRef := coll.Doc(orderIDPrefix + ulid.Make().String())
		if id := strings.TrimSpace(order.ID); id != "" {
			docRef = coll.Doc(id)
		}

		doc := order
		doc.Payment.ProcessorPaymentID = paymentID
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		} else {
			doc.CreatedAt = doc.CreatedAt.UTC()
		}

		if err := tx.Create(docRef, doc); err != nil {
			return err
		}

		saved = doc
		saved.ID = docRef.ID
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return saved, nil
}

// FindByPaymentID returns the order reconciled for the given processor payment id.
func (r *OrderRepository) FindByPaymentID(ctx context.Context, processorPaymentID string) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	paymentID := strings.TrimSpace(processorPaymentID)
	if paymentID == "" {
		return domain.Order{}, errors.New(errPaymentIDRequired)
	}

	snaps, err := coll.Where(paymentIDField, "==", paymentID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_payment", err)
	}
	if len(snaps) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.find_by_payment",
			status.Error(codes.NotFound, "order not found for payment"))
	}
	return decodeOrderDocument(snaps[0])
}

// Get loads a single order by document id.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	return decodeOrderDocument(snap)
}

func (r *OrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection), nil
}

func decodeOrderDocument(snapshot *firestore.DocumentSnapshot) (domain.Order, error) {
	var order domain.Order
	if err := snapshot.DataTo(&order); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snapshot.Ref.ID, err)
	}
	order.ID = snapshot.Ref.ID
	return order, nil
}

// Ensure interface compliance.
var _ repositories.OrderRepository = (*OrderRepository)(nil)
