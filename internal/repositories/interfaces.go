package repositories

import (
	"context"

	"github.com/coursekart/payments-api/internal/domain"
)

// RepositoryError augments errors with persistence semantics so services can
// translate them without importing the backing store.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists reconciled orders.
//
// Insert must reject a second order carrying an already stored processor
// payment id with a conflict error; that guarantee is what makes settlement
// callbacks safe to replay.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByPaymentID(ctx context.Context, processorPaymentID string) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
}
