package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

type OrderRepo interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context) ([]*Order, error)
	ListByTable(ctx context.Context, tableID uuid.UUID) ([]*Order, error)
	ListByStatus(ctx context.Context, status OrderStatus) ([]*Order, error)
	ListOpen(ctx context.Context) ([]*Order, error)
	Save(ctx context.Context, order *Order) error
}

type OrderItemRepo interface {
	Create(ctx context.Context, item *OrderItem) error
	Get(ctx context.Context, id uuid.UUID) (*OrderItem, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error)
	Save(ctx context.Context, item *OrderItem) error
}
