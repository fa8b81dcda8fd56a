package kds

import (
	"context"

	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"

	"github.com/expeditehq/expedite/internal/fulfillment"
	"github.com/expeditehq/expedite/internal/tables"
)

// MockStreamConsumer is a test mock for events.StreamConsumer
type MockStreamConsumer struct {
	messages  []events.StreamMessage
	FetchFunc func(ctx context.Context, maxMessages int) ([]events.StreamMessage, error)
}

func NewMockStreamConsumer() *MockStreamConsumer {
	return &MockStreamConsumer{
		messages: make([]events.StreamMessage, 0),
	}
}

func (m *MockStreamConsumer) Fetch(ctx context.Context, maxMessages int) ([]events.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, maxMessages)
	}
	return m.messages, nil
}

func (m *MockStreamConsumer) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	return nil
}

func (m *MockStreamConsumer) AddMessage(data []byte) {
	m.messages = append(m.messages, events.StreamMessage{Data: data})
}

// MockOrderRepo is a map-backed test double for fulfillment.OrderRepo
type MockOrderRepo struct {
	Orders map[uuid.UUID]*fulfillment.Order
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{Orders: make(map[uuid.UUID]*fulfillment.Order)}
}

func (m *MockOrderRepo) Create(ctx context.Context, order *fulfillment.Order) error {
	m.Orders[order.ID] = order
	return nil
}

func (m *MockOrderRepo) Get(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	return m.Orders[id], nil
}

func (m *MockOrderRepo) List(ctx context.Context) ([]*fulfillment.Order, error) {
	out := make([]*fulfillment.Order, 0, len(m.Orders))
	for _, o := range m.Orders {
		out = append(out, o)
	}
	return out, nil
}

func (m *MockOrderRepo) ListByTable(ctx context.Context, tableID uuid.UUID) ([]*fulfillment.Order, error) {
	var out []*fulfillment.Order
	for _, o := range m.Orders {
		if o.TableID != nil && *o.TableID == tableID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) ListByStatus(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	var out []*fulfillment.Order
	for _, o := range m.Orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) ListOpen(ctx context.Context) ([]*fulfillment.Order, error) {
	var out []*fulfillment.Order
	for _, o := range m.Orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) Save(ctx context.Context, order *fulfillment.Order) error {
	m.Orders[order.ID] = order
	return nil
}

// MockOrderItemRepo is a map-backed test double for fulfillment.OrderItemRepo
type MockOrderItemRepo struct {
	Items map[uuid.UUID]*fulfillment.OrderItem
}

func NewMockOrderItemRepo() *MockOrderItemRepo {
	return &MockOrderItemRepo{Items: make(map[uuid.UUID]*fulfillment.OrderItem)}
}

func (m *MockOrderItemRepo) Create(ctx context.Context, item *fulfillment.OrderItem) error {
	m.Items[item.ID] = item
	return nil
}

func (m *MockOrderItemRepo) Get(ctx context.Context, id uuid.UUID) (*fulfillment.OrderItem, error) {
	return m.Items[id], nil
}

func (m *MockOrderItemRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*fulfillment.OrderItem, error) {
	var out []*fulfillment.OrderItem
	for _, it := range m.Items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *MockOrderItemRepo) Save(ctx context.Context, item *fulfillment.OrderItem) error {
	m.Items[item.ID] = item
	return nil
}

// MockTableRepo is a map-backed test double for tables.TableRepo
type MockTableRepo struct {
	Tables map[uuid.UUID]*tables.Table
}

func NewMockTableRepo() *MockTableRepo {
	return &MockTableRepo{Tables: make(map[uuid.UUID]*tables.Table)}
}

func (m *MockTableRepo) Create(ctx context.Context, table *tables.Table) error {
	m.Tables[table.ID] = table
	return nil
}

func (m *MockTableRepo) Get(ctx context.Context, id uuid.UUID) (*tables.Table, error) {
	return m.Tables[id], nil
}

func (m *MockTableRepo) List(ctx context.Context) ([]*tables.Table, error) {
	out := make([]*tables.Table, 0, len(m.Tables))
	for _, tb := range m.Tables {
		out = append(out, tb)
	}
	return out, nil
}

func (m *MockTableRepo) Save(ctx context.Context, table *tables.Table) error {
	m.Tables[table.ID] = table
	return nil
}
