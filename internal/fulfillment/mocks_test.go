package fulfillment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/expeditehq/expedite/internal/audit"
	"github.com/expeditehq/expedite/internal/catalog"
	"github.com/expeditehq/expedite/internal/tables"
)

// MockPublisher is a mock implementation of events.Publisher for testing
type MockPublisher struct {
	mu          sync.Mutex
	Published   []PublishedMessage
	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

type PublishedMessage struct {
	Topic   string
	Payload []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PublishedMessage{Topic: topic, Payload: msg})
	return nil
}

func (m *MockPublisher) TopicCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.Published {
		if p.Topic == topic {
			count++
		}
	}
	return count
}

// MockOrderRepo is a map-backed mock of OrderRepo. Get returns nil, nil on a
// missing order, matching the storage implementation.
type MockOrderRepo struct {
	mu         sync.RWMutex
	orders     map[uuid.UUID]*Order
	CreateFunc func(ctx context.Context, order *Order) error
	GetFunc    func(ctx context.Context, id uuid.UUID) (*Order, error)
	SaveFunc   func(ctx context.Context, order *Order) error
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{
		orders: make(map[uuid.UUID]*Order),
	}
}

func (m *MockOrderRepo) Create(ctx context.Context, order *Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *MockOrderRepo) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id], nil
}

func (m *MockOrderRepo) List(ctx context.Context) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Order
	for _, o := range m.orders {
		result = append(result, o)
	}
	return result, nil
}

func (m *MockOrderRepo) ListByTable(ctx context.Context, tableID uuid.UUID) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Order
	for _, o := range m.orders {
		if o.TableID != nil && *o.TableID == tableID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderRepo) ListByStatus(ctx context.Context, status OrderStatus) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Order
	for _, o := range m.orders {
		if o.Status == status {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderRepo) ListOpen(ctx context.Context) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Order
	for _, o := range m.orders {
		if !o.Status.Terminal() {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderRepo) Save(ctx context.Context, order *Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, order)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

// MockOrderItemRepo is a map-backed mock of OrderItemRepo.
type MockOrderItemRepo struct {
	mu         sync.RWMutex
	items      map[uuid.UUID]*OrderItem
	CreateFunc func(ctx context.Context, item *OrderItem) error
	SaveFunc   func(ctx context.Context, item *OrderItem) error
}

func NewMockOrderItemRepo() *MockOrderItemRepo {
	return &MockOrderItemRepo{
		items: make(map[uuid.UUID]*OrderItem),
	}
}

func (m *MockOrderItemRepo) Create(ctx context.Context, item *OrderItem) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *MockOrderItemRepo) Get(ctx context.Context, id uuid.UUID) (*OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.items[id], nil
}

func (m *MockOrderItemRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*OrderItem
	for _, item := range m.items {
		if item.OrderID == orderID {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *MockOrderItemRepo) Save(ctx context.Context, item *OrderItem) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

// MockTableRepo is a map-backed mock of tables.TableRepo.
type MockTableRepo struct {
	mu       sync.RWMutex
	tables   map[uuid.UUID]*tables.Table
	SaveFunc func(ctx context.Context, table *tables.Table) error
}

func NewMockTableRepo() *MockTableRepo {
	return &MockTableRepo{
		tables: make(map[uuid.UUID]*tables.Table),
	}
}

func (m *MockTableRepo) Create(ctx context.Context, table *tables.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table.ID] = table
	return nil
}

// Get returns a copy so callers cannot mutate the stored table without Save,
// matching how the real repository decodes fresh documents.
func (m *MockTableRepo) Get(ctx context.Context, id uuid.UUID) (*tables.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	table, ok := m.tables[id]
	if !ok {
		return nil, nil
	}
	clone := *table
	return &clone, nil
}

func (m *MockTableRepo) List(ctx context.Context) ([]*tables.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*tables.Table
	for _, t := range m.tables {
		clone := *t
		result = append(result, &clone)
	}
	return result, nil
}

func (m *MockTableRepo) Save(ctx context.Context, table *tables.Table) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, table)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table.ID] = table
	return nil
}

// MockRecorder captures audit events in memory.
type MockRecorder struct {
	mu     sync.Mutex
	Events []*audit.Event
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{}
}

func (m *MockRecorder) Record(ctx context.Context, event *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockRecorder) ActionCount(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, e := range m.Events {
		if e.Action == action {
			count++
		}
	}
	return count
}

// MockAuthorizer allows everything unless AllowedFunc is set.
type MockAuthorizer struct {
	AllowedFunc func(ctx context.Context, actorID uuid.UUID, capability string) (bool, error)
}

func NewMockAuthorizer() *MockAuthorizer {
	return &MockAuthorizer{}
}

func (m *MockAuthorizer) Allowed(ctx context.Context, actorID uuid.UUID, capability string) (bool, error) {
	if m.AllowedFunc != nil {
		return m.AllowedFunc(ctx, actorID, capability)
	}
	return true, nil
}

// MockCatalog serves menu item info from a fixed map.
type MockCatalog struct {
	Items map[uuid.UUID]catalog.MenuItemInfo
}

func NewMockCatalog() *MockCatalog {
	return &MockCatalog{
		Items: make(map[uuid.UUID]catalog.MenuItemInfo),
	}
}

func (m *MockCatalog) Lookup(ctx context.Context, id uuid.UUID) (catalog.MenuItemInfo, error) {
	if info, ok := m.Items[id]; ok {
		return info, nil
	}
	return catalog.MenuItemInfo{}, ErrMenuItemUnknown
}

var ErrMenuItemUnknown = NewNotFound("menu item", uuid.Nil)
