package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/expeditehq/expedite/internal/audit"
	"github.com/expeditehq/expedite/internal/tables"
	"github.com/expeditehq/expedite/pkg/event"
)

type serviceFixture struct {
	service    *Service
	orders     *MockOrderRepo
	items      *MockOrderItemRepo
	tables     *MockTableRepo
	recorder   *MockRecorder
	publisher  *MockPublisher
	authorizer *MockAuthorizer
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		orders:     NewMockOrderRepo(),
		items:      NewMockOrderItemRepo(),
		tables:     NewMockTableRepo(),
		recorder:   NewMockRecorder(),
		publisher:  NewMockPublisher(),
		authorizer: NewMockAuthorizer(),
	}
	f.service = NewService(ServiceDeps{
		OrderRepo:  f.orders,
		ItemRepo:   f.items,
		TableRepo:  f.tables,
		Recorder:   f.recorder,
		Publisher:  f.publisher,
		Authorizer: f.authorizer,
		Catalog:    NewMockCatalog(),
	}, nil)
	return f
}

func (f *serviceFixture) addTable(t *testing.T, label string) *tables.Table {
	t.Helper()
	table := tables.NewTable()
	table.Label = label
	table.BeforeCreate()
	if err := f.tables.Create(context.Background(), table); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return table
}

func (f *serviceFixture) placeOrder(t *testing.T, tableID *uuid.UUID, policy ServePolicy, actorID uuid.UUID) *Order {
	t.Helper()
	order, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{
		TableID:     tableID,
		StaffID:     actorID,
		ServePolicy: string(policy),
	}, actorID)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	return order
}

func (f *serviceFixture) addItem(t *testing.T, orderID uuid.UUID, actorID uuid.UUID) *OrderItem {
	t.Helper()
	item, err := f.service.AddItem(context.Background(), orderID, OrderItemCreateRequest{
		MenuItemID: uuid.New(),
		Quantity:   1,
	}, actorID)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	return item
}

func TestCreateOrderOccupiesTable(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Window-1")

	order := f.placeOrder(t, &table.ID, ServePartial, actorID)

	if order.Status != OrderPlaced {
		t.Errorf("Status = %s, want %s", order.Status, OrderPlaced)
	}
	if order.TableID == nil || *order.TableID != table.ID {
		t.Error("order should reference the claimed table")
	}

	stored, _ := f.tables.Get(context.Background(), table.ID)
	if stored.Status != tables.StatusOccupied {
		t.Errorf("table status = %s, want %s", stored.Status, tables.StatusOccupied)
	}
	if f.recorder.ActionCount(audit.ActionCreated) != 1 {
		t.Error("order creation should be audited")
	}
	if f.recorder.ActionCount(audit.ActionTableStatusChanged) != 1 {
		t.Error("table occupation should be audited")
	}
}

func TestCreateOrderTableNotFree(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Window-1")

	f.placeOrder(t, &table.ID, ServePartial, actorID)

	_, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{
		TableID: &table.ID,
		StaffID: actorID,
	}, actorID)
	if CodeOf(err) != CodeTableNotFree {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeTableNotFree)
	}
}

func TestCreateOrderUnknownTable(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	missing := uuid.New()

	_, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{
		TableID: &missing,
		StaffID: actorID,
	}, actorID)
	if CodeOf(err) != CodeNotFound {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeNotFound)
	}
}

func TestCreateOrderTakeaway(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()

	order, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{
		StaffID:       actorID,
		CustomerLabel: "Pickup - Alex",
	}, actorID)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.TableID != nil {
		t.Error("takeaway order should not reference a table")
	}
	if !order.Takeaway() {
		t.Error("Takeaway() should report true")
	}
}

func TestCreateOrderPermissionDenied(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	f.authorizer.AllowedFunc = func(ctx context.Context, id uuid.UUID, capability string) (bool, error) {
		return false, nil
	}

	_, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{StaffID: actorID}, actorID)
	if CodeOf(err) != CodePermissionDenied {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodePermissionDenied)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()

	_, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{
		StaffID:     uuid.Nil,
		ServePolicy: "buffet",
	}, actorID)
	if CodeOf(err) != CodeValidation {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeValidation)
	}
}

func TestAddItemOnlyWhilePlaced(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	order := f.placeOrder(t, nil, ServePartial, actorID)

	item := f.addItem(t, order.ID, actorID)
	if item.Status != ItemPending {
		t.Errorf("new item status = %s, want %s", item.Status, ItemPending)
	}

	// Start preparing, order derives to preparing; further adds must fail.
	if _, err := f.service.ChangeItemStatus(context.Background(), item.ID, ItemPreparing, actorID); err != nil {
		t.Fatalf("ChangeItemStatus failed: %v", err)
	}

	_, err := f.service.AddItem(context.Background(), order.ID, OrderItemCreateRequest{
		MenuItemID: uuid.New(),
		Quantity:   1,
	}, actorID)
	if CodeOf(err) != CodeOrderNotModifiable {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeOrderNotModifiable)
	}
}

func TestAddItemUnknownOrder(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()

	_, err := f.service.AddItem(context.Background(), uuid.New(), OrderItemCreateRequest{
		MenuItemID: uuid.New(),
		Quantity:   1,
	}, actorID)
	if CodeOf(err) != CodeNotFound {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeNotFound)
	}
}

func TestChangeItemStatusDerivesOrder(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	order := f.placeOrder(t, nil, ServePartial, actorID)
	first := f.addItem(t, order.ID, actorID)
	second := f.addItem(t, order.ID, actorID)

	if _, err := f.service.ChangeItemStatus(context.Background(), first.ID, ItemPreparing, actorID); err != nil {
		t.Fatalf("ChangeItemStatus failed: %v", err)
	}
	stored, _ := f.orders.Get(context.Background(), order.ID)
	if stored.Status != OrderPreparing {
		t.Errorf("order status = %s, want %s", stored.Status, OrderPreparing)
	}

	if _, err := f.service.ChangeItemStatus(context.Background(), first.ID, ItemReady, actorID); err != nil {
		t.Fatalf("ChangeItemStatus failed: %v", err)
	}
	stored, _ = f.orders.Get(context.Background(), order.ID)
	if stored.Status != OrderReady {
		t.Errorf("order status = %s, want %s (partial policy)", stored.Status, OrderReady)
	}

	if f.recorder.ActionCount(audit.ActionOrderStatusDerived) != 2 {
		t.Errorf("derived status changes audited = %d, want 2", f.recorder.ActionCount(audit.ActionOrderStatusDerived))
	}
	if f.publisher.TopicCount(event.OrderItemsTopic) == 0 {
		t.Error("item events should be published")
	}

	untouched, _ := f.items.Get(context.Background(), second.ID)
	if untouched.Status != ItemPending {
		t.Errorf("sibling item status = %s, want %s", untouched.Status, ItemPending)
	}
}

func TestChangeItemStatusAllAtOnceHoldsReady(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	order := f.placeOrder(t, nil, ServeAllAtOnce, actorID)
	first := f.addItem(t, order.ID, actorID)
	second := f.addItem(t, order.ID, actorID)

	for _, itemID := range []uuid.UUID{first.ID, second.ID} {
		if _, err := f.service.ChangeItemStatus(context.Background(), itemID, ItemPreparing, actorID); err != nil {
			t.Fatalf("ChangeItemStatus failed: %v", err)
		}
	}

	if _, err := f.service.ChangeItemStatus(context.Background(), first.ID, ItemReady, actorID); err != nil {
		t.Fatalf("ChangeItemStatus failed: %v", err)
	}
	stored, _ := f.orders.Get(context.Background(), order.ID)
	if stored.Status != OrderPreparing {
		t.Errorf("order status = %s, want %s (all_at_once withholds ready)", stored.Status, OrderPreparing)
	}

	if _, err := f.service.ChangeItemStatus(context.Background(), second.ID, ItemReady, actorID); err != nil {
		t.Fatalf("ChangeItemStatus failed: %v", err)
	}
	stored, _ = f.orders.Get(context.Background(), order.ID)
	if stored.Status != OrderReady {
		t.Errorf("order status = %s, want %s", stored.Status, OrderReady)
	}
}

func TestServingLastItemCompletesOrderAndFreesTable(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Booth-7")
	order := f.placeOrder(t, &table.ID, ServePartial, actorID)
	item := f.addItem(t, order.ID, actorID)

	ctx := context.Background()
	for _, next := range []ItemStatus{ItemPreparing, ItemReady, ItemServed} {
		if _, err := f.service.ChangeItemStatus(ctx, item.ID, next, actorID); err != nil {
			t.Fatalf("ChangeItemStatus(%s) failed: %v", next, err)
		}
	}

	stored, _ := f.orders.Get(ctx, order.ID)
	if stored.Status != OrderCompleted {
		t.Errorf("order status = %s, want %s", stored.Status, OrderCompleted)
	}

	storedTable, _ := f.tables.Get(ctx, table.ID)
	if storedTable.Status != tables.StatusFree {
		t.Errorf("table status = %s, want %s", storedTable.Status, tables.StatusFree)
	}
}

func TestChangeItemStatusIllegalTransition(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	order := f.placeOrder(t, nil, ServePartial, actorID)
	item := f.addItem(t, order.ID, actorID)

	_, err := f.service.ChangeItemStatus(context.Background(), item.ID, ItemServed, actorID)
	if CodeOf(err) != CodeInvalidTransition {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeInvalidTransition)
	}

	stored, _ := f.items.Get(context.Background(), item.ID)
	if stored.Status != ItemPending {
		t.Errorf("failed transition must not persist, status = %s", stored.Status)
	}
	storedOrder, _ := f.orders.Get(context.Background(), order.ID)
	if storedOrder.Status != OrderPlaced {
		t.Errorf("order must stay %s, got %s", OrderPlaced, storedOrder.Status)
	}
}

func TestChangeItemStatusOnClosedOrder(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	order := f.placeOrder(t, nil, ServePartial, actorID)
	item := f.addItem(t, order.ID, actorID)

	if _, err := f.service.ChangeOrderStatus(context.Background(), order.ID, OrderCancelled, actorID); err != nil {
		t.Fatalf("ChangeOrderStatus failed: %v", err)
	}

	_, err := f.service.ChangeItemStatus(context.Background(), item.ID, ItemPreparing, actorID)
	if CodeOf(err) != CodeOrderNotModifiable && CodeOf(err) != CodeInvalidTransition {
		t.Errorf("CodeOf = %q, want a rejection", CodeOf(err))
	}
}

func TestCancelOrderCancelsOpenItemsAndFreesTable(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Patio-3")
	order := f.placeOrder(t, &table.ID, ServePartial, actorID)
	first := f.addItem(t, order.ID, actorID)
	second := f.addItem(t, order.ID, actorID)

	ctx := context.Background()
	if _, err := f.service.ChangeItemStatus(ctx, first.ID, ItemPreparing, actorID); err != nil {
		t.Fatalf("ChangeItemStatus failed: %v", err)
	}

	if _, err := f.service.ChangeOrderStatus(ctx, order.ID, OrderCancelled, actorID); err != nil {
		t.Fatalf("ChangeOrderStatus failed: %v", err)
	}

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		item, _ := f.items.Get(ctx, id)
		if item.Status != ItemCancelled {
			t.Errorf("item %s status = %s, want %s", id, item.Status, ItemCancelled)
		}
	}

	stored, _ := f.orders.Get(ctx, order.ID)
	if stored.Status != OrderCancelled {
		t.Errorf("order status = %s, want %s", stored.Status, OrderCancelled)
	}

	storedTable, _ := f.tables.Get(ctx, table.ID)
	if storedTable.Status != tables.StatusFree {
		t.Errorf("table status = %s, want %s", storedTable.Status, tables.StatusFree)
	}
}

func TestChangeOrderStatusInvalidTransition(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	order := f.placeOrder(t, nil, ServePartial, actorID)

	if _, err := f.service.ChangeOrderStatus(context.Background(), order.ID, OrderCancelled, actorID); err != nil {
		t.Fatalf("ChangeOrderStatus failed: %v", err)
	}

	_, err := f.service.ChangeOrderStatus(context.Background(), order.ID, OrderPlaced, actorID)
	if CodeOf(err) != CodeInvalidTransition {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeInvalidTransition)
	}
}

func TestActorRequired(t *testing.T) {
	f := newServiceFixture()

	_, err := f.service.CreateOrder(context.Background(), OrderCreateRequest{StaffID: uuid.New()}, uuid.Nil)
	if CodeOf(err) != CodeValidation {
		t.Errorf("CodeOf = %q, want %q", CodeOf(err), CodeValidation)
	}
}

func TestReconcileTablesFreesTableAfterLostRelease(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Booth-7")
	order := f.placeOrder(t, &table.ID, ServePartial, actorID)
	item := f.addItem(t, order.ID, actorID)

	ctx := context.Background()
	for _, next := range []ItemStatus{ItemPreparing, ItemReady} {
		if _, err := f.service.ChangeItemStatus(ctx, item.ID, next, actorID); err != nil {
			t.Fatalf("ChangeItemStatus(%s) failed: %v", next, err)
		}
	}

	// The table write is lost after the order has already closed.
	f.tables.SaveFunc = func(context.Context, *tables.Table) error {
		return errors.New("write concern timeout")
	}
	if _, err := f.service.ChangeItemStatus(ctx, item.ID, ItemServed, actorID); err != nil {
		t.Fatalf("ChangeItemStatus(%s) failed: %v", ItemServed, err)
	}

	stored, _ := f.orders.Get(ctx, order.ID)
	if stored.Status != OrderCompleted {
		t.Fatalf("order status = %s, want %s", stored.Status, OrderCompleted)
	}
	stuck, _ := f.tables.Get(ctx, table.ID)
	if stuck.Status != tables.StatusOccupied {
		t.Fatalf("table status = %s, want %s before reconciliation", stuck.Status, tables.StatusOccupied)
	}

	f.tables.SaveFunc = nil
	if err := f.service.ReconcileTables(ctx); err != nil {
		t.Fatalf("ReconcileTables failed: %v", err)
	}

	freed, _ := f.tables.Get(ctx, table.ID)
	if freed.Status != tables.StatusFree {
		t.Errorf("table status = %s, want %s", freed.Status, tables.StatusFree)
	}
	if f.recorder.ActionCount(audit.ActionTableStatusChanged) != 2 {
		t.Error("reconciliation release should be audited")
	}
}

func TestReconcileTablesLeavesLiveOrdersAlone(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Window-2")
	order := f.placeOrder(t, &table.ID, ServePartial, actorID)
	f.addItem(t, order.ID, actorID)

	ctx := context.Background()
	if err := f.service.ReconcileTables(ctx); err != nil {
		t.Fatalf("ReconcileTables failed: %v", err)
	}

	stored, _ := f.tables.Get(ctx, table.ID)
	if stored.Status != tables.StatusOccupied {
		t.Errorf("table status = %s, want %s", stored.Status, tables.StatusOccupied)
	}
}

func TestConcurrentCreateOrderSingleTable(t *testing.T) {
	f := newServiceFixture()
	actorID := uuid.New()
	table := f.addTable(t, "Window-1")

	ctx := context.Background()
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.CreateOrder(ctx, OrderCreateRequest{
				TableID: &table.ID,
				StaffID: actorID,
			}, actorID)
			results[i] = err
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case CodeOf(err) == CodeTableNotFree:
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Errorf("won = %d, lost = %d, want exactly one of each", won, lost)
	}

	orders, _ := f.orders.ListByTable(ctx, table.ID)
	if len(orders) != 1 {
		t.Errorf("orders on table = %d, want 1", len(orders))
	}
}
