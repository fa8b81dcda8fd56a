package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"

	"github.com/expeditehq/expedite/internal/audit"
	"github.com/expeditehq/expedite/internal/catalog"
	"github.com/expeditehq/expedite/internal/tables"
	"github.com/expeditehq/expedite/pkg"
	"github.com/expeditehq/expedite/pkg/event"
)

// Capabilities required by the mutating operations.
const (
	CapOrderCreate     = "orders.create"
	CapItemCreate      = "orders.items.create"
	CapItemTransition  = "orders.items.transition"
	CapOrderTransition = "orders.status.change"
)

// CapabilityChecker is the authorization collaborator gating every mutation.
type CapabilityChecker interface {
	Allowed(ctx context.Context, actorID uuid.UUID, capability string) (bool, error)
}

// CatalogLookup resolves menu item display data for event enrichment.
type CatalogLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (catalog.MenuItemInfo, error)
}

// AuditRecorder appends immutable audit facts.
type AuditRecorder interface {
	Record(ctx context.Context, event *audit.Event) error
}

// Service orchestrates order creation, item mutation, status re-derivation and
// table occupancy side effects. It is the only writer of order status.
//
// Operations on the same order or table are serialized with keyed mutexes so
// the item-transition, re-derivation, table-flip chain runs as a single unit;
// operations on different orders interleave freely. Lock order is always
// order before table.
type Service struct {
	orderRepo  OrderRepo
	itemRepo   OrderItemRepo
	tableRepo  tables.TableRepo
	recorder   AuditRecorder
	publisher  events.Publisher
	authorizer CapabilityChecker
	catalog    CatalogLookup
	logger     apt.Logger

	orderLocks *keyedMutex
	tableLocks *keyedMutex
}

type ServiceDeps struct {
	OrderRepo  OrderRepo
	ItemRepo   OrderItemRepo
	TableRepo  tables.TableRepo
	Recorder   AuditRecorder
	Publisher  events.Publisher
	Authorizer CapabilityChecker
	Catalog    CatalogLookup
}

func NewService(deps ServiceDeps, logger apt.Logger) *Service {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Service{
		orderRepo:  deps.OrderRepo,
		itemRepo:   deps.ItemRepo,
		tableRepo:  deps.TableRepo,
		recorder:   deps.Recorder,
		publisher:  deps.Publisher,
		authorizer: deps.Authorizer,
		catalog:    deps.Catalog,
		logger:     logger,
		orderLocks: newKeyedMutex(),
		tableLocks: newKeyedMutex(),
	}
}

// CreateOrder claims a table (unless takeaway) and opens an order in placed
// status. A second creation against an occupied table fails with
// table_not_free; concurrent attempts are serialized per table.
func (s *Service) CreateOrder(ctx context.Context, req OrderCreateRequest, actorID uuid.UUID) (*Order, error) {
	if err := s.authorize(ctx, actorID, CapOrderCreate); err != nil {
		return nil, err
	}
	if errs := ValidateOrderCreate(req); len(errs) > 0 {
		return nil, NewValidationError("%s", strings.Join(errs, "; "))
	}

	policy := ServePolicy(req.ServePolicy)
	if req.ServePolicy == "" {
		policy = ServePartial
	}

	order := NewOrder()
	order.StaffID = req.StaffID
	order.ServePolicy = policy
	order.CustomerLabel = req.CustomerLabel
	order.Notes = req.Notes
	order.CreatedBy = actorID.String()
	order.UpdatedBy = actorID.String()

	if req.TableID == nil {
		order.BeforeCreate()
		if err := s.orderRepo.Create(ctx, order); err != nil {
			return nil, fmt.Errorf("cannot create order: %w", err)
		}
		s.recordOrderCreated(ctx, order, actorID)
		return order, nil
	}

	tableID := *req.TableID
	unlock := s.tableLocks.Lock(tableID)
	defer unlock()

	table, err := s.tableRepo.Get(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("cannot load table: %w", err)
	}
	if table == nil {
		return nil, NewNotFound("table", tableID)
	}
	if !table.Free() {
		return nil, NewTableNotFree(tableID, table.Status)
	}

	order.TableID = &tableID
	order.BeforeCreate()
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("cannot create order: %w", err)
	}

	previousTableStatus := table.Status
	if err := table.Occupy(); err != nil {
		return nil, fmt.Errorf("cannot occupy table: %w", err)
	}
	table.UpdatedBy = actorID.String()
	if err := s.tableRepo.Save(ctx, table); err != nil {
		return nil, fmt.Errorf("cannot update table: %w", err)
	}

	s.recordOrderCreated(ctx, order, actorID)
	s.recordTableStatus(ctx, table, previousTableStatus, order.ID, "order created", actorID)

	return order, nil
}

// AddItem appends a line item to an order that is still in placed status.
func (s *Service) AddItem(ctx context.Context, orderID uuid.UUID, req OrderItemCreateRequest, actorID uuid.UUID) (*OrderItem, error) {
	if err := s.authorize(ctx, actorID, CapItemCreate); err != nil {
		return nil, err
	}
	if errs := ValidateOrderItemCreate(req); len(errs) > 0 {
		return nil, NewValidationError("%s", strings.Join(errs, "; "))
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	order, err := s.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("cannot load order: %w", err)
	}
	if order == nil {
		return nil, NewNotFound("order", orderID)
	}
	if order.Status != OrderPlaced {
		return nil, NewOrderNotModifiable(orderID, order.Status)
	}

	item := NewOrderItem()
	item.OrderID = orderID
	item.MenuItemID = req.MenuItemID
	item.Quantity = req.Quantity
	item.Notes = req.Notes
	item.CreatedBy = actorID.String()
	item.UpdatedBy = actorID.String()
	item.BeforeCreate()

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("cannot create order item: %w", err)
	}

	evt := audit.NewEvent(audit.EntityOrderItem, item.ID, audit.ActionItemAdded)
	evt.NewValue = string(item.Status)
	evt.ActorID = actorID
	s.record(ctx, evt)

	s.publishItemEvent(ctx, event.EventOrderItemCreated, item, order, "")

	return item, nil
}

// ChangeItemStatus applies a legal item transition, re-derives the parent
// order's status and, when the order closes, releases the table if no active
// items remain for it.
func (s *Service) ChangeItemStatus(ctx context.Context, itemID uuid.UUID, next ItemStatus, actorID uuid.UUID) (*OrderItem, error) {
	if err := s.authorize(ctx, actorID, CapItemTransition); err != nil {
		return nil, err
	}

	item, err := s.itemRepo.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("cannot load order item: %w", err)
	}
	if item == nil {
		return nil, NewNotFound("order item", itemID)
	}

	unlock := s.orderLocks.Lock(item.OrderID)
	defer unlock()

	// Re-read under the order lock; a concurrent transition may have landed.
	item, err = s.itemRepo.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("cannot load order item: %w", err)
	}
	if item == nil {
		return nil, NewNotFound("order item", itemID)
	}

	order, err := s.orderRepo.Get(ctx, item.OrderID)
	if err != nil {
		return nil, fmt.Errorf("cannot load order: %w", err)
	}
	if order == nil {
		return nil, NewNotFound("order", item.OrderID)
	}
	if order.Status.Terminal() {
		return nil, NewOrderNotModifiable(order.ID, order.Status)
	}

	previousStatus := item.Status
	if err := item.Transition(next); err != nil {
		return nil, err
	}
	item.UpdatedBy = actorID.String()

	if err := s.itemRepo.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("cannot update order item: %w", err)
	}

	evt := audit.NewEvent(audit.EntityOrderItem, item.ID, audit.ActionItemStatusChanged)
	evt.OldValue = string(previousStatus)
	evt.NewValue = string(item.Status)
	evt.ActorID = actorID
	s.record(ctx, evt)

	s.publishItemEvent(ctx, event.EventOrderItemStatusChanged, item, order, previousStatus)

	if err := s.rederiveLocked(ctx, order, actorID); err != nil {
		return nil, err
	}

	return item, nil
}

// ChangeOrderStatus applies a manual order-level transition not reachable via
// item derivation, e.g. explicit cancellation. Cancelling an order voids all
// of its non-terminal items so the stored status stays consistent with the
// deriver.
func (s *Service) ChangeOrderStatus(ctx context.Context, orderID uuid.UUID, next OrderStatus, actorID uuid.UUID) (*Order, error) {
	if err := s.authorize(ctx, actorID, CapOrderTransition); err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, NewValidationError("unknown order status %q", next)
	}

	unlock := s.orderLocks.Lock(orderID)
	defer unlock()

	order, err := s.orderRepo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("cannot load order: %w", err)
	}
	if order == nil {
		return nil, NewNotFound("order", orderID)
	}
	if !order.Status.CanTransition(next) {
		return nil, NewInvalidOrderTransition(orderID, order.Status, next)
	}

	if next == OrderCancelled {
		if err := s.cancelOpenItems(ctx, order, actorID); err != nil {
			return nil, err
		}
	}

	previousStatus := order.Status
	order.Status = next
	order.UpdatedBy = actorID.String()
	order.BeforeUpdate()
	if err := s.orderRepo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("cannot update order: %w", err)
	}

	evt := audit.NewEvent(audit.EntityOrder, order.ID, audit.ActionOrderStatusChanged)
	evt.OldValue = string(previousStatus)
	evt.NewValue = string(order.Status)
	evt.ActorID = actorID
	s.record(ctx, evt)

	s.publishOrderEvent(ctx, event.EventOrderStatusChanged, order, previousStatus)

	if next.Terminal() && order.TableID != nil {
		s.releaseTableIfIdle(ctx, *order.TableID, order.ID, actorID, "order closed")
	}

	return order, nil
}

// rederiveLocked recomputes the order status from its items and persists the
// result when it changed. Callers must hold the order lock.
func (s *Service) rederiveLocked(ctx context.Context, order *Order, actorID uuid.UUID) error {
	items, err := s.itemRepo.ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("cannot list order items: %w", err)
	}

	derived := DeriveOrderStatus(order.ServePolicy, items)
	if derived == order.Status {
		return nil
	}

	previousStatus := order.Status
	order.Status = derived
	order.UpdatedBy = actorID.String()
	order.BeforeUpdate()
	if err := s.orderRepo.Save(ctx, order); err != nil {
		return fmt.Errorf("cannot update order status: %w", err)
	}

	evt := audit.NewEvent(audit.EntityOrder, order.ID, audit.ActionOrderStatusDerived)
	evt.OldValue = string(previousStatus)
	evt.NewValue = string(derived)
	evt.ActorID = actorID
	s.record(ctx, evt)

	s.publishOrderEvent(ctx, event.EventOrderStatusDerived, order, previousStatus)

	if derived.Terminal() && order.TableID != nil {
		s.releaseTableIfIdle(ctx, *order.TableID, order.ID, actorID, "order closed")
	}

	return nil
}

// cancelOpenItems voids every non-terminal item on the order. Callers must
// hold the order lock.
func (s *Service) cancelOpenItems(ctx context.Context, order *Order, actorID uuid.UUID) error {
	items, err := s.itemRepo.ListByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("cannot list order items: %w", err)
	}

	for _, item := range items {
		if item.Status.Terminal() {
			continue
		}
		previousStatus := item.Status
		if err := item.Transition(ItemCancelled); err != nil {
			return err
		}
		item.UpdatedBy = actorID.String()
		if err := s.itemRepo.Save(ctx, item); err != nil {
			return fmt.Errorf("cannot cancel order item: %w", err)
		}

		evt := audit.NewEvent(audit.EntityOrderItem, item.ID, audit.ActionItemStatusChanged)
		evt.OldValue = string(previousStatus)
		evt.NewValue = string(item.Status)
		evt.ActorID = actorID
		s.record(ctx, evt)

		s.publishItemEvent(ctx, event.EventOrderItemStatusChanged, item, order, previousStatus)
	}

	return nil
}

// releaseTableIfIdle frees the table when no live order and no unserved item
// reference it anymore. A failed table save is only logged, because the order
// transition has already committed; ReconcileTables picks those tables up.
func (s *Service) releaseTableIfIdle(ctx context.Context, tableID, closingOrderID uuid.UUID, actorID uuid.UUID, reason string) {
	unlock := s.tableLocks.Lock(tableID)
	defer unlock()

	table, err := s.tableRepo.Get(ctx, tableID)
	if err != nil || table == nil {
		s.logger.Error("cannot load table for release", "error", err, "table_id", tableID.String())
		return
	}
	if table.Free() {
		return
	}

	orders, err := s.orderRepo.ListByTable(ctx, tableID)
	if err != nil {
		s.logger.Error("cannot list orders for table release", "error", err, "table_id", tableID.String())
		return
	}

	for _, o := range orders {
		if !o.Status.Terminal() {
			return
		}
		items, err := s.itemRepo.ListByOrder(ctx, o.ID)
		if err != nil {
			s.logger.Error("cannot list items for table release", "error", err, "order_id", o.ID.String())
			return
		}
		for _, item := range items {
			if item.Status.Active() {
				return
			}
		}
	}

	previousStatus := table.Status
	if err := table.Release(); err != nil {
		s.logger.Error("cannot release table", "error", err, "table_id", tableID.String())
		return
	}
	table.UpdatedBy = actorID.String()
	if err := s.tableRepo.Save(ctx, table); err != nil {
		s.logger.Error("cannot save released table", "error", err, "table_id", tableID.String())
		return
	}

	s.recordTableStatus(ctx, table, previousStatus, closingOrderID, reason, actorID)
}

// ReconcileTables frees every table whose orders are all terminal and whose
// items are all settled. It covers tables left occupied when the table save
// failed after the closing order had already committed, and runs at startup.
func (s *Service) ReconcileTables(ctx context.Context) error {
	tableList, err := s.tableRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("cannot list tables: %w", err)
	}

	for _, table := range tableList {
		if table == nil || table.Free() {
			continue
		}
		s.releaseTableIfIdle(ctx, table.ID, uuid.Nil, uuid.Nil, "reconciliation")
	}

	return nil
}

func (s *Service) authorize(ctx context.Context, actorID uuid.UUID, capability string) error {
	if actorID == uuid.Nil {
		return NewValidationError("actor id is required")
	}
	if s.authorizer == nil {
		return nil
	}
	allowed, err := s.authorizer.Allowed(ctx, actorID, capability)
	if err != nil {
		return fmt.Errorf("cannot check capability %s: %w", capability, err)
	}
	if !allowed {
		return NewPermissionDenied(actorID, capability)
	}
	return nil
}

func (s *Service) record(ctx context.Context, evt *audit.Event) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, evt); err != nil {
		s.logger.Error("cannot record audit event", "error", err, "entity_id", evt.EntityID.String(), "action", evt.Action)
	}
}

func (s *Service) recordOrderCreated(ctx context.Context, order *Order, actorID uuid.UUID) {
	evt := audit.NewEvent(audit.EntityOrder, order.ID, audit.ActionCreated)
	evt.NewValue = string(order.Status)
	evt.ActorID = actorID
	s.record(ctx, evt)

	s.publishOrderEvent(ctx, event.EventOrderCreated, order, "")
}

func (s *Service) recordTableStatus(ctx context.Context, table *tables.Table, previousStatus string, orderID uuid.UUID, reason string, actorID uuid.UUID) {
	evt := audit.NewEvent(audit.EntityTable, table.ID, audit.ActionTableStatusChanged)
	evt.OldValue = previousStatus
	evt.NewValue = table.Status
	evt.ActorID = actorID
	s.record(ctx, evt)

	if s.publisher == nil {
		return
	}
	statusEvt := pkg.TableStatusEvent{
		EventType:      pkg.EventTableStatusChanged,
		TableID:        table.ID.String(),
		Status:         table.Status,
		PreviousStatus: previousStatus,
		Reason:         reason,
		OccurredAt:     time.Now().UTC(),
	}
	if orderID != uuid.Nil {
		statusEvt.OrderID = orderID.String()
	}
	payload, err := json.Marshal(statusEvt)
	if err != nil {
		s.logger.Error("cannot marshal table status event", "error", err, "table_id", table.ID.String())
		return
	}
	if err := s.publisher.Publish(ctx, pkg.TableStatusTopic, payload); err != nil {
		s.logger.Error("cannot publish table status event", "error", err, "table_id", table.ID.String())
	}
}

func (s *Service) publishOrderEvent(ctx context.Context, eventType string, order *Order, previousStatus OrderStatus) {
	if s.publisher == nil {
		return
	}

	evt := event.OrderEvent{
		EventType:      eventType,
		OccurredAt:     time.Now().UTC(),
		OrderID:        order.ID.String(),
		StaffID:        order.StaffID.String(),
		ServePolicy:    string(order.ServePolicy),
		Status:         string(order.Status),
		PreviousStatus: string(previousStatus),
		CustomerLabel:  order.CustomerLabel,
	}
	if order.TableID != nil {
		evt.TableID = order.TableID.String()
		if s.tableRepo != nil {
			if table, err := s.tableRepo.Get(ctx, *order.TableID); err == nil && table != nil {
				evt.TableLabel = table.Label
			}
		}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("cannot marshal order event", "error", err, "order_id", order.ID.String())
		return
	}
	if err := s.publisher.Publish(ctx, event.OrdersTopic, payload); err != nil {
		s.logger.Error("cannot publish order event", "error", err, "order_id", order.ID.String())
	}
}

func (s *Service) publishItemEvent(ctx context.Context, eventType string, item *OrderItem, order *Order, previousStatus ItemStatus) {
	if s.publisher == nil {
		return
	}

	evt := event.OrderItemEvent{
		EventType:      eventType,
		OccurredAt:     time.Now().UTC(),
		OrderID:        item.OrderID.String(),
		OrderItemID:    item.ID.String(),
		MenuItemID:     item.MenuItemID.String(),
		Quantity:       item.Quantity,
		Notes:          item.Notes,
		Status:         string(item.Status),
		PreviousStatus: string(previousStatus),
		StartedAt:      item.StartedAt,
		CompletedAt:    item.CompletedAt,
	}

	// Display enrichment is best effort; the board tolerates missing names.
	if s.catalog != nil {
		if info, err := s.catalog.Lookup(ctx, item.MenuItemID); err == nil {
			evt.MenuItemName = info.Name
			evt.PrepMinutes = info.PrepMinutes
		} else {
			s.logger.Debug("cannot resolve menu item for event", "error", err, "menu_item_id", item.MenuItemID.String())
		}
	}
	if order != nil && order.TableID != nil && s.tableRepo != nil {
		if table, err := s.tableRepo.Get(ctx, *order.TableID); err == nil && table != nil {
			evt.TableLabel = table.Label
		}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("cannot marshal order item event", "error", err, "order_item_id", item.ID.String())
		return
	}
	if err := s.publisher.Publish(ctx, event.OrderItemsTopic, payload); err != nil {
		s.logger.Error("cannot publish order item event", "error", err, "order_item_id", item.ID.String())
	}
}
