package kds

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"

	"github.com/expeditehq/expedite/internal/catalog"
	"github.com/expeditehq/expedite/internal/fulfillment"
	"github.com/expeditehq/expedite/internal/tables"
	"github.com/expeditehq/expedite/pkg/event"
)

const (
	statusPending   = string(fulfillment.ItemPending)
	statusPreparing = string(fulfillment.ItemPreparing)
	statusReady     = string(fulfillment.ItemReady)
	statusServed    = string(fulfillment.ItemServed)
	statusCancelled = string(fulfillment.ItemCancelled)

	policyAllAtOnce = string(fulfillment.ServeAllAtOnce)
)

// OrderSnapshot is the cached projection of one order.
type OrderSnapshot struct {
	ID            string
	TableID       string
	TableLabel    string
	CustomerLabel string
	ServePolicy   string
	Status        string
	PlacedAt      time.Time
	UpdatedAt     time.Time
}

// ItemSnapshot is the cached projection of one order item,
// enriched with catalog data for display.
type ItemSnapshot struct {
	ID          string
	OrderID     string
	MenuItemID  string
	Name        string
	Quantity    int
	Notes       string
	Status      string
	PrepMinutes int
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// BoardCache maintains an in-memory projection of open orders and their
// items, indexed by order for kitchen board queries. It is warmed from the
// persistent event stream and kept current by live event subscriptions,
// with the repositories as fallback when no stream is available.
type BoardCache struct {
	mu sync.RWMutex
	// orders indexed by order_id
	orders map[string]*OrderSnapshot
	// items indexed by order_item_id
	items map[string]*ItemSnapshot
	// index by order_id -> order_item_id
	byOrder map[string][]string

	stream    events.StreamConsumer
	orderRepo fulfillment.OrderRepo
	itemRepo  fulfillment.OrderItemRepo
	tableRepo tables.TableRepo
	catalog   *catalog.Client
	logger    apt.Logger

	// onChange is signalled after every live event applied to the cache.
	onChange func()
}

// NewBoardCache creates a new board cache.
func NewBoardCache(stream events.StreamConsumer, orderRepo fulfillment.OrderRepo, itemRepo fulfillment.OrderItemRepo, tableRepo tables.TableRepo, cat *catalog.Client, logger apt.Logger) *BoardCache {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &BoardCache{
		orders:    make(map[string]*OrderSnapshot),
		items:     make(map[string]*ItemSnapshot),
		byOrder:   make(map[string][]string),
		stream:    stream,
		orderRepo: orderRepo,
		itemRepo:  itemRepo,
		tableRepo: tableRepo,
		catalog:   cat,
		logger:    logger,
	}
}

// OnChange registers a callback invoked after every live cache update.
func (c *BoardCache) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Warm loads open orders into the cache using event replay from the stream.
// Falls back to the repositories if the stream is unavailable.
func (c *BoardCache) Warm(ctx context.Context) error {
	if c.stream != nil {
		if err := c.warmFromStream(ctx); err != nil {
			c.logger.Info("stream replay failed, falling back to repositories", "error", err)
		} else {
			c.removeClosedOrders()
			return nil
		}
	}

	if c.orderRepo == nil || c.itemRepo == nil {
		c.logger.Info("neither stream nor repositories configured, board cache remains empty")
		return nil
	}

	return c.warmFromRepos(ctx)
}

// warmFromStream replays events from the persistent stream to rebuild cache state.
func (c *BoardCache) warmFromStream(ctx context.Context) error {
	c.logger.Info("warming board cache from event stream")

	messages, err := c.stream.Fetch(ctx, 10000)
	if err != nil {
		return err
	}

	c.logger.Info("fetched events from stream", "count", len(messages))

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range messages {
		c.applyEventLocked(msg.Data)
	}

	c.logger.Info("board cache warmed from stream", "orders", len(c.orders), "items", len(c.items))
	return nil
}

// warmFromRepos loads open orders and their items directly from storage.
func (c *BoardCache) warmFromRepos(ctx context.Context) error {
	c.logger.Info("warming board cache from repositories")

	orders, err := c.orderRepo.ListOpen(ctx)
	if err != nil {
		c.logger.Error("cannot warm board cache from repositories", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, order := range orders {
		snap := &OrderSnapshot{
			ID:            order.ID.String(),
			CustomerLabel: order.CustomerLabel,
			ServePolicy:   string(order.ServePolicy),
			Status:        string(order.Status),
			PlacedAt:      order.CreatedAt,
			UpdatedAt:     order.UpdatedAt,
		}
		if order.TableID != nil {
			snap.TableID = order.TableID.String()
			if c.tableRepo != nil {
				if table, err := c.tableRepo.Get(ctx, *order.TableID); err == nil && table != nil {
					snap.TableLabel = table.Label
				}
			}
		}
		c.setOrderLocked(snap)

		items, err := c.itemRepo.ListByOrder(ctx, order.ID)
		if err != nil {
			c.logger.Error("cannot load items for board cache", "error", err, "order_id", snap.ID)
			continue
		}
		for _, item := range items {
			isnap := &ItemSnapshot{
				ID:          item.ID.String(),
				OrderID:     item.OrderID.String(),
				MenuItemID:  item.MenuItemID.String(),
				Quantity:    item.Quantity,
				Notes:       item.Notes,
				Status:      string(item.Status),
				StartedAt:   item.StartedAt,
				CompletedAt: item.CompletedAt,
				CreatedAt:   item.CreatedAt,
			}
			if c.catalog != nil {
				if info, err := c.catalog.Lookup(ctx, item.MenuItemID); err == nil {
					isnap.Name = info.Name
					isnap.PrepMinutes = info.PrepMinutes
				}
			}
			c.setItemLocked(isnap)
		}
	}

	c.logger.Info("board cache warmed from repositories", "orders", len(c.orders), "items", len(c.items))
	return nil
}

// HandleOrderEvent applies a live order event. Satisfies events.HandlerFunc.
func (c *BoardCache) HandleOrderEvent(_ context.Context, data []byte) error {
	c.mu.Lock()
	c.applyEventLocked(data)
	c.pruneClosedLocked()
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// HandleItemEvent applies a live order item event. Satisfies events.HandlerFunc.
func (c *BoardCache) HandleItemEvent(_ context.Context, data []byte) error {
	c.mu.Lock()
	c.applyEventLocked(data)
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// applyEventLocked processes a single event and updates the cache.
// Must be called with c.mu locked.
func (c *BoardCache) applyEventLocked(data []byte) {
	var baseEvent struct {
		EventType string `json:"event_type"`
	}

	if err := json.Unmarshal(data, &baseEvent); err != nil {
		c.logger.Error("cannot unmarshal event type", "error", err)
		return
	}

	switch baseEvent.EventType {
	case event.EventOrderCreated, event.EventOrderStatusDerived, event.EventOrderStatusChanged:
		c.handleOrderEventLocked(data)
	case event.EventOrderItemCreated, event.EventOrderItemStatusChanged:
		c.handleItemEventLocked(data)
	default:
		// Silently ignore unknown event types (forward compatibility)
		return
	}
}

func (c *BoardCache) handleOrderEventLocked(data []byte) {
	var evt event.OrderEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Error("cannot unmarshal order event", "error", err)
		return
	}

	snap := c.orders[evt.OrderID]
	if snap == nil {
		snap = &OrderSnapshot{
			ID:       evt.OrderID,
			PlacedAt: evt.OccurredAt,
		}
	}

	snap.Status = evt.Status
	snap.UpdatedAt = evt.OccurredAt
	if evt.ServePolicy != "" {
		snap.ServePolicy = evt.ServePolicy
	}
	if evt.TableID != "" {
		snap.TableID = evt.TableID
	}
	if evt.TableLabel != "" {
		snap.TableLabel = evt.TableLabel
	}
	if evt.CustomerLabel != "" {
		snap.CustomerLabel = evt.CustomerLabel
	}
	if evt.EventType == event.EventOrderCreated {
		snap.PlacedAt = evt.OccurredAt
	}

	c.setOrderLocked(snap)
}

func (c *BoardCache) handleItemEventLocked(data []byte) {
	var evt event.OrderItemEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		c.logger.Error("cannot unmarshal order item event", "error", err)
		return
	}

	snap := c.items[evt.OrderItemID]
	if snap == nil {
		snap = &ItemSnapshot{
			ID:        evt.OrderItemID,
			OrderID:   evt.OrderID,
			CreatedAt: evt.OccurredAt,
		}
	}

	snap.Status = evt.Status
	snap.StartedAt = evt.StartedAt
	snap.CompletedAt = evt.CompletedAt
	if evt.MenuItemID != "" {
		snap.MenuItemID = evt.MenuItemID
	}
	if evt.Quantity > 0 {
		snap.Quantity = evt.Quantity
	}
	if evt.Notes != "" {
		snap.Notes = evt.Notes
	}
	if evt.MenuItemName != "" {
		snap.Name = evt.MenuItemName
	}
	if evt.PrepMinutes > 0 {
		snap.PrepMinutes = evt.PrepMinutes
	}

	c.setItemLocked(snap)

	if evt.TableLabel != "" {
		if order := c.orders[evt.OrderID]; order != nil {
			order.TableLabel = evt.TableLabel
		}
	}
}

// removeClosedOrders drops completed and cancelled orders after warming so
// the board only shows open work.
func (c *BoardCache) removeClosedOrders() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneClosedLocked()
}

func (c *BoardCache) pruneClosedLocked() {
	var removed int
	for id, order := range c.orders {
		status := fulfillment.OrderStatus(order.Status)
		if !status.Terminal() {
			continue
		}
		for _, itemID := range c.byOrder[id] {
			delete(c.items, itemID)
		}
		delete(c.byOrder, id)
		delete(c.orders, id)
		removed++
	}

	if removed > 0 {
		c.logger.Debug("removed closed orders from board cache", "count", removed)
	}
}

func (c *BoardCache) setOrderLocked(snap *OrderSnapshot) {
	if snap == nil {
		return
	}
	c.orders[snap.ID] = snap
}

func (c *BoardCache) setItemLocked(snap *ItemSnapshot) {
	if snap == nil {
		return
	}

	if _, exists := c.items[snap.ID]; !exists {
		c.byOrder[snap.OrderID] = append(c.byOrder[snap.OrderID], snap.ID)
	}
	c.items[snap.ID] = snap
}

// OpenOrders returns copies of all cached open orders with their items,
// sorted oldest-first by placement time. Orders without any non-served,
// non-cancelled item are omitted.
func (c *BoardCache) OpenOrders() ([]OrderSnapshot, map[string][]ItemSnapshot) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	orders := make([]OrderSnapshot, 0, len(c.orders))
	itemsByOrder := make(map[string][]ItemSnapshot, len(c.orders))

	for id, order := range c.orders {
		if fulfillment.OrderStatus(order.Status).Terminal() {
			continue
		}

		items := make([]ItemSnapshot, 0, len(c.byOrder[id]))
		active := false
		for _, itemID := range c.byOrder[id] {
			item := c.items[itemID]
			if item == nil {
				continue
			}
			items = append(items, *item)
			if item.Status != statusServed && item.Status != statusCancelled {
				active = true
			}
		}
		if !active {
			continue
		}

		sortItemsByCreation(items)
		orders = append(orders, *order)
		itemsByOrder[id] = items
	}

	sortOrdersByPlacement(orders)
	return orders, itemsByOrder
}

// Set replaces an order snapshot in the cache. Intended for tests and
// administrative repair.
func (c *BoardCache) Set(order *OrderSnapshot, items []ItemSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setOrderLocked(order)
	for i := range items {
		item := items[i]
		c.setItemLocked(&item)
	}
}

// Remove deletes an order and its items from the cache.
func (c *BoardCache) Remove(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, itemID := range c.byOrder[orderID] {
		delete(c.items, itemID)
	}
	delete(c.byOrder, orderID)
	delete(c.orders, orderID)
}

func sortOrdersByPlacement(orders []OrderSnapshot) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PlacedAt.Before(orders[j].PlacedAt)
	})
}

func sortItemsByCreation(items []ItemSnapshot) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
