package event

import "time"

const (
	// OrdersTopic delivers order lifecycle events (creation, derived status changes).
	OrdersTopic = "orders.status"
	// OrderItemsTopic delivers order item events consumed by the kitchen display.
	OrderItemsTopic = "orders.items"

	EventOrderCreated       = "order.created"
	EventOrderStatusDerived = "order.status.derived"
	EventOrderStatusChanged = "order.status.changed"

	EventOrderItemCreated       = "order.item.created"
	EventOrderItemStatusChanged = "order.item.status_changed"
)

// OrderEvent announces order-level lifecycle changes.
type OrderEvent struct {
	EventType      string    `json:"event_type"`
	OccurredAt     time.Time `json:"occurred_at"`
	OrderID        string    `json:"order_id"`
	TableID        string    `json:"table_id,omitempty"`
	StaffID        string    `json:"staff_id,omitempty"`
	ServePolicy    string    `json:"serve_policy,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`

	// Denormalized data for display purposes
	TableLabel    string `json:"table_label,omitempty"`
	CustomerLabel string `json:"customer_label,omitempty"`
}

// OrderItemEvent announces item creation and status transitions.
// Consumed by the kitchen display board cache.
type OrderItemEvent struct {
	EventType      string    `json:"event_type"`
	OccurredAt     time.Time `json:"occurred_at"`
	OrderID        string    `json:"order_id"`
	OrderItemID    string    `json:"order_item_id"`
	MenuItemID     string    `json:"menu_item_id,omitempty"`
	Quantity       int       `json:"quantity,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`

	// Denormalized data for display purposes
	MenuItemName string `json:"menu_item_name,omitempty"`
	PrepMinutes  int    `json:"prep_minutes,omitempty"`
	TableLabel   string `json:"table_label,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
