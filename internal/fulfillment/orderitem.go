package fulfillment

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// OrderItem is one ordered quantity of a menu item within an order. Items are
// never deleted; voiding transitions them to cancelled.
type OrderItem struct {
	ID          uuid.UUID  `json:"id" bson:"_id"`
	OrderID     uuid.UUID  `json:"order_id" bson:"order_id"`
	MenuItemID  uuid.UUID  `json:"menu_item_id" bson:"menu_item_id"`
	Quantity    int        `json:"quantity" bson:"quantity"`
	Notes       string     `json:"notes,omitempty" bson:"notes,omitempty"`
	Status      ItemStatus `json:"status" bson:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	CreatedBy   string     `json:"created_by" bson:"created_by"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	UpdatedBy   string     `json:"updated_by" bson:"updated_by"`
}

func (oi *OrderItem) GetID() uuid.UUID {
	return oi.ID
}

func (oi *OrderItem) ResourceType() string {
	return "order-item"
}

func (oi *OrderItem) SetID(id uuid.UUID) {
	oi.ID = id
}

func NewOrderItem() *OrderItem {
	return &OrderItem{
		ID:     apt.GenerateNewID(),
		Status: ItemPending,
	}
}

func (oi *OrderItem) EnsureID() {
	if oi.ID == uuid.Nil {
		oi.ID = apt.GenerateNewID()
	}
}

func (oi *OrderItem) BeforeCreate() {
	oi.EnsureID()
	oi.CreatedAt = time.Now()
	oi.UpdatedAt = time.Now()
}

func (oi *OrderItem) BeforeUpdate() {
	oi.UpdatedAt = time.Now()
}

// Transition moves the item to next if the transition table allows it.
// StartedAt is stamped on first entry to preparing and CompletedAt on first
// entry to ready; both are set exactly once and never overwritten.
func (oi *OrderItem) Transition(next ItemStatus) error {
	if !next.Valid() {
		return NewValidationError("unknown item status %q", next)
	}
	if !oi.Status.CanTransition(next) {
		return NewInvalidItemTransition(oi.ID, oi.Status, next)
	}

	now := time.Now()
	switch next {
	case ItemPreparing:
		if oi.StartedAt == nil {
			oi.StartedAt = &now
		}
	case ItemReady:
		if oi.CompletedAt == nil {
			oi.CompletedAt = &now
		}
	}

	oi.Status = next
	oi.UpdatedAt = now
	return nil
}
