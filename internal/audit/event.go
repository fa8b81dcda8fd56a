package audit

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Entity types referenced by audit records.
const (
	EntityOrder     = "order"
	EntityOrderItem = "order_item"
	EntityTable     = "table"
)

// Actions recorded by the fulfillment engine.
const (
	ActionCreated            = "CREATED"
	ActionItemAdded          = "ITEM_ADDED"
	ActionItemStatusChanged  = "ITEM_STATUS_CHANGED"
	ActionOrderStatusDerived = "ORDER_STATUS_DERIVED"
	ActionOrderStatusChanged = "ORDER_STATUS_CHANGED"
	ActionTableStatusChanged = "TABLE_STATUS_CHANGED"
)

// Event is an immutable audit fact. Records are appended, never mutated or
// deleted; they exist for traceability, not for replay.
type Event struct {
	ID         uuid.UUID `json:"id" bson:"_id"`
	EntityType string    `json:"entity_type" bson:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id" bson:"entity_id"`
	Action     string    `json:"action" bson:"action"`
	OldValue   string    `json:"old_value,omitempty" bson:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty" bson:"new_value,omitempty"`
	ActorID    uuid.UUID `json:"actor_id" bson:"actor_id"`
	OccurredAt time.Time `json:"occurred_at" bson:"occurred_at"`
}

func (e *Event) GetID() uuid.UUID {
	return e.ID
}

func (e *Event) ResourceType() string {
	return "audit-event"
}

func (e *Event) SetID(id uuid.UUID) {
	e.ID = id
}

func NewEvent(entityType string, entityID uuid.UUID, action string) *Event {
	return &Event{
		ID:         apt.GenerateNewID(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		OccurredAt: time.Now(),
	}
}
