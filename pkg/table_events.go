package pkg

import "time"

const (
	// TableStatusTopic delivers authoritative status changes for tables.
	TableStatusTopic = "tables.status"
	// AuditTopic mirrors every persisted audit record for external traceability.
	AuditTopic = "audit.events"

	// EventTableStatusChanged identifies a table status change event payload.
	EventTableStatusChanged = "table.status.changed"
	// EventAuditRecorded identifies a mirrored audit record payload.
	EventAuditRecorded = "audit.recorded"
)

// TableStatusEvent captures a table occupancy change applied by the
// fulfillment engine (occupy on order creation, release on completion).
type TableStatusEvent struct {
	EventType      string    `json:"event_type"`
	TableID        string    `json:"table_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AuditEvent is the wire form of a persisted audit record.
type AuditEvent struct {
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
