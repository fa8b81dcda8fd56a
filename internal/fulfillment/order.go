package fulfillment

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// Order identifies one dining session. Its Status is always the deriver's
// output for its items and serve policy; nothing else writes it except the
// manual terminal path in the service.
type Order struct {
	ID            uuid.UUID   `json:"id" bson:"_id"`
	TableID       *uuid.UUID  `json:"table_id,omitempty" bson:"table_id,omitempty"`
	StaffID       uuid.UUID   `json:"staff_id" bson:"staff_id"`
	Status        OrderStatus `json:"status" bson:"status"`
	ServePolicy   ServePolicy `json:"serve_policy" bson:"serve_policy"`
	CustomerLabel string      `json:"customer_label,omitempty" bson:"customer_label,omitempty"`
	Notes         string      `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt     time.Time   `json:"created_at" bson:"created_at"`
	CreatedBy     string      `json:"created_by" bson:"created_by"`
	UpdatedAt     time.Time   `json:"updated_at" bson:"updated_at"`
	UpdatedBy     string      `json:"updated_by" bson:"updated_by"`
}

func (o *Order) GetID() uuid.UUID {
	return o.ID
}

func (o *Order) ResourceType() string {
	return "order"
}

func (o *Order) SetID(id uuid.UUID) {
	o.ID = id
}

func NewOrder() *Order {
	return &Order{
		ID:          apt.GenerateNewID(),
		Status:      OrderPlaced,
		ServePolicy: ServePartial,
	}
}

func (o *Order) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = apt.GenerateNewID()
	}
}

func (o *Order) BeforeCreate() {
	o.EnsureID()
	o.CreatedAt = time.Now()
	o.UpdatedAt = time.Now()
}

func (o *Order) BeforeUpdate() {
	o.UpdatedAt = time.Now()
}

// Takeaway reports whether the order is not bound to a physical table.
func (o *Order) Takeaway() bool {
	return o.TableID == nil
}
