package tables

import (
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

const (
	StatusFree     = "free"
	StatusOccupied = "occupied"
	StatusReserved = "reserved"
)

// Table is a physical seating unit. It only guards its own transitions; the
// one-live-order-per-table rule is enforced by the fulfillment service.
type Table struct {
	ID        uuid.UUID `json:"id" bson:"_id"`
	Label     string    `json:"label" bson:"label"`
	Status    string    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	CreatedBy string    `json:"created_by" bson:"created_by"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	UpdatedBy string    `json:"updated_by" bson:"updated_by"`
}

func (t *Table) GetID() uuid.UUID {
	return t.ID
}

func (t *Table) ResourceType() string {
	return "table"
}

func (t *Table) SetID(id uuid.UUID) {
	t.ID = id
}

func NewTable() *Table {
	return &Table{
		ID:     apt.GenerateNewID(),
		Status: StatusFree,
	}
}

func (t *Table) EnsureID() {
	if t.ID == uuid.Nil {
		t.ID = apt.GenerateNewID()
	}
}

func (t *Table) BeforeCreate() {
	t.EnsureID()
	t.CreatedAt = time.Now()
	t.UpdatedAt = time.Now()
}

func (t *Table) BeforeUpdate() {
	t.UpdatedAt = time.Now()
}

func (t *Table) Free() bool {
	return t.Status == StatusFree
}

// Occupy flips the table to occupied. Only a free table can be claimed.
func (t *Table) Occupy() error {
	if t.Status != StatusFree {
		return fmt.Errorf("table %s is %s, cannot occupy", t.ID, t.Status)
	}
	t.Status = StatusOccupied
	t.UpdatedAt = time.Now()
	return nil
}

// Reserve holds a free table for an upcoming party.
func (t *Table) Reserve() error {
	if t.Status != StatusFree {
		return fmt.Errorf("table %s is %s, cannot reserve", t.ID, t.Status)
	}
	t.Status = StatusReserved
	t.UpdatedAt = time.Now()
	return nil
}

// Release returns the table to free once its last order has closed.
func (t *Table) Release() error {
	if t.Status == StatusFree {
		return fmt.Errorf("table %s is already free", t.ID)
	}
	t.Status = StatusFree
	t.UpdatedAt = time.Now()
	return nil
}
