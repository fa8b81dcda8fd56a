package audit

import (
	"context"

	"github.com/google/uuid"
)

// EventRepo persists the audit trail. Events are append-only; there is no
// update or delete.
type EventRepo interface {
	Append(ctx context.Context, event *Event) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*Event, error)
	List(ctx context.Context, limit int) ([]*Event, error)
}
