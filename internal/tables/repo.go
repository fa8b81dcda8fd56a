package tables

import (
	"context"

	"github.com/google/uuid"
)

type TableRepo interface {
	Create(ctx context.Context, table *Table) error
	Get(ctx context.Context, id uuid.UUID) (*Table, error)
	List(ctx context.Context) ([]*Table, error)
	Save(ctx context.Context, table *Table) error
}
