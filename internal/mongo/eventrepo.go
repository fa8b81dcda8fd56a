package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/expeditehq/expedite/internal/audit"
)

// EventRepo stores the audit trail. It only ever inserts and reads; there is
// no update or delete path.
type EventRepo struct {
	collection *mongo.Collection
}

func NewEventRepo(db *mongo.Database) *EventRepo {
	return &EventRepo{
		collection: db.Collection("audit_events"),
	}
}

// EnsureIndexes creates the lookup indexes for audit queries.
func (r *EventRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "occurred_at", Value: 1}}},
		{Keys: bson.D{{Key: "occurred_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("cannot create audit event indexes: %w", err)
	}
	return nil
}

func (r *EventRepo) Append(ctx context.Context, event *audit.Event) error {
	if event == nil {
		return fmt.Errorf("audit event is nil")
	}

	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("cannot append audit event: %w", err)
	}

	return nil
}

// ListByEntity returns the full trail for one entity in occurrence order.
func (r *EventRepo) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]*audit.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"entity_id": entityID}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*audit.Event
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode audit events: %w", err)
	}

	return result, nil
}

// List returns the most recent events first.
func (r *EventRepo) List(ctx context.Context, limit int) ([]*audit.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*audit.Event
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode audit events: %w", err)
	}

	return result, nil
}
