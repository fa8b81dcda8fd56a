package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/expeditehq/expedite/internal/fulfillment"
)

// openStatuses is the complement of the terminal order statuses.
var openStatuses = []string{
	string(fulfillment.OrderPlaced),
	string(fulfillment.OrderPreparing),
	string(fulfillment.OrderReady),
}

type OrderRepo struct {
	collection *mongo.Collection
}

func NewOrderRepo(db *mongo.Database) *OrderRepo {
	return &OrderRepo{
		collection: db.Collection("orders"),
	}
}

// EnsureIndexes creates the query indexes the fulfillment engine relies on.
func (r *OrderRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "table_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("cannot create order indexes: %w", err)
	}
	return nil
}

func (r *OrderRepo) Create(ctx context.Context, o *fulfillment.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	if _, err := r.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("cannot create order: %w", err)
	}

	return nil
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var o fulfillment.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepo) List(ctx context.Context) ([]*fulfillment.Order, error) {
	return r.find(ctx, bson.M{})
}

func (r *OrderRepo) ListByTable(ctx context.Context, tableID uuid.UUID) ([]*fulfillment.Order, error) {
	return r.find(ctx, bson.M{"table_id": tableID})
}

func (r *OrderRepo) ListByStatus(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	return r.find(ctx, bson.M{"status": string(status)})
}

// ListOpen returns all orders in a non-terminal status.
func (r *OrderRepo) ListOpen(ctx context.Context) ([]*fulfillment.Order, error) {
	return r.find(ctx, bson.M{"status": bson.M{"$in": openStatuses}})
}

func (r *OrderRepo) find(ctx context.Context, filter bson.M) ([]*fulfillment.Order, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*fulfillment.Order
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}

	return result, nil
}

func (r *OrderRepo) Save(ctx context.Context, o *fulfillment.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}

	filter := bson.M{"_id": o.ID}
	update := bson.M{"$set": o}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update order: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("order not found")
	}

	return nil
}
