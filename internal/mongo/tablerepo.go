package mongo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/expeditehq/expedite/internal/tables"
)

type TableRepo struct {
	collection *mongo.Collection
}

func NewTableRepo(db *mongo.Database) *TableRepo {
	return &TableRepo{
		collection: db.Collection("tables"),
	}
}

func (r *TableRepo) Create(ctx context.Context, table *tables.Table) error {
	if table == nil {
		return fmt.Errorf("table is nil")
	}

	if _, err := r.collection.InsertOne(ctx, table); err != nil {
		return fmt.Errorf("cannot create table: %w", err)
	}

	return nil
}

func (r *TableRepo) Get(ctx context.Context, id uuid.UUID) (*tables.Table, error) {
	var table tables.Table
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&table)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot get table: %w", err)
	}
	return &table, nil
}

func (r *TableRepo) List(ctx context.Context) ([]*tables.Table, error) {
	cursor, err := r.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("cannot list tables: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*tables.Table
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("cannot decode tables: %w", err)
	}

	return result, nil
}

func (r *TableRepo) Save(ctx context.Context, table *tables.Table) error {
	if table == nil {
		return fmt.Errorf("table is nil")
	}

	filter := bson.M{"_id": table.ID}
	update := bson.M{"$set": table}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update table: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("table not found")
	}

	return nil
}
