package commands

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const demoMarker = "seed:demo"

// ClearDemo removes demo orders and items and returns demo-occupied tables
// to free, so a deployment can shed its sample data without a full reset.
func ClearDemo(ctx context.Context, config *apt.Config, logger apt.Logger) error {
	logger.Info("Starting demo data cleanup...")

	client, dbName, err := connect(ctx, config)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	logger.Info("Connected to MongoDB")

	db := client.Database(dbName)

	itemsResult, err := db.Collection("order_items").DeleteMany(ctx, bson.M{"created_by": demoMarker})
	if err != nil {
		return fmt.Errorf("delete demo order items: %w", err)
	}
	logger.Info("Deleted demo order items", "count", itemsResult.DeletedCount)

	ordersResult, err := db.Collection("orders").DeleteMany(ctx, bson.M{"created_by": demoMarker})
	if err != nil {
		return fmt.Errorf("delete demo orders: %w", err)
	}
	logger.Info("Deleted demo orders", "count", ordersResult.DeletedCount)

	if err := freeDemoTables(ctx, db, logger); err != nil {
		return err
	}

	trackerResult, err := db.Collection("_seeds").DeleteOne(ctx, bson.M{"_id": "2026-08-15_demo_orders_v1"})
	if err != nil {
		return fmt.Errorf("delete demo seed tracker: %w", err)
	}
	logger.Info("Cleared demo seed tracker", "deleted", trackerResult.DeletedCount)

	return nil
}

// freeDemoTables releases tables the demo orders were occupying.
func freeDemoTables(ctx context.Context, db *mongo.Database, logger apt.Logger) error {
	result, err := db.Collection("tables").UpdateMany(ctx,
		bson.M{"updated_by": demoMarker, "status": bson.M{"$ne": "free"}},
		bson.M{"$set": bson.M{"status": "free", "updated_by": "expedite-utils"}},
	)
	if err != nil {
		return fmt.Errorf("free demo tables: %w", err)
	}
	logger.Info("Released demo-occupied tables", "count", result.ModifiedCount)
	return nil
}
