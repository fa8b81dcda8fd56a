package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/expeditehq/expedite/internal/catalog"
	"github.com/expeditehq/expedite/internal/tables"
)

const demoSeedApplication = "expedite_demo"

// Repos bundles the storage dependencies for seeding and handler wiring.
type Repos struct {
	OrderRepo OrderRepo
	ItemRepo  OrderItemRepo
	TableRepo tables.TableRepo
}

// ApplyDemoSeeds creates a small set of demo orders in various stages of
// preparation so a fresh install has something to show on the kitchen board.
// The catalog cache is primed with the demo dishes so display enrichment
// works without a live catalog service.
func ApplyDemoSeeds(ctx context.Context, repos Repos, cat *catalog.Client, db *mongo.Database, logger apt.Logger) error {
	if db == nil {
		return errors.New("database is required for demo seeding")
	}

	demoSeeds := []seed.Seed{
		{
			ID:          "2026-08-15_demo_orders_v1",
			Description: "Create demo orders across preparation stages",
			Run: func(ctx context.Context) error {
				return seedDemoOrders(ctx, repos, cat, logger)
			},
		},
	}

	tracker := seed.NewMongoTracker(db)

	logger.Info("Applying demo order seeds")
	if err := seed.Apply(ctx, tracker, demoSeeds, demoSeedApplication); err != nil {
		return err
	}
	logger.Info("Demo order seeds applied successfully")
	return nil
}

func seedDemoOrders(ctx context.Context, repos Repos, cat *catalog.Client, logger apt.Logger) error {
	allTables, err := repos.TableRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	byLabel := make(map[string]*tables.Table, len(allTables))
	for _, table := range allTables {
		byLabel[table.Label] = table
	}

	now := time.Now()
	staffID := apt.GenerateNewID()

	// A fresh dine-in order, nothing started yet.
	if table, ok := byLabel["Window-1"]; ok {
		items := []demoItem{
			{name: "house burger", quantity: 2, prep: 12, status: ItemPending},
			{name: "caesar salad", quantity: 1, prep: 6, status: ItemPending},
		}
		if err := createDemoOrder(ctx, repos, cat, table, staffID, ServePartial, now.Add(-3*time.Minute), items, logger); err != nil {
			return fmt.Errorf("seed fresh order: %w", err)
		}
	}

	// An all-at-once order mid-preparation.
	if table, ok := byLabel["Center-2"]; ok {
		items := []demoItem{
			{name: "ribeye steak", quantity: 1, prep: 18, status: ItemPreparing, startedAgo: 10 * time.Minute},
			{name: "grilled salmon", quantity: 1, prep: 14, status: ItemReady, startedAgo: 12 * time.Minute, completedAgo: 2 * time.Minute},
			{name: "truffle fries", quantity: 2, prep: 8, status: ItemPreparing, startedAgo: 6 * time.Minute},
		}
		if err := createDemoOrder(ctx, repos, cat, table, staffID, ServeAllAtOnce, now.Add(-15*time.Minute), items, logger); err != nil {
			return fmt.Errorf("seed mid-prep order: %w", err)
		}
	}

	// A takeaway order with everything ready for pickup.
	items := []demoItem{
		{name: "margherita pizza", quantity: 1, prep: 10, status: ItemReady, startedAgo: 9 * time.Minute, completedAgo: time.Minute},
	}
	if err := createDemoOrder(ctx, repos, cat, nil, staffID, ServePartial, now.Add(-10*time.Minute), items, logger); err != nil {
		return fmt.Errorf("seed takeaway order: %w", err)
	}

	logger.Info("Demo orders created")
	return nil
}

type demoItem struct {
	name         string
	quantity     int
	prep         int
	status       ItemStatus
	startedAgo   time.Duration
	completedAgo time.Duration
}

func createDemoOrder(ctx context.Context, repos Repos, cat *catalog.Client, table *tables.Table, staffID uuid.UUID, policy ServePolicy, placedAt time.Time, items []demoItem, logger apt.Logger) error {
	now := time.Now()

	order := NewOrder()
	order.StaffID = staffID
	order.ServePolicy = policy
	order.CreatedAt = placedAt
	order.UpdatedAt = placedAt
	order.CreatedBy = "seed:demo"
	order.UpdatedBy = "seed:demo"

	if table != nil {
		tableID := table.ID
		order.TableID = &tableID
	} else {
		order.CustomerLabel = "Pickup - Sam"
	}

	created := make([]*OrderItem, 0, len(items))
	for _, di := range items {
		item := NewOrderItem()
		item.OrderID = order.ID
		item.MenuItemID = apt.GenerateNewID()
		item.Quantity = di.quantity
		item.Status = di.status
		item.CreatedAt = placedAt
		item.UpdatedAt = placedAt
		item.CreatedBy = "seed:demo"
		item.UpdatedBy = "seed:demo"

		if di.startedAgo > 0 {
			started := now.Add(-di.startedAgo)
			item.StartedAt = &started
		}
		if di.completedAgo > 0 {
			completed := now.Add(-di.completedAgo)
			item.CompletedAt = &completed
		}

		if cat != nil {
			cat.Set(catalog.MenuItemInfo{ID: item.MenuItemID, Name: di.name, PrepMinutes: di.prep})
		}

		created = append(created, item)
	}

	order.Status = DeriveOrderStatus(order.ServePolicy, created)

	if err := repos.OrderRepo.Create(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for _, item := range created {
		if err := repos.ItemRepo.Create(ctx, item); err != nil {
			return fmt.Errorf("create item: %w", err)
		}
	}

	if table != nil && order.Status != OrderCompleted && order.Status != OrderCancelled {
		if table.Free() {
			if err := table.Occupy(); err != nil {
				return fmt.Errorf("occupy table: %w", err)
			}
			table.UpdatedBy = "seed:demo"
			if err := repos.TableRepo.Save(ctx, table); err != nil {
				return fmt.Errorf("save table: %w", err)
			}
		}
	}

	logger.Info("Created demo order", "order_id", order.ID.String(), "status", string(order.Status))
	return nil
}

// DemoSeedingFunc returns a lifecycle OnStart-compatible function which
// applies demo seeds in the background.
func DemoSeedingFunc(seedCtx context.Context, repos Repos, cat *catalog.Client, db *mongo.Database, logger apt.Logger) func(ctx context.Context) error {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	return func(ctx context.Context) error {
		logger.Info("Starting demo seeding in background")
		go func() {
			if err := ApplyDemoSeeds(seedCtx, repos, cat, db, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("demo seeds failed: %v", err)
			}
		}()
		return nil
	}
}
