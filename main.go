package main

import (
	"context"
	"embed"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"

	"github.com/expeditehq/expedite/internal/audit"
	"github.com/expeditehq/expedite/internal/authz"
	"github.com/expeditehq/expedite/internal/catalog"
	"github.com/expeditehq/expedite/internal/fulfillment"
	"github.com/expeditehq/expedite/internal/kds"
	"github.com/expeditehq/expedite/internal/mongo"
	"github.com/expeditehq/expedite/internal/tables"
	"github.com/expeditehq/expedite/pkg"
)

const (
	appNamespace = "EXPEDITE"
	appName      = "expedite"
	appVersion   = "0.1.0"
)

//go:embed seed.json
var seedFS embed.FS

func main() {
	config, err := apt.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	seedCtx, cancelSeeds := context.WithCancel(ctx)
	defer cancelSeeds()

	baseRepo := mongo.NewBaseRepo(config, logger)
	err = baseRepo.Start(ctx)
	if err != nil {
		log.Fatalf("%s(%s) cannot start base repository: %v", appName, appVersion, err)
	}

	db := baseRepo.GetDatabase()
	if db == nil {
		log.Fatalf("%s(%s) cannot initialize repository database: %v", appName, appVersion, errors.New("repository database is nil"))
	}

	orderRepo := mongo.NewOrderRepo(db)
	orderItemRepo := mongo.NewOrderItemRepo(db)
	tableRepo := mongo.NewTableRepo(db)
	eventRepo := mongo.NewEventRepo(db)

	if err := orderRepo.EnsureIndexes(ctx); err != nil {
		logger.Error("cannot ensure order indexes", "error", err)
	}
	if err := orderItemRepo.EnsureIndexes(ctx); err != nil {
		logger.Error("cannot ensure order item indexes", "error", err)
	}
	if err := eventRepo.EnsureIndexes(ctx); err != nil {
		logger.Error("cannot ensure audit event indexes", "error", err)
	}

	natsURL := config.GetStringOrDef("nats.url", "nats://localhost:4222")

	pub, err := pkg.NewNATSPublisher(natsURL)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS publisher: %v", appName, appVersion, err)
	}

	sub, err := pkg.NewNATSSubscriber(natsURL)
	if err != nil {
		log.Fatalf("%s(%s) cannot connect to NATS subscriber: %v", appName, appVersion, err)
	}

	// Persistent stream retaining order events so the kitchen board can
	// replay them after a restart. Optional: without it the board warms
	// from storage.
	stream, err := pkg.NewNATSStream(pkg.NATSStreamConfig{
		URL:          natsURL,
		StreamName:   "EXPEDITE_ORDERS",
		Topic:        "orders.>",
		ConsumerName: "expedite-board",
		MaxAge:       24 * time.Hour,
	})
	if err != nil {
		logger.Error("cannot set up JetStream, board cache will warm from storage", "error", err)
		stream = nil
	}

	catalogURL, _ := config.GetString("services.catalog.url")
	catalogClient := catalog.NewClient(apt.NewServiceClient(catalogURL), logger)

	authzURL, _ := config.GetString("services.authz.url")
	authzClient := authz.NewClient(apt.NewServiceClient(authzURL), logger)

	recorder := audit.NewRecorder(eventRepo, pub, logger)

	service := fulfillment.NewService(fulfillment.ServiceDeps{
		OrderRepo:  orderRepo,
		ItemRepo:   orderItemRepo,
		TableRepo:  tableRepo,
		Recorder:   recorder,
		Publisher:  pub,
		Authorizer: authzClient,
		Catalog:    catalogClient,
	}, logger)

	fulfillmentHandler := fulfillment.NewHandler(fulfillment.HandlerDeps{
		Service:   service,
		OrderRepo: orderRepo,
		ItemRepo:  orderItemRepo,
	}, config, logger)

	tablesHandler := tables.NewHandler(tableRepo, logger)
	auditHandler := audit.NewHandler(eventRepo, logger)

	// Kitchen display: cache, view builder, SSE push.
	boardCache := kds.NewBoardCache(streamConsumer(stream), orderRepo, orderItemRepo, tableRepo, catalogClient, logger)
	broadcaster := kds.NewBroadcaster(logger)
	boardCache.OnChange(broadcaster.Notify)

	viewBuilder := kds.NewBuilder(boardCache)
	sseHandler := kds.NewSSEHandler(broadcaster, viewBuilder, logger)
	kdsHandler := kds.NewHandler(viewBuilder, sseHandler, logger)
	boardSub := kds.NewBoardSubscriber(sub, boardCache, logger)

	publisherLifecycle := apt.LifecycleHooks{
		OnStop: func(context.Context) error {
			return pub.Close()
		},
	}

	subLifecycle := apt.LifecycleHooks{
		OnStop: func(context.Context) error {
			broadcaster.Stop()
			return sub.Close()
		},
	}

	authzLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			return authzClient.Subscribe(ctx, sub)
		},
	}

	// Frees tables whose orders all closed but whose release save was lost,
	// e.g. after a crash between the order update and the table update.
	reconcileLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := service.ReconcileTables(ctx); err != nil {
				logger.Error("cannot reconcile tables", "error", err)
			}
			return nil
		},
	}

	lifecycles := []interface{}{
		apt.LifecycleHooks{OnStart: baseRepo.Ping, OnStop: baseRepo.Stop},
		reconcileLifecycle,
		boardSub,
		authzLifecycle,
		publisherLifecycle,
		subLifecycle,
	}

	if stream != nil {
		lifecycles = append(lifecycles, apt.LifecycleHooks{
			OnStop: func(context.Context) error {
				return stream.Close()
			},
		})
	}

	if enabled, _ := config.GetString("seeding.tables"); enabled == "true" {
		logger.Info("Table seeding enabled")
		lifecycles = append(lifecycles, apt.LifecycleHooks{
			OnStart: tables.SeedingFunc(seedCtx, tableRepo, db, seedFS, logger),
			OnStop:  tables.StopFunc(cancelSeeds),
		})
	}

	if enabled, _ := config.GetString("seeding.demo"); enabled == "true" {
		logger.Info("Demo seeding enabled")
		repos := fulfillment.Repos{
			OrderRepo: orderRepo,
			ItemRepo:  orderItemRepo,
			TableRepo: tableRepo,
		}
		lifecycles = append(lifecycles, apt.LifecycleHooks{
			OnStart: fulfillment.DemoSeedingFunc(seedCtx, repos, catalogClient, db, logger),
			OnStop: func(context.Context) error {
				cancelSeeds()
				return nil
			},
		})
	}

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: true, // Internal API service
	})
	stack = append(stack, middleware.InternalOnly())

	options := []apt.Option{
		apt.WithConfig(config),
		apt.WithLogger(logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", fulfillmentHandler, tablesHandler, auditHandler, kdsHandler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(appName),
	}

	ms := apt.NewMicro(options...)
	logger.Infof("Starting %s(%s)", appName, appVersion)

	err = ms.Run(ctx)
	if err != nil {
		_ = baseRepo.Stop(context.Background())
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

// streamConsumer avoids handing a typed-nil interface to the board cache.
func streamConsumer(stream *pkg.NATSStream) events.StreamConsumer {
	if stream == nil {
		return nil
	}
	return stream
}
