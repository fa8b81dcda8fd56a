package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultMongoURL = "mongodb://localhost:27017"
	defaultDBName   = "expedite"

	connectTimeout = 10 * time.Second
)

// BaseRepo owns the MongoDB connection shared by all repositories.
type BaseRepo struct {
	client *mongo.Client
	db     *mongo.Database
	logger apt.Logger
	config *apt.Config
}

func NewBaseRepo(config *apt.Config, logger apt.Logger) *BaseRepo {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &BaseRepo{
		logger: logger,
		config: config,
	}
}

func (r *BaseRepo) Start(ctx context.Context) error {
	connString := r.config.GetStringOrDef("db.mongo.url", defaultMongoURL)
	dbName := r.config.GetStringOrDef("db.mongo.name", defaultDBName)

	clientOptions := options.Client().ApplyURI(connString).
		SetConnectTimeout(connectTimeout).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.db = client.Database(dbName)

	r.logger.Infof("Connected to MongoDB: %s, database: %s", connString, dbName)
	return nil
}

func (r *BaseRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

// Ping verifies the connection is alive. Runs as a lifecycle start hook so
// the service refuses to serve when MongoDB dropped between connect and boot.
func (r *BaseRepo) Ping(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("mongodb connection not started")
	}
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *BaseRepo) GetDatabase() *mongo.Database {
	return r.db
}
