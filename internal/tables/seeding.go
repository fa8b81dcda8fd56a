package tables

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"go.mongodb.org/mongo-driver/mongo"
)

const tableSeedApplication = "expedite_tables"

type bootstrapSeedDocument struct {
	Tables []tableSeed `json:"tables"`
}

type tableSeed struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

func loadTableSeeds(seedFS embed.FS) ([]tableSeed, error) {
	seedBytes, err := seedFS.ReadFile("seed.json")
	if err != nil {
		return nil, fmt.Errorf("read seed.json: %w", err)
	}

	if len(seedBytes) == 0 {
		return nil, errors.New("table seed file is empty")
	}

	var doc bootstrapSeedDocument
	if err := json.Unmarshal(seedBytes, &doc); err != nil {
		return nil, fmt.Errorf("decode table seed file: %w", err)
	}

	if len(doc.Tables) == 0 {
		return nil, errors.New("table seed file does not contain tables")
	}

	return doc.Tables, nil
}

// ApplyTableSeeds ensures all predefined tables exist.
func ApplyTableSeeds(ctx context.Context, repo TableRepo, db *mongo.Database, seedFS embed.FS, logger apt.Logger) error {
	if repo == nil {
		return errors.New("table repository is required")
	}
	if db == nil {
		return errors.New("database is required for table seeding")
	}

	seedDocs, err := loadTableSeeds(seedFS)
	if err != nil {
		return err
	}

	seedDefs := buildTableSeedDefinitions(seedDocs, repo, logger)
	if len(seedDefs) == 0 {
		logger.Info("No table seeds to apply")
		return nil
	}

	tracker := seed.NewMongoTracker(db)

	logger.Info("Applying table seeds")
	if err := seed.Apply(ctx, tracker, seedDefs, tableSeedApplication); err != nil {
		return err
	}
	logger.Info("Table seeds applied successfully")
	return nil
}

func buildTableSeedDefinitions(raw []tableSeed, repo TableRepo, logger apt.Logger) []seed.Seed {
	var defs []seed.Seed

	for _, s := range raw {
		seedData := s
		if strings.TrimSpace(seedData.Label) == "" {
			logger.Info("Skipping seed table with empty label")
			continue
		}

		seedID := fmt.Sprintf("2026-08-15_table_%s", seedIdentifier(seedData.Label))
		description := fmt.Sprintf("Ensure table %s exists", seedData.Label)

		defs = append(defs, seed.Seed{
			ID:          seedID,
			Description: description,
			Run: func(ctx context.Context) error {
				return seedData.ensureTable(ctx, repo, logger)
			},
		})
	}

	return defs
}

func seedIdentifier(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}

	replacer := strings.NewReplacer("-", "_", " ", "_", "/", "_", "\\", "_")
	value = replacer.Replace(value)

	var builder strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			builder.WriteRune(r)
		}
	}

	result := builder.String()
	if result == "" {
		return "seed"
	}
	return result
}

func (s tableSeed) ensureTable(ctx context.Context, repo TableRepo, logger apt.Logger) error {
	label := strings.TrimSpace(s.Label)
	if label == "" {
		return errors.New("table label is required")
	}

	status := s.Status
	if status == "" {
		status = StatusFree
	}

	existing, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list existing tables: %w", err)
	}

	for _, table := range existing {
		if table.Label == label {
			logger.Info("Seed table already exists", "label", label)
			return nil
		}
	}

	table := NewTable()
	table.Label = label
	table.Status = status
	table.CreatedBy = "seed:bootstrap"
	table.UpdatedBy = "seed:bootstrap"
	table.BeforeCreate()

	if err := repo.Create(ctx, table); err != nil {
		return fmt.Errorf("create seed table %s: %w", label, err)
	}

	logger.Info("Seed table created", "label", label, "id", table.ID.String())
	return nil
}

// StopFunc returns a lifecycle OnStop-compatible function which cancels any
// background seeding goroutine.
func StopFunc(cancelFunc context.CancelFunc) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if cancelFunc != nil {
			cancelFunc()
		}
		return nil
	}
}

// SeedingFunc returns a lifecycle OnStart-compatible function which applies
// table seeds in the background.
func SeedingFunc(seedCtx context.Context, repo TableRepo, db *mongo.Database, seedFS embed.FS, logger apt.Logger) func(ctx context.Context) error {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	return func(ctx context.Context) error {
		logger.Info("Starting table seeding in background")
		go func() {
			if err := ApplyTableSeeds(seedCtx, repo, db, seedFS, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("table seeds failed: %v", err)
			} else if err == nil {
				logger.Info("Table seeding completed")
			}
		}()
		return nil
	}
}
