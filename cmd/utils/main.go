package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/appetiteclub/apt"

	"github.com/expeditehq/expedite/cmd/utils/internal/commands"
)

const (
	appName    = "expedite-utils"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	config, err := apt.LoadConfig("UTILS", os.Args[2:])
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel, _ := config.GetString("log.level")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := apt.NewLogger(logLevel)

	ctx := context.Background()
	command := os.Args[1]

	switch command {
	case "clear-demo":
		if err := commands.ClearDemo(ctx, config, logger); err != nil {
			log.Fatalf("Clear demo data failed: %v", err)
		}
		logger.Info("Demo data cleared successfully")

	case "reset-db":
		if err := commands.ResetDB(ctx, config, logger); err != nil {
			log.Fatalf("Database reset failed: %v", err)
		}
		logger.Info("Database reset completed successfully")

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - Expedite utility commands

Usage:
  %s <command> [options]

Commands:
  clear-demo   Remove demo orders, items and audit records created by demo seeding
  reset-db     Drop the Expedite database - USE WITH CAUTION
  version      Print version information
  help         Show this help message

Environment Variables:
  UTILS_MONGO_URL    MongoDB connection URL (default: mongodb://localhost:27017)
  UTILS_MONGO_NAME   Database name (default: expedite)
  UTILS_LOG_LEVEL    Log level: debug, info, warn, error (default: info)

Examples:
  %s clear-demo
  UTILS_MONGO_URL=mongodb://localhost:27017 %s reset-db

`, appName, appName, appName, appName)
}
