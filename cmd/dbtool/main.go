package main

import (
	"context"
	"database/sql"
	"itinerary-route-service/internal/adapters/repositories"
	"itinerary-route-service/internal/config"
	"itinerary-route-service/internal/platform/db"
	"itinerary-route-service/internal/platform/logger"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	zl, err := logger.NewLogger(config.Get("APP_ENV", "dev"), config.Get("LOG_LEVEL", ""))
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	ctx := logger.ContextWithLogger(context.Background(), zl)

	db, err := db.Open(ctx, databaseURL)
	if err != nil {
		zl.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	seedPath := config.Get("SEED_PATH", "data/seeds/candidates.json")
	planID := config.Get("SEED_PLAN_ID", "demo")
	if err := initAndSeed(ctx, db, planID, seedPath); err != nil {
		zl.Fatal("dbtool failed", zap.Error(err))
	}
}

func initAndSeed(ctx context.Context, db *sql.DB, planID, seedPath string) error {
	zl := logger.FromContext(ctx)

	zl.Info("initializing database schema")
	if err := repositories.InitSchema(ctx, db); err != nil {
		return err
	}
	zl.Info("schema ready")

	zl.Info("seeding candidates", zap.String("plan_id", planID), zap.String("path", seedPath))
	if err := repositories.SeedCandidates(ctx, db, planID, seedPath); err != nil {
		return err
	}
	zl.Info("seeding complete")

	return nil
}
