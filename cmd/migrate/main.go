// Command migrate applies schema migrations, seeds a demo restaurant and prints staff tokens for local use.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ms-tableside/internal/auth"
	"ms-tableside/internal/config"
	"ms-tableside/internal/database"
	"ms-tableside/internal/database/migrations"
	"ms-tableside/internal/logger"
	"ms-tableside/internal/models"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	to := flag.Uint("to", 0, "migrate to this version instead of the latest")
	seed := flag.Bool("seed", false, "insert a demo restaurant with tables and products")
	token := flag.String("token", "", "print a staff token for USER:RESTAURANT:ROLE and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewWithWriter(os.Stdout)

	if *token != "" {
		if err := printToken(cfg.Auth.JWTSecret, *token); err != nil {
			log.Fatal("TOKEN", err.Error())
		}
		return
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer db.Close()

	runner := migrations.NewRunner(db.DB, log)
	defer runner.Close()

	switch {
	case *down:
		err = runner.Down()
	case *to > 0:
		err = runner.To(*to)
	default:
		err = runner.Up()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	if *seed {
		if err := seedData(ctx, db); err != nil {
			log.Fatal("SEED", err.Error())
		}
		log.Info("SEED", "✅ Demo restaurant seeded")
	}
}

func printToken(secret, arg string) error {
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected USER:RESTAURANT:ROLE, got %q", arg)
	}
	caller := auth.Caller{UserID: parts[0], RestaurantID: parts[1], Role: auth.Role(parts[2])}
	if !caller.Role.Valid() {
		return fmt.Errorf("unknown role %q", parts[2])
	}
	signed, err := auth.IssueToken([]byte(secret), caller, 12*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}

func seedData(ctx context.Context, db *bun.DB) error {
	now := time.Now().UTC()
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		restaurant := models.Restaurant{ID: "rest001", Name: "Demo Bistro", Slug: "demo-bistro"}
		if _, err := tx.NewInsert().Model(&restaurant).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed restaurant: %w", err)
		}

		tables := []models.Table{
			{ID: "table001", RestaurantID: restaurant.ID, Name: "Table 1", Status: models.TableAvailable, CreatedAt: now, UpdatedAt: now},
			{ID: "table002", RestaurantID: restaurant.ID, Name: "Table 2", Status: models.TableAvailable, CreatedAt: now, UpdatedAt: now},
			{ID: "table003", RestaurantID: restaurant.ID, Name: "Terrace", Status: models.TableAvailable, CreatedAt: now, UpdatedAt: now},
		}
		if _, err := tx.NewInsert().Model(&tables).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed tables: %w", err)
		}

		products := []models.Product{
			{ID: "prod001", RestaurantID: restaurant.ID, Name: "Margherita", Price: 11.5, Available: true},
			{ID: "prod002", RestaurantID: restaurant.ID, Name: "Caesar Salad", Price: 9, Available: true},
			{ID: "prod003", RestaurantID: restaurant.ID, Name: "Lemonade", Price: 3.5, Available: true},
		}
		if _, err := tx.NewInsert().Model(&products).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		return nil
	})
}
