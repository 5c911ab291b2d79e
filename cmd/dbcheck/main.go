// Command dbcheck verifies the database connection and the presence of
// the four pipeline tables, printing their row counts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/dvloznov/cafe-etl/internal/config"
)

var tables = []string{"branches", "products", "transactions", "transaction_product"}

func main() {
	configPath := flag.String("config", "", "path to config.json")
	flag.Parse()
	_ = godotenv.Load()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Postgres.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to %s on %s:%s\n", cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port)

	for _, table := range tables {
		var exists bool
		err := db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table)
		if err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		if !exists {
			fmt.Printf("  %-20s MISSING (run cmd/migrate)\n", table)
			continue
		}
		var count int
		if err := db.GetContext(ctx, &count, fmt.Sprintf(`SELECT count(*) FROM %s`, table)); err != nil {
			log.Fatalf("Failed to count rows in %s: %v", table, err)
		}
		fmt.Printf("  %-20s %d rows\n", table, count)
	}
}
