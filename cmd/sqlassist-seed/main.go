package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sqlassist/sqlassist/internal/config"
	"github.com/sqlassist/sqlassist/internal/database"
	"github.com/sqlassist/sqlassist/internal/demo"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlassist-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver != "sqlite" {
		fmt.Fprintln(os.Stderr, "SQLASSIST_DB_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	applied, err := demo.NewSeeder().Apply(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("applied %d seed script(s) to %s\n", applied, cfg.Database.Driver)
}
