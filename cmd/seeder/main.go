// Command seeder loads sample roster data for local development.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		slog.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	seedFiles := []string{
		"seed/lessons.sql",
		"seed/clients.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			slog.Error("failed to read seed file", "file", file, "error", err)
			os.Exit(1)
		}

		if _, err := pool.Exec(ctx, string(content)); err != nil {
			slog.Error("failed to execute seed file", "file", file, "error", err)
			os.Exit(1)
		}

		slog.Info("seeded", "file", file)
	}

	slog.Info("database seeding completed")
}
