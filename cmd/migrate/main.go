package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/infra"
	"storefront/internal/migrations"
)

func main() {
	_ = godotenv.Load()

	var dbFlag string
	flag.StringVar(&dbFlag, "db", "", "database URL (defaults to DATABASE_URL)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [-db url] up|down|status")
	}
	flag.Parse()

	command := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	if command == "" {
		command = "up"
	}

	dbURL := strings.TrimSpace(dbFlag)
	if dbURL == "" {
		dbURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	logger := infra.Component(infra.NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL")), "migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := infra.OpenSQLDB(ctx, dbURL, 5, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database failed")
	}
	defer db.Close()

	switch command {
	case "up":
		err = migrations.Up(ctx, db)
	case "down":
		err = migrations.Down(ctx, db)
	case "status":
		err = migrations.Status(ctx, db)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", command).Msg("migration failed")
	}
	logger.Info().Str("command", command).Msg("migration finished")
}
