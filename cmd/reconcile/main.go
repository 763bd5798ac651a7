// Package main runs one offline reconciliation pass: stale PENDING intents
// in the ledger are resolved against a JSON authority file mapping intent
// ids to EXECUTED or FAILED (absent ids mean the order never reached the
// venue). Prints a report and exits non-zero when discrepancies remain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ramp-guard/internal/ledger"
	"ramp-guard/internal/storage/migrations"
	pgstore "ramp-guard/internal/storage/postgres"
)

func main() {
	dsn := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	authorityFile := flag.String("authority-file", "", "JSON file with authoritative intent outcomes")
	threshold := flag.Duration("recovery-threshold", 5*time.Minute, "Pending intents older than this are reconciled")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *dsn == "" {
		logger.Fatal().Msg("--postgres-dsn is required")
	}
	if *authorityFile == "" {
		logger.Fatal().Msg("--authority-file is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to postgres")
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	led := ledger.New(ledger.Options{
		Store:             pgstore.NewOrderIntentStore(pool),
		Authority:         ledger.NewFileAuthority(*authorityFile),
		RecoveryThreshold: *threshold,
		Logger:            logger,
	})

	report, err := led.RecoverOnStartup(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciliation failed")
	}

	fmt.Printf("scanned:       %d\n", report.Scanned)
	fmt.Printf("executed:      %d\n", report.Executed)
	fmt.Printf("failed:        %d\n", report.Failed)
	fmt.Printf("abandoned:     %d\n", report.Abandoned)
	fmt.Printf("discrepancies: %d\n", report.Discrepancies)

	if report.Discrepancies > 0 {
		fmt.Println("discrepancies found: promotions must stay frozen until resolved")
		os.Exit(1)
	}
}
