package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dinartha/gadai-backend/internal/config"
	"github.com/dinartha/gadai-backend/internal/repository/postgres"
	"github.com/dinartha/gadai-backend/internal/service"
)

// Run-once overdue accrual job, intended for cron. Exits non-zero when the
// run cannot start; per-loan failures are logged and retried next run.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	asOfFlag := flag.String("as-of", "", "run date in YYYY-MM-DD format (default: today)")
	flag.Parse()

	asOf := time.Now().UTC()
	if *asOfFlag != "" {
		parsed, err := time.Parse("2006-01-02", *asOfFlag)
		if err != nil {
			log.Fatal().Err(err).Str("as_of", *asOfFlag).Msg("Invalid -as-of date")
		}
		asOf = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}

	store := postgres.NewLedgerStore(pool)
	accrualService := service.NewAccrualService(store, log.Logger, service.AccrualConfig{
		EscalationGraceDays: cfg.Accrual.EscalationGraceDays,
	})

	result, err := accrualService.RunOnce(context.Background(), asOf)
	if err != nil {
		log.Fatal().Err(err).Msg("Accrual run failed")
	}

	log.Info().
		Time("run_date", result.RunDate).
		Int("loans_processed", result.LoansProcessed).
		Int("items_marked_overdue", result.ItemsMarkedOverdue).
		Int64("penalty_accrued", result.PenaltyAccrued).
		Int("loans_escalated", result.LoansEscalated).
		Int("loans_failed", result.LoansFailed).
		Msg("Accrual run complete")

	if result.LoansFailed > 0 {
		os.Exit(1)
	}
}
