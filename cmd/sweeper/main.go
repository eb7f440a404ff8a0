package main

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lodgebook/internal/adapters/observability"
	"lodgebook/internal/shared"
	mysqlrepo "lodgebook/internal/storage/mysql"
)

// The sweeper is the housekeeping companion to cmd/api. Expiry is lazy on
// the read path, so nothing here is correctness-critical; this just keeps
// the holds table from accumulating dead rows and moves elapsed confirmed
// stays to completed.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.SweepWorkers).
		Dur("interval", cfg.SweepInterval).
		Msg("sweeper starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)

	for {
		sweep(ctx, repo, cfg.SweepWorkers)
		time.Sleep(cfg.SweepInterval)
	}
}

func sweep(ctx context.Context, repo *mysqlrepo.Repo, workers int) {
	now := time.Now().UTC()

	ids, err := repo.ListPropertyIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("list properties failed; skipping cycle")
		return
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for _, id := range ids {
		id := id

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(propertyID int64) {
			defer wg.Done()
			defer sem.Release(int64(1))

			n, err := repo.PurgeExpired(ctx, propertyID, now)
			if err != nil {
				log.Warn().Int64("property", propertyID).Err(err).Msg("purge failed")
				return
			}
			if n > 0 {
				observability.ObserveHoldsReclaimed(n)
				log.Info().Int64("property", propertyID).Int64("reclaimed", n).Msg("holds purged")
			}
		}(id)
	}

	wg.Wait()

	completed, err := repo.CompleteElapsed(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("complete elapsed stays failed")
		return
	}
	if completed > 0 {
		log.Info().Int64("completed", completed).Msg("elapsed stays closed out")
	}
}
