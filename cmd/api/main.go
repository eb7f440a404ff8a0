package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	amqpad "lodgebook/internal/adapters/amqp"
	server "lodgebook/internal/adapters/http_server"
	"lodgebook/internal/adapters/observability"
	redisad "lodgebook/internal/adapters/redis"
	"lodgebook/internal/app"
	"lodgebook/internal/shared"
	mysqlrepo "lodgebook/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	events, err := amqpad.New(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("amqp connect failed")
	}
	defer events.Close()

	avail := app.NewAvailabilityService(repo, repo)
	booking := app.NewBookingService(repo, repo, repo, avail, events)
	holds := app.NewHoldService(repo, repo, avail, cfg.HoldTTL)
	q := app.NewQueryService(repo, repo, avail, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, Booking: booking, Holds: holds, BookingRPS: cfg.BookingRPS})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
