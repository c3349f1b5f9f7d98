package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/payapp-backend/internal/config"
	"github.com/dmehra2102/payapp-backend/internal/payment/application"
	payhttp "github.com/dmehra2102/payapp-backend/internal/payment/infrastructure/http"
	paykafka "github.com/dmehra2102/payapp-backend/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/payapp-backend/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/payapp-backend/internal/payment/infrastructure/payapp"
	paypg "github.com/dmehra2102/payapp-backend/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/payapp-backend/pkg/idempotency"
	"github.com/dmehra2102/payapp-backend/pkg/logging"
	"github.com/dmehra2102/payapp-backend/pkg/outbox"
	"github.com/dmehra2102/payapp-backend/pkg/shutdown"
	"github.com/dmehra2102/payapp-backend/pkg/tracing"
)

type repositories interface {
	application.OrderRepository
	application.SubscriptionRepository
}

func main() {
	cfg, err := config.Load()
	log := logging.New(cfg.LogLevel)
	if err != nil {
		log.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "payapp-service", cfg.TracingURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Storage
	var (
		repo        repositories
		outboxStore outbox.Store
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		store := memory.NewStore(log)
		repo, outboxStore = store, store
		log.Warn("using in-memory storage, records are lost on restart")
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := paypg.Migrate(ctx, pool); err != nil {
			log.Error("pg migrate failed", "err", err)
			os.Exit(1)
		}
		repo = paypg.NewRepository(log, pool)
		outboxStore = paypg.NewOutboxStore(log, pool)
	}

	// Callback dedupe
	var dedupe application.Deduper
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, callback dedupe relies on the store only", "addr", cfg.RedisAddr, "err", err)
		}
		dedupe = idempotency.NewStore(rdb, cfg.DedupeTTL)
	}

	// Outbox relay
	if len(cfg.KafkaBrokers) > 0 {
		writer := paykafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()

		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, outboxStore, dispatch, "payapp-service-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	} else {
		log.Info("KAFKA_ADDR not set, outbox events stay unpublished")
	}

	gateway := payapp.NewClient(log, cfg.Merchant)
	svc := application.NewService(log, gateway, repo, repo)
	callbacks := application.NewDispatcher(log, application.Credentials{
		UserID:  cfg.Merchant.UserID,
		LinkKey: cfg.Merchant.LinkKey,
		LinkVal: cfg.Merchant.LinkVal,
	}, repo, repo, dedupe)
	handler := payhttp.NewHandler(log, svc, callbacks, cfg.CallbackFailBody)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           payhttp.NewRouter(log, handler, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Merchant.Timeout + 10*time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("payapp-service shutdown complete")
}
