package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simba/internal/auth"
	correctionhandler "simba/internal/correction/handler"
	"simba/internal/correction/metrics"
	"simba/internal/correction/ports"
	"simba/internal/correction/quota"
	correctionservice "simba/internal/correction/service"
	"simba/internal/correction/store/access"
	"simba/internal/correction/store/address"
	"simba/internal/correction/store/providerconfig"
	"simba/internal/correction/store/providerresult"
	"simba/internal/notify"
	"simba/internal/platform/config"
	"simba/internal/platform/httpserver"
	"simba/internal/platform/kafka"
	"simba/internal/platform/logger"
	"simba/internal/platform/postgres"
	"simba/internal/platform/redis"
	"simba/internal/providers"
	trackerhandler "simba/internal/tracker/handler"
	trackerservice "simba/internal/tracker/service"
	trackerstore "simba/internal/tracker/store"
)

const notifyInboxCapacity = 1024

// main wires the dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var ledger ports.QuotaLedger
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		ledger = quota.NewRedisLedger(redisClient.Client, quota.WithLogger(log))
	} else {
		log.Warn("redis not configured, quota ledger runs in memory")
		ledger = quota.NewInMemory()
	}

	// Kafka backs both the notification fan-out and the output delivery.
	// Without brokers the process still serves traffic; deliveries queue up
	// for the reprocessing sweep of a configured instance.
	var (
		sink   notify.Sink
		sender trackerservice.Sender
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		for _, topic := range []string{cfg.Kafka.Topic, cfg.Kafka.SendTopic} {
			if err := producer.EnsureTopic(ctx, topic, 3, 1); err != nil {
				log.Error("ensure kafka topic", "topic", topic, "error", err)
				os.Exit(1)
			}
		}
		sink = producer
		sender = trackerservice.NewKafkaSender(producer, cfg.Kafka.SendTopic)
	} else {
		log.Warn("kafka not configured, notifications and deliveries stay in memory")
		sink = notify.NewMemorySink()
		sender = trackerservice.NewMemorySender()
	}

	dispatcher := notify.NewDispatcher(notifyInboxCapacity, notify.WithLogger(log))
	worker := notify.NewWorker(sink, cfg.Kafka.Topic, dispatcher.Inbox(), log)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("notification worker stopped", "error", err)
		}
	}()

	addresses := address.NewPostgres(db)
	configs := providerconfig.NewPostgres(db)
	results := providerresult.NewPostgres(db)
	accessLog := access.NewPostgres(db)
	requests := trackerstore.NewPostgres(db)

	m := metrics.New()
	registry := providers.NewRegistry(cfg.Providers)

	corrections := correctionservice.New(
		addresses, configs, results, accessLog, ledger, registry, dispatcher,
		correctionservice.WithLogger(log),
		correctionservice.WithMetrics(m),
		correctionservice.WithCallTimeout(cfg.Providers.CallTimeout),
	)
	tracker := trackerservice.New(requests, addresses, sender,
		trackerservice.WithLogger(log),
		trackerservice.WithSweepLimit(cfg.Tracker.SweepLimit),
	)

	go runSweep(ctx, log, tracker, cfg.Tracker.SweepInterval)

	verifier := auth.NewVerifier(cfg.Server.JWTSigningKey)

	router := chi.NewRouter()
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(verifier.Middleware)
		correctionhandler.New(corrections, log).Register(r)
		trackerhandler.New(tracker, log).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// runSweep runs the tracker maintenance pass on a fixed cadence.
func runSweep(ctx context.Context, log *slog.Logger, tracker *trackerservice.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := tracker.ReprocessSweep(ctx)
			if err != nil {
				log.Error("reprocess sweep failed", "error", err)
				continue
			}
			if report.Generated+report.Sent+report.Failed > 0 || len(report.Untracked) > 0 {
				log.Info("reprocess sweep",
					"generated", report.Generated, "sent", report.Sent,
					"failed", report.Failed, "untracked", len(report.Untracked))
			}
		}
	}
}
