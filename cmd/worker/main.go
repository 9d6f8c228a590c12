// Command worker drains the durable job queue: deferred payment
// creation, webhook processing, the orphaned-order sweep and job
// retention. It also exposes /healthz and /metrics on its own port.
// Several worker processes can run against the same database; the
// dequeue lease keeps them from stepping on each other.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/cache"
	"github.com/stagehall/boxoffice/internal/config"
	"github.com/stagehall/boxoffice/internal/database"
	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/payment"
	"github.com/stagehall/boxoffice/internal/queue"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/service"
	"github.com/stagehall/boxoffice/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Env == "dev" {
		logger.SetFormatter(&logrus.TextFormatter{})
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("component", "worker")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg)

	performances := repository.NewPerformanceRepo(db)
	orders := repository.NewOrderRepo(db)
	payments := repository.NewPaymentRepo(db)
	tickets := repository.NewTicketRepo(db)
	coupons := repository.NewCouponRepo(db)
	jobs := repository.NewJobRepo(db)

	provider := payment.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	notifier := queue.NewNotifier(cfg.AMQPURL, logger.WithField("component", "notifier"))

	fulfillment := &service.FulfillmentService{
		DB:           db,
		Orders:       orders,
		Performances: performances,
		Payments:     payments,
		Tickets:      tickets,
		Coupons:      coupons,
		Provider:     provider,
		Mailer:       &service.LogMailer{Log: logger.WithField("component", "mailer")},
		Renderer:     service.TextTicketRenderer{},
		Cache:        cache.NewAvailability(rdb),
		Log:          logger.WithField("component", "fulfillment"),
	}
	handlers := &service.JobHandlers{
		Orders:      orders,
		Payments:    payments,
		Jobs:        jobs,
		Provider:    provider,
		Fulfillment: fulfillment,
		Log:         logger.WithField("component", "jobs"),
	}

	table, err := worker.Handlers(
		handlers.CreatePayment,
		handlers.ProcessWebhook,
		handlers.CleanupOrphans,
		handlers.PurgeJobs,
	)
	if err != nil {
		log.WithError(err).Fatal("handler table")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wake := make(chan struct{}, 1)
	go notifier.Listen(ctx, wake)

	w := worker.New(jobs, table, worker.Options{
		PollInterval:    cfg.PollInterval,
		MaxIdleInterval: cfg.MaxIdleInterval,
		BatchSize:       cfg.BatchSize,
		MaxAttempts:     cfg.MaxAttempts,
		RetryBase:       cfg.RetryBase,
		RetryCap:        cfg.RetryCap,
		JobTimeout:      cfg.JobTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Wake:            wake,
	}, log)

	go scheduleMaintenance(ctx, cfg, jobs, log)

	// Health and metrics on the worker's own port.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutdown signal received")
		cancel()
	}()

	_ = w.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// scheduleMaintenance enqueues the periodic sweeps. Enqueueing is
// idempotent enough for this purpose: an extra cleanup-orphans run is a
// no-op, and multiple workers racing to enqueue only cost a few redundant
// jobs.
func scheduleMaintenance(ctx context.Context, cfg config.Config, jobs *repository.JobRepo, log *logrus.Entry) {
	enqueue := func() {
		cleanup, err := json.Marshal(service.CleanupOrphansPayload{
			OlderThanHours: int(cfg.OrphanAge.Hours()),
		})
		if err == nil {
			if _, err := jobs.Enqueue(ctx, model.JobCleanupOrphans, cleanup, 0); err != nil {
				log.WithError(err).Error("enqueue cleanup-orphans")
			}
		}
		purge, err := json.Marshal(service.PurgeJobsPayload{
			OlderThanDays: int(cfg.JobRetention.Hours() / 24),
		})
		if err == nil {
			if _, err := jobs.Enqueue(ctx, model.JobPurgeJobs, purge, 0); err != nil {
				log.WithError(err).Error("enqueue purge-jobs")
			}
		}
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	enqueue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}
