// Command server runs the public HTTP API: browsing, checkout, the order
// status page and the payment webhook endpoint. All slow work is handed
// to the job queue; the server itself never talks to the payment provider
// outside the checkout request path.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/cache"
	"github.com/stagehall/boxoffice/internal/config"
	"github.com/stagehall/boxoffice/internal/database"
	"github.com/stagehall/boxoffice/internal/handler"
	"github.com/stagehall/boxoffice/internal/payment"
	"github.com/stagehall/boxoffice/internal/queue"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/router"
	"github.com/stagehall/boxoffice/internal/service"
	"github.com/stagehall/boxoffice/internal/utils"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Env == "dev" {
		logger.SetFormatter(&logrus.TextFormatter{})
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("component", "server")

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg)
	if rdb == nil {
		log.Warn("redis unavailable, cache and rate limit disabled")
	}

	performances := repository.NewPerformanceRepo(db)
	orders := repository.NewOrderRepo(db)
	payments := repository.NewPaymentRepo(db)
	tickets := repository.NewTicketRepo(db)
	coupons := repository.NewCouponRepo(db)
	jobs := repository.NewJobRepo(db)

	notifier := queue.NewNotifier(cfg.AMQPURL, logger.WithField("component", "notifier"))
	provider := payment.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	tokens := utils.NewOrderTokenSigner(cfg.OrderTokenSecret, cfg.OrderTokenTTL)
	avail := cache.NewAvailability(rdb)

	checkout := &service.CheckoutService{
		DB:           db,
		Orders:       orders,
		Performances: performances,
		Payments:     payments,
		Coupons:      coupons,
		Jobs:         jobs,
		Validator:    &service.PercentCouponValidator{Coupons: coupons},
		Provider:     provider,
		Notifier:     notifier,
		Cache:        avail,
		Tokens:       tokens,

		PublicBaseURL: cfg.PublicBaseURL,
		Currency:      "EUR",
		Log:           logger.WithField("component", "checkout"),
	}

	e := echo.New()
	e.HideBanner = true

	rateLimit := 0
	if cfg.RateLimitEnabled {
		rateLimit = cfg.RateLimitMax
	}
	router.Register(e, router.Handlers{
		Checkout:     handler.NewCheckoutHandler(checkout),
		Webhook:      handler.NewWebhookHandler(payments, jobs, notifier, logger.WithField("component", "webhook")),
		Order:        handler.NewOrderHandler(orders, payments, tickets, tokens),
		Performance:  handler.NewPerformanceHandler(performances, tickets, avail),
		Redis:        rdb,
		RateLimit:    rateLimit,
		RateLimitWin: cfg.RateLimitWindow,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil {
			log.WithError(err).Info("http server stopped")
		}
	}()
	log.WithField("port", cfg.Port).Info("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
	log.Info("server stopped")
}
