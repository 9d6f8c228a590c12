// Package router wires HTTP routes to their handlers.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stagehall/boxoffice/internal/handler"
	"github.com/stagehall/boxoffice/internal/middleware"
)

// Handlers collects every handler the API server mounts.
type Handlers struct {
	Checkout     *handler.CheckoutHandler
	Webhook      *handler.WebhookHandler
	Order        *handler.OrderHandler
	Performance  *handler.PerformanceHandler
	Redis        *redis.Client
	RateLimit    int
	RateLimitWin time.Duration
}

// Register mounts all routes on the given Echo instance. Checkout gets
// the rate limiter; the webhook does not, since the payment provider
// controls that traffic and must never be throttled into retry storms.
func Register(e *echo.Echo, h Handlers) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())

	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/performances", h.Performance.List)
	v1.GET("/performances/:id", h.Performance.Get)
	v1.GET("/performances/:id/seats", h.Performance.Availability)
	v1.GET("/performances/:id/chart", h.Performance.Chart)
	v1.GET("/orders/:id", h.Order.Status)
	v1.POST("/payments/webhook", h.Webhook.Receive)
	v1.POST("/checkout", h.Checkout.Create,
		middleware.RateLimit(h.Redis, h.RateLimit, h.RateLimitWin))
}
