// Package middleware holds the Echo middleware used by the API server.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimit returns a fixed-window per-IP limiter backed by Redis. Each
// request increments a counter keyed by client IP and window; the first
// increment sets the window's expiry. With a nil client the middleware is
// a no-op, matching the rest of the service's graceful degradation when
// Redis is down.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rdb == nil || limit <= 0 || window <= 0 {
				return next(c)
			}
			ctx := c.Request().Context()
			key := fmt.Sprintf("ratelimit:%s:%d", c.RealIP(), time.Now().Unix()/int64(window.Seconds()))
			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				// Redis trouble never blocks checkout traffic.
				return next(c)
			}
			if n == 1 {
				rdb.Expire(ctx, key, window)
			}
			if n > int64(limit) {
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}
