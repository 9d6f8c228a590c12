package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoke(t *testing.T, mw echo.MiddlewareFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	require.NoError(t, h(c))
	return rec
}

func TestRateLimitDisabledWithNilClient(t *testing.T) {
	rec := invoke(t, RateLimit(nil, 5, time.Minute))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabledWithZeroLimit(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rec := invoke(t, RateLimit(rdb, 0, time.Minute))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabledWithZeroWindow(t *testing.T) {
	// A zero window must disable the limiter, not divide by zero while
	// computing the window key.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rec := invoke(t, RateLimit(rdb, 5, 0))
	assert.Equal(t, http.StatusOK, rec.Code)
}
