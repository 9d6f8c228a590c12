package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/stagehall/boxoffice/internal/cache"
	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/seating"
)

// PerformanceHandler serves the public browse endpoints: listing
// performances, per-performance availability and the occupancy chart.
// Availability reads go through the Redis cache; everything else hits the
// database directly.
type PerformanceHandler struct {
	Performances *repository.PerformanceRepo
	Tickets      *repository.TicketRepo
	Cache        *cache.Availability
}

// NewPerformanceHandler constructs a PerformanceHandler. The cache may be
// nil-backed; repositories must be non-nil.
func NewPerformanceHandler(performances *repository.PerformanceRepo, tickets *repository.TicketRepo, avail *cache.Availability) *PerformanceHandler {
	if performances == nil || tickets == nil {
		panic("nil repository passed to NewPerformanceHandler")
	}
	return &PerformanceHandler{Performances: performances, Tickets: tickets, Cache: avail}
}

type performanceView struct {
	ID             uint64 `json:"id"`
	Title          string `json:"title"`
	StartsAt       string `json:"starts_at"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
	Status         string `json:"status"`
}

// List handles GET /v1/performances and returns every bookable
// performance ordered by start time.
func (h *PerformanceHandler) List(c echo.Context) error {
	perfs, err := h.Performances.ListPublished(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	views := make([]performanceView, 0, len(perfs))
	for _, p := range perfs {
		views = append(views, performanceView{
			ID:             p.ID,
			Title:          p.Title,
			StartsAt:       p.StartsAt.Format("2006-01-02T15:04:05Z07:00"),
			TotalSeats:     p.TotalSeats,
			AvailableSeats: p.AvailableSeats,
			Status:         p.Status,
		})
	}
	return c.JSON(http.StatusOK, views)
}

// Get handles GET /v1/performances/:id and returns one bookable
// performance.
func (h *PerformanceHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid performance id"})
	}
	p, err := h.Performances.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrPerformanceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if p.Status != model.PerformancePublished && p.Status != model.PerformanceSoldOut {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
	}
	return c.JSON(http.StatusOK, performanceView{
		ID:             p.ID,
		Title:          p.Title,
		StartsAt:       p.StartsAt.Format("2006-01-02T15:04:05Z07:00"),
		TotalSeats:     p.TotalSeats,
		AvailableSeats: p.AvailableSeats,
		Status:         p.Status,
	})
}

// Availability handles GET /v1/performances/:id/seats. The count comes
// from the cache when fresh; a miss reads the row and repopulates it.
func (h *PerformanceHandler) Availability(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid performance id"})
	}
	ctx := c.Request().Context()

	if available, ok := h.Cache.Get(ctx, id); ok {
		return c.JSON(http.StatusOK, echo.Map{"performance_id": id, "available_seats": available})
	}

	p, err := h.Performances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPerformanceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if p.Status != model.PerformancePublished && p.Status != model.PerformanceSoldOut {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
	}
	h.Cache.Set(ctx, id, p.AvailableSeats)
	return c.JSON(http.StatusOK, echo.Map{"performance_id": id, "available_seats": p.AvailableSeats})
}

// Chart handles GET /v1/performances/:id/chart and renders the current
// occupancy grid as plain text. Intended for operators eyeballing seat
// distribution, not for end users.
func (h *PerformanceHandler) Chart(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid performance id"})
	}
	ctx := c.Request().Context()

	p, err := h.Performances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPerformanceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	occupied, err := h.Tickets.Occupied(ctx, id)
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.String(http.StatusOK, seating.Chart(occupied, p.Rows, p.SeatsPerRow))
}
