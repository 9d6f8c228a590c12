package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/seating"
	"github.com/stagehall/boxoffice/internal/utils"
)

// OrderHandler serves the order status page the customer lands on after
// checkout. Access is gated by the signed token embedded in the redirect
// URL, not by an account.
type OrderHandler struct {
	Orders   *repository.OrderRepo
	Payments *repository.PaymentRepo
	Tickets  *repository.TicketRepo
	Tokens   *utils.OrderTokenSigner
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(orders *repository.OrderRepo, payments *repository.PaymentRepo, tickets *repository.TicketRepo, tokens *utils.OrderTokenSigner) *OrderHandler {
	if orders == nil || payments == nil || tickets == nil || tokens == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Orders: orders, Payments: payments, Tickets: tickets, Tokens: tokens}
}

type ticketView struct {
	PerformanceID uint64 `json:"performance_id"`
	Row           string `json:"row"`
	Seat          int    `json:"seat"`
	Accessible    bool   `json:"accessible"`
}

// Status handles GET /v1/orders/:id. The :id is the order's public id
// and the token query parameter must have been issued for exactly that
// order. A pending order whose payment carries a checkout URL includes
// it so the page can offer a retry link.
func (h *OrderHandler) Status(c echo.Context) error {
	publicID := c.Param("id")
	if err := h.Tokens.Verify(c.QueryParam("token"), publicID); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
	}

	ctx := c.Request().Context()
	order, err := h.Orders.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	resp := echo.Map{
		"order_id": order.PublicID,
		"status":   order.Status,
		"total":    order.Total.StringFixed(2),
		"currency": order.Currency,
	}

	switch order.Status {
	case model.OrderPaid:
		tickets, err := h.Tickets.ListByOrder(ctx, order.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		views := make([]ticketView, 0, len(tickets))
		for _, t := range tickets {
			views = append(views, ticketView{
				PerformanceID: t.PerformanceID,
				Row:           seating.RowLabel(t.Row),
				Seat:          t.Seat,
				Accessible:    t.Accessible,
			})
		}
		resp["tickets"] = views
	case model.OrderPending:
		if url, err := h.Payments.PendingCheckoutURL(ctx, order.ID); err == nil && url != "" {
			resp["checkout_url"] = url
		}
	}

	return c.JSON(http.StatusOK, resp)
}
