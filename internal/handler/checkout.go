package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/service"
)

// CheckoutHandler exposes the checkout entry point. All business rules
// live in the service; the handler only binds, translates errors to
// status codes and shapes the response.
type CheckoutHandler struct {
	Checkout *service.CheckoutService
}

// NewCheckoutHandler constructs a CheckoutHandler. The service must be
// non-nil.
func NewCheckoutHandler(svc *service.CheckoutService) *CheckoutHandler {
	if svc == nil {
		panic("nil service passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Checkout: svc}
}

type checkoutItemBody struct {
	PerformanceID      uint64 `json:"performance_id"`
	Quantity           int    `json:"quantity"`
	UnitPrice          string `json:"unit_price"`
	NeedsAccessibility bool   `json:"needs_accessibility"`
}

type checkoutBody struct {
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
	CouponCode    string             `json:"coupon_code"`
	Items         []checkoutItemBody `json:"items"`
}

// Create handles POST /v1/checkout. On success it returns 201 with the
// order's public id and a redirect URL: the provider checkout page, or
// the order status page when payment creation was deferred to the job
// queue.
func (h *CheckoutHandler) Create(c echo.Context) error {
	var body checkoutBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	in := service.CheckoutInput{
		CustomerName:  body.CustomerName,
		CustomerEmail: body.CustomerEmail,
		CouponCode:    body.CouponCode,
		Items:         make([]service.CheckoutItem, 0, len(body.Items)),
	}
	for _, it := range body.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid unit_price"})
		}
		in.Items = append(in.Items, service.CheckoutItem{
			PerformanceID:      it.PerformanceID,
			Quantity:           it.Quantity,
			UnitPrice:          price,
			NeedsAccessibility: it.NeedsAccessibility,
		})
	}

	result, err := h.Checkout.Checkout(c.Request().Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyCart),
			errors.Is(err, service.ErrInvalidEmail),
			errors.Is(err, service.ErrInvalidQuantity):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, repository.ErrPerformanceNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "performance not found"})
		case errors.Is(err, repository.ErrInsufficientSeats):
			return c.JSON(http.StatusConflict, echo.Map{"error": "not enough seats available"})
		case errors.Is(err, repository.ErrCouponNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown coupon code"})
		case errors.Is(err, repository.ErrCouponExhausted):
			return c.JSON(http.StatusConflict, echo.Map{"error": "coupon is exhausted"})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "checkout failed"})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"order_id":     result.OrderPublicID,
		"redirect_url": result.RedirectURL,
		"deferred":     result.Deferred,
	})
}
