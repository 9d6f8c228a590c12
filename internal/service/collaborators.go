// Package service implements the checkout and fulfillment business logic
// on top of the repositories. External concerns (email, ticket documents,
// coupon rules) are consumed through the narrow interfaces in this file so
// the core never grows a dependency on their implementations.
package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/seating"
)

// Mailer sends the order confirmation. Sending is best-effort: a failure
// is logged and never rolls back the fulfillment that triggered it.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *model.Order, tickets []model.Ticket) error
}

// TicketRenderer produces the printable document for one ticket.
type TicketRenderer interface {
	Render(ctx context.Context, ticket model.Ticket) ([]byte, error)
}

// CouponValidator resolves a coupon code against a cart subtotal. It
// returns the coupon id to redeem and the discount granted. Validation
// rules live behind this interface; only the release of a redemption on
// payment failure is part of the core.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (couponID uint64, discount decimal.Decimal, err error)
}

// LogMailer is the default Mailer: it records the confirmation in the log
// and succeeds. Deployments plug a real mail gateway in its place.
type LogMailer struct {
	Log *logrus.Entry
}

// SendOrderConfirmation implements Mailer.
func (m *LogMailer) SendOrderConfirmation(_ context.Context, order *model.Order, tickets []model.Ticket) error {
	m.Log.WithFields(logrus.Fields{
		"order":   order.PublicID,
		"email":   order.CustomerEmail,
		"tickets": len(tickets),
	}).Info("order confirmation")
	return nil
}

// TextTicketRenderer is the default TicketRenderer: a plain-text stub
// standing in for a real PDF pipeline.
type TextTicketRenderer struct{}

// Render implements TicketRenderer.
func (TextTicketRenderer) Render(_ context.Context, t model.Ticket) ([]byte, error) {
	doc := fmt.Sprintf("TICKET\nperformance: %d\nrow: %s seat: %d\naccessible: %t\n",
		t.PerformanceID, seating.RowLabel(t.Row), t.Seat, t.Accessible)
	return []byte(doc), nil
}

// PercentCouponValidator is the default CouponValidator backed by the
// coupons table: a code is valid when active and not exhausted, and grants
// its percentage of the subtotal.
type PercentCouponValidator struct {
	Coupons *repository.CouponRepo
}

// Validate implements CouponValidator.
func (v *PercentCouponValidator) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (uint64, decimal.Decimal, error) {
	coupon, err := v.Coupons.GetByCode(ctx, code)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if coupon.MaxUses > 0 && coupon.Uses >= coupon.MaxUses {
		return 0, decimal.Zero, repository.ErrCouponExhausted
	}
	discount := subtotal.Mul(coupon.DiscountPercent).Div(decimal.NewFromInt(100)).Round(2)
	return coupon.ID, discount, nil
}
