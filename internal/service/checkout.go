package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/cache"
	"github.com/stagehall/boxoffice/internal/database"
	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/monitoring"
	"github.com/stagehall/boxoffice/internal/payment"
	"github.com/stagehall/boxoffice/internal/queue"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/utils"
)

// Validation errors surfaced directly to the caller; none of them is ever
// retried.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// CheckoutItem is one cart line as submitted by the client.
type CheckoutItem struct {
	PerformanceID      uint64
	Quantity           int
	UnitPrice          decimal.Decimal
	NeedsAccessibility bool
}

// CheckoutInput is everything the checkout entry point accepts.
type CheckoutInput struct {
	CustomerName  string
	CustomerEmail string
	CouponCode    string
	Items         []CheckoutItem
}

// CheckoutResult tells the handler where to send the customer. Deferred is
// true when payment creation was handed to the job queue and RedirectURL
// points at the order status page instead of the provider.
type CheckoutResult struct {
	OrderPublicID string
	RedirectURL   string
	Deferred      bool
}

// CheckoutService runs the checkout transaction: persist the order, claim
// seat counts under row locks, redeem the coupon, then create the payment
// at the provider. A provider failure is never a checkout failure; the
// reservation stands and a create-payment job takes over.
type CheckoutService struct {
	DB           *sql.DB
	Orders       *repository.OrderRepo
	Performances *repository.PerformanceRepo
	Payments     *repository.PaymentRepo
	Coupons      *repository.CouponRepo
	Jobs         *repository.JobRepo
	Validator    CouponValidator
	Provider     payment.Provider
	Notifier     *queue.Notifier
	Cache        *cache.Availability
	Tokens       *utils.OrderTokenSigner

	PublicBaseURL string
	Currency      string
	Log           *logrus.Entry
}

// Checkout processes one cart. On success it returns the provider checkout
// URL; when the provider is unreachable it returns the order status URL
// and queues payment creation instead.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if err := validateInput(in); err != nil {
		monitoring.Checkouts.WithLabelValues("rejected").Inc()
		return nil, err
	}

	subtotal := decimal.Zero
	quantities := make(map[uint64]int)
	for _, it := range in.Items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		quantities[it.PerformanceID] += it.Quantity
	}

	var couponID uint64
	discount := decimal.Zero
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		var err error
		couponID, discount, err = s.Validator.Validate(ctx, code, subtotal)
		if err != nil {
			monitoring.Checkouts.WithLabelValues("rejected").Inc()
			return nil, err
		}
	}
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	order := &model.Order{
		PublicID:      uuid.NewString(),
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		Total:         total,
		Currency:      s.Currency,
		Status:        model.OrderPending,
	}

	// One transaction establishes the whole inventory commitment: order,
	// line items, seat counts, coupon usage. Line items go in before the
	// performance locks are taken so the insert's foreign-key checks do
	// not extend the locked window.
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Orders.CreateTx(ctx, tx, order); err != nil {
			return err
		}
		items := make([]model.LineItem, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, model.LineItem{
				OrderID:            order.ID,
				PerformanceID:      it.PerformanceID,
				Quantity:           it.Quantity,
				UnitPrice:          it.UnitPrice,
				NeedsAccessibility: it.NeedsAccessibility,
			})
		}
		if err := s.Orders.CreateLineItemsTx(ctx, tx, items); err != nil {
			return err
		}
		if err := s.Performances.ReserveSeatsTx(ctx, tx, quantities); err != nil {
			return err
		}
		if couponID != 0 {
			if err := s.Coupons.RedeemTx(ctx, tx, couponID, order.ID, discount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientSeats) || errors.Is(err, repository.ErrPerformanceNotFound) ||
			errors.Is(err, repository.ErrCouponExhausted) {
			monitoring.Checkouts.WithLabelValues("rejected").Inc()
			return nil, err
		}
		monitoring.Checkouts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("checkout transaction: %w", err)
	}

	ids := make([]uint64, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	s.Cache.Invalidate(ctx, ids...)

	statusURL, err := s.orderStatusURL(order.PublicID)
	if err != nil {
		return nil, err
	}

	// The provider call happens outside the transaction; its own client
	// timeout bounds it. Any failure, including timeout, routes to the
	// job queue so the customer is not penalized for a provider outage.
	providerTx, err := s.Provider.CreatePayment(ctx, payment.CreateRequest{
		Amount:      total,
		Currency:    s.Currency,
		Description: fmt.Sprintf("Order %s", order.PublicID),
		RedirectURL: statusURL,
		WebhookURL:  s.PublicBaseURL + "/v1/payments/webhook",
	})
	if err != nil {
		s.Log.WithError(err).WithField("order", order.PublicID).
			Warn("payment creation failed, deferring to job queue")
		if err := s.enqueueCreatePayment(ctx, order, statusURL); err != nil {
			monitoring.Checkouts.WithLabelValues("error").Inc()
			return nil, err
		}
		monitoring.Checkouts.WithLabelValues("deferred").Inc()
		return &CheckoutResult{OrderPublicID: order.PublicID, RedirectURL: statusURL, Deferred: true}, nil
	}

	p := &model.Payment{
		OrderID:      order.ID,
		ProviderTxID: providerTx.ID,
		Amount:       total,
		Currency:     s.Currency,
		Status:       model.PaymentPending,
		RedirectURL:  providerTx.CheckoutURL,
	}
	if err := s.Payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	monitoring.Checkouts.WithLabelValues("paid_redirect").Inc()
	return &CheckoutResult{OrderPublicID: order.PublicID, RedirectURL: providerTx.CheckoutURL}, nil
}

func (s *CheckoutService) enqueueCreatePayment(ctx context.Context, order *model.Order, statusURL string) error {
	payload, err := json.Marshal(CreatePaymentPayload{
		OrderID:       order.ID,
		Amount:        order.Total.StringFixed(2),
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		Description:   fmt.Sprintf("Order %s", order.PublicID),
		RedirectURL:   statusURL,
		WebhookURL:    s.PublicBaseURL + "/v1/payments/webhook",
	})
	if err != nil {
		return err
	}
	jobID, err := s.Jobs.Enqueue(ctx, model.JobCreatePayment, payload, 0)
	if err != nil {
		return fmt.Errorf("enqueue create-payment: %w", err)
	}
	_ = s.Notifier.Publish(ctx, queue.JobEnqueuedEvent{JobID: jobID, Type: model.JobCreatePayment})
	return nil
}

func (s *CheckoutService) orderStatusURL(publicID string) (string, error) {
	token, err := s.Tokens.Sign(publicID)
	if err != nil {
		return "", fmt.Errorf("sign order token: %w", err)
	}
	return fmt.Sprintf("%s/v1/orders/%s?token=%s", s.PublicBaseURL, publicID, token), nil
}

func validateInput(in CheckoutInput) error {
	if len(in.Items) == 0 {
		return ErrEmptyCart
	}
	if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
		return ErrInvalidEmail
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 || it.PerformanceID == 0 || it.UnitPrice.IsNegative() {
			return ErrInvalidQuantity
		}
	}
	return nil
}
