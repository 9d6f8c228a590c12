package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/payment"
	"github.com/stagehall/boxoffice/internal/repository"
)

// JobHandlers holds the executable side of every job type. The worker
// owns scheduling and retries; these methods only decode the payload and
// run the operation. Any returned error means the attempt failed and the
// worker decides whether to retry.
type JobHandlers struct {
	Orders      *repository.OrderRepo
	Payments    *repository.PaymentRepo
	Jobs        *repository.JobRepo
	Provider    payment.Provider
	Fulfillment *FulfillmentService
	Log         *logrus.Entry
}

// CreatePayment retries a payment creation that failed during checkout.
// Two guards keep it idempotent: the order must still be pending, and no
// pending payment row may already exist for it (an earlier attempt that
// crashed after the provider call but before our insert would otherwise
// double-charge).
func (h *JobHandlers) CreatePayment(ctx context.Context, raw json.RawMessage) error {
	var p CreatePaymentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode create-payment payload: %w", err)
	}

	order, err := h.Orders.GetByID(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderPending {
		h.Log.WithField("order", order.PublicID).Info("order no longer pending, skipping payment creation")
		return nil
	}
	pending, err := h.Payments.HasPending(ctx, order.ID)
	if err != nil {
		return err
	}
	if pending {
		return nil // earlier attempt already created one
	}

	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return fmt.Errorf("decode amount %q: %w", p.Amount, err)
	}
	providerTx, err := h.Provider.CreatePayment(ctx, payment.CreateRequest{
		Amount:      amount,
		Currency:    p.Currency,
		Description: p.Description,
		RedirectURL: p.RedirectURL,
		WebhookURL:  p.WebhookURL,
	})
	if err != nil {
		return fmt.Errorf("provider create payment: %w", err)
	}

	return h.Payments.Create(ctx, &model.Payment{
		OrderID:      order.ID,
		ProviderTxID: providerTx.ID,
		Amount:       amount,
		Currency:     p.Currency,
		Status:       model.PaymentPending,
		RedirectURL:  providerTx.CheckoutURL,
	})
}

// ProcessWebhook settles one payment callback.
func (h *JobHandlers) ProcessWebhook(ctx context.Context, raw json.RawMessage) error {
	var p ProcessWebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode process-webhook payload: %w", err)
	}
	return h.Fulfillment.ProcessPayment(ctx, p.PaymentID)
}

// CleanupOrphans releases orders stuck pending past the configured age.
func (h *JobHandlers) CleanupOrphans(ctx context.Context, raw json.RawMessage) error {
	var p CleanupOrphansPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode cleanup-orphans payload: %w", err)
	}
	if p.OlderThanHours <= 0 {
		return fmt.Errorf("cleanup-orphans: olderThanHours must be positive, got %d", p.OlderThanHours)
	}
	_, err := h.Fulfillment.CleanupOrphans(ctx, time.Duration(p.OlderThanHours)*time.Hour)
	return err
}

// PurgeJobs deletes terminal jobs past the retention window.
func (h *JobHandlers) PurgeJobs(ctx context.Context, raw json.RawMessage) error {
	var p PurgeJobsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode purge-jobs payload: %w", err)
	}
	if p.OlderThanDays <= 0 {
		return fmt.Errorf("purge-jobs: olderThanDays must be positive, got %d", p.OlderThanDays)
	}
	n, err := h.Jobs.PurgeTerminal(ctx, time.Now().UTC().AddDate(0, 0, -p.OlderThanDays))
	if err != nil {
		return err
	}
	if n > 0 {
		h.Log.WithField("purged", n).Info("terminal jobs purged")
	}
	return nil
}
