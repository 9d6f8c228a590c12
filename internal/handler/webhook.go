package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/monitoring"
	"github.com/stagehall/boxoffice/internal/queue"
	"github.com/stagehall/boxoffice/internal/repository"
	"github.com/stagehall/boxoffice/internal/service"
)

// WebhookHandler receives payment provider callbacks. It does no
// processing of its own: it records a process-webhook job and returns
// 200 immediately, so provider retries are bounded by our queue's retry
// policy rather than by webhook redelivery.
type WebhookHandler struct {
	Payments *repository.PaymentRepo
	Jobs     *repository.JobRepo
	Notifier *queue.Notifier
	Log      *logrus.Entry
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(payments *repository.PaymentRepo, jobs *repository.JobRepo, notifier *queue.Notifier, log *logrus.Entry) *WebhookHandler {
	if payments == nil || jobs == nil {
		panic("nil repository passed to NewWebhookHandler")
	}
	return &WebhookHandler{Payments: payments, Jobs: jobs, Notifier: notifier, Log: log}
}

// Receive handles POST /v1/payments/webhook. The provider sends the
// transaction id as a form field. Unknown ids get a 200 as well: the
// provider must not keep retrying a delivery we will never be able to
// match, and the response must not leak which ids exist.
func (h *WebhookHandler) Receive(c echo.Context) error {
	providerTxID := c.FormValue("id")
	if providerTxID == "" {
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	p, err := h.Payments.GetByProviderTxID(ctx, providerTxID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			h.Log.WithField("provider_tx", providerTxID).Warn("webhook for unknown payment")
			monitoring.Webhooks.WithLabelValues("unknown").Inc()
			return c.NoContent(http.StatusOK)
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	payload, err := json.Marshal(service.ProcessWebhookPayload{PaymentID: p.ID})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "encode payload"})
	}
	// Webhooks outrank maintenance jobs; a customer is waiting on this one.
	jobID, err := h.Jobs.Enqueue(ctx, model.JobProcessWebhook, payload, 10)
	if err != nil {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enqueue failed"})
	}
	_ = h.Notifier.Publish(ctx, queue.JobEnqueuedEvent{JobID: jobID, Type: model.JobProcessWebhook})
	monitoring.Webhooks.WithLabelValues("enqueued").Inc()
	return c.NoContent(http.StatusOK)
}
