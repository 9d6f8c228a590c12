package service

// Job payload shapes, one per job type. They are persisted as JSON in the
// jobs table, so fields are only ever added, never renamed.

// CreatePaymentPayload retries payment creation after a provider failure
// during checkout.
type CreatePaymentPayload struct {
	OrderID       uint64 `json:"orderId"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customerEmail"`
	CustomerName  string `json:"customerName"`
	Description   string `json:"description"`
	RedirectURL   string `json:"redirectUrl"`
	WebhookURL    string `json:"webhookUrl"`
}

// ProcessWebhookPayload carries a webhook delivery from the HTTP entry
// point to the fulfillment handler.
type ProcessWebhookPayload struct {
	PaymentID uint64 `json:"paymentId"`
}

// CleanupOrphansPayload triggers a sweep of orders stuck pending longer
// than the given age.
type CleanupOrphansPayload struct {
	OlderThanHours int `json:"olderThanHours"`
}

// PurgeJobsPayload triggers the terminal-job retention sweep.
type PurgeJobsPayload struct {
	OlderThanDays int `json:"olderThanDays"`
}
