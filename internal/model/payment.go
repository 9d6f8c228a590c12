package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment status values. SUCCEEDED, FAILED and CANCELLED are terminal; no
// transition out of a terminal state is ever valid. Duplicate webhook
// deliveries rely on this to short-circuit.
const (
	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
	PaymentCancelled = "CANCELLED"
)

// Payment is one attempt to collect money for an order via the external
// provider. ProviderTxID is the provider's transaction id and the
// correlation key for webhook deliveries. Multiple payments may exist per
// order across retries, but at most one is non-terminal at a time.
type Payment struct {
	ID           uint64          // payments.id
	OrderID      uint64          // payments.order_id
	ProviderTxID string          // payments.provider_tx_id
	Amount       decimal.Decimal // payments.amount
	Currency     string          // payments.currency
	Status       string          // payments.status
	RedirectURL  string          // payments.redirect_url (provider checkout page)
	CreatedAt    time.Time       // payments.created_at
	UpdatedAt    time.Time       // payments.updated_at
}
