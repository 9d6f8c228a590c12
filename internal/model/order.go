package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status values. PENDING is the only non-terminal state; the release
// protocol uses it as its idempotency guard.
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderFailed    = "FAILED"
	OrderCancelled = "CANCELLED"
	OrderRefunded  = "REFUNDED"
)

// Order groups one checkout. It owns its line items, payments and (after
// payment success) tickets. PublicID is the identifier exposed in URLs;
// the numeric ID never leaves the database layer.
type Order struct {
	ID            uint64          // orders.id
	PublicID      string          // orders.public_id (UUID)
	CustomerName  string          // orders.customer_name
	CustomerEmail string          // orders.customer_email
	Total         decimal.Decimal // orders.total
	Currency      string          // orders.currency
	Status        string          // orders.status
	CreatedAt     time.Time       // orders.created_at
	UpdatedAt     time.Time       // orders.updated_at
}

// LineItem is a (performance, quantity) tuple belonging to one order.
// Immutable once created; Quantity drives the seat-count math at checkout
// and the per-seat assignment after payment success.
type LineItem struct {
	ID                 uint64          // line_items.id
	OrderID            uint64          // line_items.order_id
	PerformanceID      uint64          // line_items.performance_id
	Quantity           int             // line_items.quantity
	UnitPrice          decimal.Decimal // line_items.unit_price
	NeedsAccessibility bool            // line_items.needs_accessibility
	CreatedAt          time.Time       // line_items.created_at
}
