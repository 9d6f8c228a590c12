package model

import "time"

// Ticket is one physical seat entitlement, created only after payment
// success. Tickets for an order are inserted in a single batch; a partial
// batch never survives a transaction.
type Ticket struct {
	ID            uint64    // tickets.id
	OrderID       uint64    // tickets.order_id
	PerformanceID uint64    // tickets.performance_id
	Row           int       // tickets.seat_row
	Seat          int       // tickets.seat_number
	Accessible    bool      // tickets.is_accessible (the wheelchair position of the order)
	CreatedAt     time.Time // tickets.created_at
}
