// Package repository implements raw-SQL persistence for the box office.
// This file defines sentinel errors shared across repositories so higher
// layers can distinguish failure scenarios with errors.Is and map them to
// user-facing responses.
package repository

import "errors"

// ErrPerformanceNotFound is returned when a referenced performance does
// not exist or is not in a bookable state.
var ErrPerformanceNotFound = errors.New("performance not found")

// ErrInsufficientSeats is returned by the reservation protocol when the
// re-validation under the row lock finds fewer available seats than
// requested. Handlers translate it into a user-facing "no longer
// available" response; it is never retried.
var ErrInsufficientSeats = errors.New("not enough seats available")

// ErrOrderNotFound is returned when an order lookup matches no row.
var ErrOrderNotFound = errors.New("order not found")

// ErrPaymentNotFound is returned when a payment lookup (usually by the
// provider transaction id carried in a webhook) matches no row.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrCouponNotFound is returned when a coupon code does not exist or is
// inactive.
var ErrCouponNotFound = errors.New("coupon not found")

// ErrCouponExhausted is returned when redeeming a coupon would exceed its
// maximum number of uses.
var ErrCouponExhausted = errors.New("coupon exhausted")
