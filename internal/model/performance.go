package model

import "time"

// Performance lifecycle states. Only PUBLISHED performances are bookable;
// SOLD_OUT is a display state derived when available_seats reaches zero.
const (
	PerformanceDraft     = "DRAFT"
	PerformancePublished = "PUBLISHED"
	PerformanceSoldOut   = "SOLD_OUT"
	PerformanceCancelled = "CANCELLED"
	PerformanceArchived  = "ARCHIVED"
)

// Performance is a bookable time slot in the venue. AvailableSeats is the
// aggregate counter that is authoritative for overselling prevention:
// checkout decrements it under a row lock and concrete seats are only
// assigned later, at ticket generation time.
//
// Invariant: 0 <= AvailableSeats <= TotalSeats.
type Performance struct {
	ID             uint64    // performances.id
	Title          string    // performances.title
	StartsAt       time.Time // performances.starts_at
	TotalSeats     int       // performances.total_seats
	AvailableSeats int       // performances.available_seats
	Rows           int       // performances.seat_rows
	SeatsPerRow    int       // performances.seats_per_row
	Status         string    // performances.status
	CreatedAt      time.Time // performances.created_at
	UpdatedAt      time.Time // performances.updated_at
}
