package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/stagehall/boxoffice/internal/model"
)

// PerformanceRepo provides access to performances and implements the seat
// reservation/release protocol. The aggregate available_seats counter on
// each performance row is the single source of truth for availability;
// concrete seats are only chosen later, at ticket generation time.
type PerformanceRepo struct {
	db *sql.DB
}

// NewPerformanceRepo returns a new PerformanceRepo bound to the given database.
func NewPerformanceRepo(db *sql.DB) *PerformanceRepo { return &PerformanceRepo{db: db} }

// DB exposes the underlying handle so services can open transactions
// spanning multiple repositories.
func (r *PerformanceRepo) DB() *sql.DB { return r.db }

const performanceColumns = `id, title, starts_at, total_seats, available_seats, seat_rows, seats_per_row, status, created_at, updated_at`

func scanPerformance(row interface{ Scan(...any) error }) (*model.Performance, error) {
	var p model.Performance
	err := row.Scan(&p.ID, &p.Title, &p.StartsAt, &p.TotalSeats, &p.AvailableSeats,
		&p.Rows, &p.SeatsPerRow, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns a performance by its primary key.
func (r *PerformanceRepo) GetByID(ctx context.Context, id uint64) (*model.Performance, error) {
	q := `SELECT ` + performanceColumns + ` FROM performances WHERE id = ?`
	p, err := scanPerformance(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrPerformanceNotFound
	}
	return p, err
}

// ListPublished returns all bookable performances ordered by start time.
func (r *PerformanceRepo) ListPublished(ctx context.Context) ([]model.Performance, error) {
	q := `SELECT ` + performanceColumns + ` FROM performances
	      WHERE status IN (?, ?) ORDER BY starts_at, id`
	rows, err := r.db.QueryContext(ctx, q, model.PerformancePublished, model.PerformanceSoldOut)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Performance, 0)
	for rows.Next() {
		p, err := scanPerformance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// LockTx loads a performance under an exclusive row lock. Ticket
// generation uses it to serialize seat assignment per performance.
func (r *PerformanceRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Performance, error) {
	q := `SELECT ` + performanceColumns + ` FROM performances WHERE id = ? FOR UPDATE`
	p, err := scanPerformance(tx.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrPerformanceNotFound
	}
	return p, err
}

// ReserveSeatsTx atomically decrements available_seats for every requested
// performance inside the caller's transaction. Performance rows are locked
// in ascending id order so two concurrent checkouts touching overlapping
// performances cannot deadlock. Under the lock the requested quantity is
// re-validated against available_seats; any shortfall aborts with
// ErrInsufficientSeats and the caller rolls the whole checkout back.
func (r *PerformanceRepo) ReserveSeatsTx(ctx context.Context, tx *sql.Tx, quantities map[uint64]int) error {
	ids := sortedKeys(quantities)
	for _, id := range ids {
		var available int
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT available_seats, status FROM performances WHERE id = ? FOR UPDATE`, id,
		).Scan(&available, &status)
		if err == sql.ErrNoRows {
			return ErrPerformanceNotFound
		}
		if err != nil {
			return fmt.Errorf("lock performance %d: %w", id, err)
		}
		if status != model.PerformancePublished && status != model.PerformanceSoldOut {
			return ErrPerformanceNotFound
		}
		if available < quantities[id] {
			return ErrInsufficientSeats
		}
	}
	for _, id := range ids {
		// Selling the last seat flips the display status to SOLD_OUT.
		// MySQL applies SET assignments left to right, so the IF reads
		// the already-decremented counter.
		_, err := tx.ExecContext(ctx,
			`UPDATE performances
			 SET available_seats = available_seats - ?,
			     status = IF(available_seats = 0, ?, status)
			 WHERE id = ?`,
			quantities[id], model.PerformanceSoldOut, id)
		if err != nil {
			return fmt.Errorf("reserve seats on performance %d: %w", id, err)
		}
	}
	return nil
}

// ReleaseSeatsTx is the exact inverse of ReserveSeatsTx. Idempotency is
// the caller's responsibility: release runs at most once per order,
// guarded by the order's pending status inside the same transaction.
func (r *PerformanceRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, quantities map[uint64]int) error {
	for _, id := range sortedKeys(quantities) {
		var available int
		err := tx.QueryRowContext(ctx,
			`SELECT available_seats FROM performances WHERE id = ? FOR UPDATE`, id,
		).Scan(&available)
		if err == sql.ErrNoRows {
			return ErrPerformanceNotFound
		}
		if err != nil {
			return fmt.Errorf("lock performance %d: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE performances
			 SET available_seats = available_seats + ?,
			     status = IF(status = ?, ?, status)
			 WHERE id = ?`,
			quantities[id], model.PerformanceSoldOut, model.PerformancePublished, id)
		if err != nil {
			return fmt.Errorf("release seats on performance %d: %w", id, err)
		}
	}
	return nil
}

// sortedKeys returns map keys in ascending order. Lock acquisition follows
// this order everywhere to keep the deadlock-freedom argument simple.
func sortedKeys(m map[uint64]int) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
