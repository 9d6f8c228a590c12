package repository

import (
	"context"
	"database/sql"

	"github.com/stagehall/boxoffice/internal/model"
	"github.com/stagehall/boxoffice/internal/seating"
)

// TicketRepo provides access to tickets. Tickets only come into existence
// through CreateBatchTx after payment success; there is no single-ticket
// insert on purpose, so a partial batch can never be observed.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// ExistsForOrderTx reports whether any tickets were already generated for
// the order. This is the second idempotency guard of the fulfillment
// handler, covering a crash between the status update and generation.
func (r *TicketRepo) ExistsForOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE order_id = ?`, orderID).Scan(&n)
	return n > 0, err
}

// CreateBatchTx inserts all tickets of an order in one statement inside
// the caller's transaction. The unique key on (performance_id, seat_row,
// seat_number) is the last line of defense against double assignment.
func (r *TicketRepo) CreateBatchTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (order_id, performance_id, seat_row, seat_number, is_accessible) VALUES `
	args := make([]any, 0, len(tickets)*5)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, t.OrderID, t.PerformanceID, t.Row, t.Seat, t.Accessible)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// OccupiedTx returns the occupied seat set of a performance as input for
// the assignment algorithm. Callers must hold the performance row lock so
// the set cannot change while seats are being chosen.
func (r *TicketRepo) OccupiedTx(ctx context.Context, tx *sql.Tx, performanceID uint64) (map[seating.SeatRef]bool, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_row, seat_number FROM tickets WHERE performance_id = ?`, performanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	occupied := make(map[seating.SeatRef]bool)
	for rows.Next() {
		var ref seating.SeatRef
		if err := rows.Scan(&ref.Row, &ref.Seat); err != nil {
			return nil, err
		}
		occupied[ref] = true
	}
	return occupied, rows.Err()
}

// Occupied is the non-transactional variant used by the venue debug chart.
func (r *TicketRepo) Occupied(ctx context.Context, performanceID uint64) (map[seating.SeatRef]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_row, seat_number FROM tickets WHERE performance_id = ?`, performanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	occupied := make(map[seating.SeatRef]bool)
	for rows.Next() {
		var ref seating.SeatRef
		if err := rows.Scan(&ref.Row, &ref.Seat); err != nil {
			return nil, err
		}
		occupied[ref] = true
	}
	return occupied, rows.Err()
}

// ListByOrder returns the tickets of an order ordered deterministically by
// performance, row and seat for the status page and confirmation email.
func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
	const q = `SELECT id, order_id, performance_id, seat_row, seat_number, is_accessible, created_at
	           FROM tickets WHERE order_id = ?
	           ORDER BY performance_id, seat_row, seat_number`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets := make([]model.Ticket, 0)
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.PerformanceID, &t.Row, &t.Seat,
			&t.Accessible, &t.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
