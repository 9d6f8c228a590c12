package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stagehall/boxoffice/internal/model"
)

// OrderRepo provides CRUD operations for orders and their line items.
// Line items are immutable once created; orders only ever change status,
// and the PENDING -> terminal transition is always a conditional write.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, public_id, customer_name, customer_email, total, currency, status, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.PublicID, &o.CustomerName, &o.CustomerEmail,
		&o.Total, &o.Currency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateTx inserts a new order within the scope of an existing transaction
// and populates the generated ID on the provided record. The caller must
// commit or roll back the transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `INSERT INTO orders (public_id, customer_name, customer_email, total, currency, status)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, o.PublicID, o.CustomerName, o.CustomerEmail,
		o.Total, o.Currency, o.Status)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// CreateLineItemsTx inserts all line items of an order in a single
// statement. Passing an empty slice has no effect and returns nil.
func (r *OrderRepo) CreateLineItemsTx(ctx context.Context, tx *sql.Tx, items []model.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO line_items (order_id, performance_id, quantity, unit_price, needs_accessibility) VALUES `
	args := make([]any, 0, len(items)*5)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, it.OrderID, it.PerformanceID, it.Quantity, it.UnitPrice, it.NeedsAccessibility)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns an order by its primary key.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	o, err := scanOrder(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// GetByPublicID returns an order by the UUID exposed in URLs.
func (r *OrderRepo) GetByPublicID(ctx context.Context, publicID string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE public_id = ?`
	o, err := scanOrder(r.db.QueryRowContext(ctx, q, publicID))
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// LineItems returns the line items of an order. Items that need
// accessibility sort last so ticket generation processes them after the
// ordinary items and earlier assignments cannot eat the edge-zone seats.
func (r *OrderRepo) LineItems(ctx context.Context, orderID uint64) ([]model.LineItem, error) {
	const q = `SELECT id, order_id, performance_id, quantity, unit_price, needs_accessibility, created_at
	           FROM line_items WHERE order_id = ?
	           ORDER BY needs_accessibility ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.LineItem, 0)
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.PerformanceID, &it.Quantity,
			&it.UnitPrice, &it.NeedsAccessibility, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// TransitionStatusTx moves an order from one status to another only if it
// is still in the expected state. It reports whether the write won; a
// false result means another actor (duplicate webhook, cleanup sweep)
// already moved the order and the caller must not apply side effects.
func (r *OrderRepo) TransitionStatusTx(ctx context.Context, tx *sql.Tx, orderID uint64, from, to string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`, to, orderID, from)
	if err != nil {
		return false, fmt.Errorf("transition order %d %s->%s: %w", orderID, from, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListOrphaned returns ids of orders stuck in PENDING past the cutoff with
// no payment that is still plausibly in flight (a pending payment created
// after the cutoff means a provider callback may yet arrive).
func (r *OrderRepo) ListOrphaned(ctx context.Context, cutoff time.Time) ([]uint64, error) {
	const q = `SELECT o.id FROM orders o
	           WHERE o.status = ? AND o.created_at < ?
	             AND NOT EXISTS (
	               SELECT 1 FROM payments p
	               WHERE p.order_id = o.id AND p.status = ? AND p.created_at >= ?
	             )
	           ORDER BY o.id`
	rows, err := r.db.QueryContext(ctx, q, model.OrderPending, cutoff, model.PaymentPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
