package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stagehall/boxoffice/internal/model"
)

// PaymentRepo provides access to payment attempts. Terminal transitions
// are conditional writes: two concurrent webhook deliveries for the same
// provider transaction may both pass the read-side idempotency check, but
// only one can win the PENDING -> terminal update.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, order_id, provider_tx_id, amount, currency, status, redirect_url, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*model.Payment, error) {
	var p model.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.ProviderTxID, &p.Amount, &p.Currency,
		&p.Status, &p.RedirectURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new payment attempt and populates the generated ID.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	const q = `INSERT INTO payments (order_id, provider_tx_id, amount, currency, status, redirect_url)
	           VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, q, p.OrderID, p.ProviderTxID, p.Amount, p.Currency, p.Status, p.RedirectURL)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByID returns a payment by its primary key.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	p, err := scanPayment(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// GetByProviderTxID returns the payment correlated with an external
// provider transaction id, the key carried by webhook deliveries.
func (r *PaymentRepo) GetByProviderTxID(ctx context.Context, providerTxID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider_tx_id = ?`
	p, err := scanPayment(r.db.QueryRowContext(ctx, q, providerTxID))
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// HasPending reports whether the order already has a non-terminal payment.
// The create-payment job uses it to stay idempotent across retries that
// crashed between the provider call and the local insert.
func (r *PaymentRepo) HasPending(ctx context.Context, orderID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE order_id = ? AND status = ?`,
		orderID, model.PaymentPending).Scan(&n)
	return n > 0, err
}

// PendingCheckoutURL returns the provider checkout URL of the order's
// most recent pending payment, or "" when there is none. The status page
// uses it to offer a retry link for unpaid orders.
func (r *PaymentRepo) PendingCheckoutURL(ctx context.Context, orderID uint64) (string, error) {
	var url string
	err := r.db.QueryRowContext(ctx,
		`SELECT redirect_url FROM payments WHERE order_id = ? AND status = ? ORDER BY id DESC LIMIT 1`,
		orderID, model.PaymentPending).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return url, err
}

// TransitionStatusTx moves a payment out of PENDING only if it is still
// pending, reporting whether this writer won the transition.
func (r *PaymentRepo) TransitionStatusTx(ctx context.Context, tx *sql.Tx, paymentID uint64, to string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ? AND status = ?`,
		to, paymentID, model.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("transition payment %d -> %s: %w", paymentID, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
