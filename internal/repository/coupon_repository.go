package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/stagehall/boxoffice/internal/model"
)

// CouponRepo provides coupon lookup, redemption and release. The coupon's
// aggregate uses counter always moves in lock-step with coupon_usages
// rows, inside the same transaction as the seat count mutation.
type CouponRepo struct {
	db *sql.DB
}

// NewCouponRepo returns a new CouponRepo bound to the given database.
func NewCouponRepo(db *sql.DB) *CouponRepo { return &CouponRepo{db: db} }

// GetByCode returns an active coupon by its code.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*model.Coupon, error) {
	const q = `SELECT id, code, discount_percent, max_uses, uses, active, created_at
	           FROM coupons WHERE code = ? AND active = TRUE`
	var c model.Coupon
	err := r.db.QueryRowContext(ctx, q, code).Scan(&c.ID, &c.Code, &c.DiscountPercent,
		&c.MaxUses, &c.Uses, &c.Active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RedeemTx records a coupon usage for an order and increments the coupon's
// uses counter in the same transaction. The increment is conditional on
// max_uses so concurrent checkouts cannot overspend a limited coupon; a
// lost race returns ErrCouponExhausted and aborts the checkout.
func (r *CouponRepo) RedeemTx(ctx context.Context, tx *sql.Tx, couponID, orderID uint64, discount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE coupons SET uses = uses + 1
		 WHERE id = ? AND active = TRUE AND (max_uses = 0 OR uses < max_uses)`, couponID)
	if err != nil {
		return fmt.Errorf("increment coupon %d uses: %w", couponID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCouponExhausted
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO coupon_usages (coupon_id, order_id, discount) VALUES (?, ?, ?)`,
		couponID, orderID, discount)
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	return nil
}

// ReleaseTx deletes the order's coupon usage (hard delete, making the
// redemption available again) and decrements the counter. Orders without
// a usage are a no-op, so release stays idempotent at this level too.
func (r *CouponRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
	var couponID uint64
	err := tx.QueryRowContext(ctx,
		`SELECT coupon_id FROM coupon_usages WHERE order_id = ? FOR UPDATE`, orderID).Scan(&couponID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load coupon usage for order %d: %w", orderID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM coupon_usages WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("delete coupon usage for order %d: %w", orderID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE coupons SET uses = GREATEST(uses - 1, 0) WHERE id = ?`, couponID); err != nil {
		return fmt.Errorf("decrement coupon %d uses: %w", couponID, err)
	}
	return nil
}
