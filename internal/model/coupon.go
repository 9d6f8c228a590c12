package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coupon is a discount code with an aggregate usage counter. The counter
// moves in lock-step with coupon_usages rows: incremented when a usage is
// recorded at checkout, decremented when the usage is deleted on payment
// failure.
type Coupon struct {
	ID              uint64          // coupons.id
	Code            string          // coupons.code
	DiscountPercent decimal.Decimal // coupons.discount_percent
	MaxUses         int             // coupons.max_uses (0 = unlimited)
	Uses            int             // coupons.uses
	Active          bool            // coupons.active
	CreatedAt       time.Time       // coupons.created_at
}

// CouponUsage links a coupon redemption to one order with the discount that
// was actually granted. It is deleted outright (not soft-deleted) when the
// order's payment fails, making the redemption available again.
type CouponUsage struct {
	ID        uint64          // coupon_usages.id
	CouponID  uint64          // coupon_usages.coupon_id
	OrderID   uint64          // coupon_usages.order_id
	Discount  decimal.Decimal // coupon_usages.discount
	CreatedAt time.Time       // coupon_usages.created_at
}
