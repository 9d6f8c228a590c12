package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validItem() CheckoutItem {
	return CheckoutItem{PerformanceID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("25.00")}
}

func TestValidateInput(t *testing.T) {
	base := CheckoutInput{
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		Items:         []CheckoutItem{validItem()},
	}
	assert.NoError(t, validateInput(base))

	empty := base
	empty.Items = nil
	assert.ErrorIs(t, validateInput(empty), ErrEmptyCart)

	badEmail := base
	badEmail.CustomerEmail = "not-an-email"
	assert.ErrorIs(t, validateInput(badEmail), ErrInvalidEmail)

	zeroQty := base
	item := validItem()
	item.Quantity = 0
	zeroQty.Items = []CheckoutItem{item}
	assert.ErrorIs(t, validateInput(zeroQty), ErrInvalidQuantity)

	negPrice := base
	item = validItem()
	item.UnitPrice = decimal.RequireFromString("-1.00")
	negPrice.Items = []CheckoutItem{item}
	assert.ErrorIs(t, validateInput(negPrice), ErrInvalidQuantity)

	noPerf := base
	item = validItem()
	item.PerformanceID = 0
	noPerf.Items = []CheckoutItem{item}
	assert.ErrorIs(t, validateInput(noPerf), ErrInvalidQuantity)
}
