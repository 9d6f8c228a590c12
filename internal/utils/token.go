// Package utils provides the signed token that protects order status
// pages. Checkout embeds the token in the redirect URL so the customer
// can view their order without an account; anyone without the token
// cannot enumerate orders.
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidOrderToken is returned when a token fails verification or
// names a different order.
var ErrInvalidOrderToken = errors.New("invalid order token")

// OrderTokenSigner issues and verifies HS256 tokens scoped to one order.
type OrderTokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewOrderTokenSigner returns a signer with the given secret and token
// lifetime.
func NewOrderTokenSigner(secret string, ttl time.Duration) *OrderTokenSigner {
	return &OrderTokenSigner{secret: []byte(secret), ttl: ttl}
}

// Sign issues a token granting access to the order with the given public
// id until the TTL elapses.
func (s *OrderTokenSigner) Sign(orderPublicID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": orderPublicID,
		"exp": now.Add(s.ttl).Unix(),
		"iat": now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Verify checks the token and confirms it was issued for the given order.
func (s *OrderTokenSigner) Verify(token, orderPublicID string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidOrderToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidOrderToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub != orderPublicID {
		return ErrInvalidOrderToken
	}
	return nil
}
