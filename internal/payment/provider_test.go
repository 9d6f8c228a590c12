package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePayment(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": "tr_abc123",
			"status": "open",
			"_links": {"checkout": {"href": "https://pay.example/tr_abc123"}}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123", 2*time.Second)
	tx, err := c.CreatePayment(context.Background(), CreateRequest{
		Amount:      decimal.RequireFromString("42.50"),
		Currency:    "EUR",
		Description: "Order x",
		RedirectURL: "https://shop.example/orders/x",
		WebhookURL:  "https://shop.example/v1/payments/webhook",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer key-123", gotAuth)
	assert.Equal(t, map[string]any{"value": "42.50", "currency": "EUR"}, gotBody["amount"])
	assert.Equal(t, "tr_abc123", tx.ID)
	assert.Equal(t, StatusOpen, tx.Status)
	assert.Equal(t, "https://pay.example/tr_abc123", tx.CheckoutURL)
	assert.False(t, tx.Terminal())
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/tr_abc123", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "tr_abc123", "status": "paid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123", 2*time.Second)
	tx, err := c.GetPayment(context.Background(), "tr_abc123")
	require.NoError(t, err)

	assert.True(t, tx.Terminal())
	assert.True(t, tx.Succeeded())
}

func TestProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key", 2*time.Second)
	_, err := c.GetPayment(context.Background(), "tr_abc123")
	assert.ErrorContains(t, err, "401")
}

func TestTransactionTerminality(t *testing.T) {
	assert.False(t, Transaction{Status: StatusOpen}.Terminal())
	assert.True(t, Transaction{Status: StatusPaid}.Terminal())
	assert.True(t, Transaction{Status: StatusFailed}.Terminal())
	assert.True(t, Transaction{Status: StatusCancelled}.Terminal())
	assert.True(t, Transaction{Status: StatusExpired}.Terminal())
	assert.False(t, Transaction{Status: StatusFailed}.Succeeded())
}
