// Package payment wraps the external payment provider behind a narrow
// interface. The provider is a collaborator, never a dependency of the
// domain logic: checkout and fulfillment only see CreatePayment and
// GetPayment, and every call carries an explicit timeout so a provider
// outage degrades into a queued retry instead of a hung request.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Provider statuses as reported by the external API.
const (
	StatusOpen      = "open"
	StatusPaid      = "paid"
	StatusFailed    = "failed"
	StatusCancelled = "canceled"
	StatusExpired   = "expired"
)

// CreateRequest describes a payment to be created at the provider.
type CreateRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	RedirectURL string
	WebhookURL  string
}

// Transaction is the provider's view of one payment.
type Transaction struct {
	ID          string // provider transaction id, the webhook correlation key
	Status      string
	CheckoutURL string // page the customer is redirected to
}

// Terminal reports whether the provider considers the transaction settled
// one way or the other.
func (t Transaction) Terminal() bool {
	return t.Status != StatusOpen
}

// Succeeded reports whether the customer actually paid.
func (t Transaction) Succeeded() bool { return t.Status == StatusPaid }

// Provider is the narrow surface the rest of the system consumes.
type Provider interface {
	CreatePayment(ctx context.Context, req CreateRequest) (*Transaction, error)
	GetPayment(ctx context.Context, providerTxID string) (*Transaction, error)
}

// Client is the HTTP implementation of Provider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a provider client. The timeout bounds every call;
// exceeding it surfaces as an ordinary error which the caller treats
// identically to an explicit provider failure.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type wireAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type wireTransaction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

func (w wireTransaction) toTransaction() *Transaction {
	return &Transaction{ID: w.ID, Status: w.Status, CheckoutURL: w.Links.Checkout.Href}
}

// CreatePayment registers a payment at the provider and returns its
// transaction id and checkout URL.
func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Transaction, error) {
	body, err := json.Marshal(map[string]any{
		"amount":      wireAmount{Value: req.Amount.StringFixed(2), Currency: req.Currency},
		"description": req.Description,
		"redirectUrl": req.RedirectURL,
		"webhookUrl":  req.WebhookURL,
	})
	if err != nil {
		return nil, err
	}
	var tx wireTransaction
	if err := c.do(ctx, http.MethodPost, "/payments", bytes.NewReader(body), &tx); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return tx.toTransaction(), nil
}

// GetPayment fetches the current provider-side state of a transaction.
// The fulfillment handler trusts this, not the webhook body, as the source
// of the payment outcome.
func (c *Client) GetPayment(ctx context.Context, providerTxID string) (*Transaction, error) {
	var tx wireTransaction
	if err := c.do(ctx, http.MethodGet, "/payments/"+providerTxID, nil, &tx); err != nil {
		return nil, fmt.Errorf("get payment %s: %w", providerTxID, err)
	}
	return tx.toTransaction(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, b)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
