// Package payment talks to the hosted-invoice payment gateway.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrNotConfigured = errors.New("payments are not configured")

var tracer = otel.Tracer("github.com/Eursukkul/booking-microservice/rental-service/internal/payment")

// minAmount is the smallest invoice the gateway accepts, in minor units.
const minAmount = 100

// SessionRequest describes one hosted checkout. Amount is in minor units.
type SessionRequest struct {
	Amount      int64
	Currency    string
	Description string
	CallbackURL string
	SuccessURL  string
	BackURL     string
	Metadata    map[string]string
}

// Session is the gateway's reply: the invoice id and the checkout page.
type Session struct {
	ExternalID  string
	RedirectURL string
}

type invoiceRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url"`
	SuccessURL  string            `json:"success_url,omitempty"`
	BackURL     string            `json:"back_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type invoiceResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
}

type errorResponse struct {
	Message string `json:"message"`
}

type Client struct {
	client    *http.Client
	baseURL   string
	secretKey string
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		client:    &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
	}
}

// CreateSession creates a hosted invoice. The call is made once; callers
// decide whether to retry.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, span := tracer.Start(ctx, "payment.CreateSession")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("payment.amount", req.Amount),
		attribute.String("payment.currency", req.Currency),
	)

	session, err := c.createInvoice(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return session, nil
}

func (c *Client) createInvoice(ctx context.Context, req SessionRequest) (*Session, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(invoiceRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		SuccessURL:  req.SuccessURL,
		BackURL:     req.BackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.SetBasicAuth(c.secretKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send invoice request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read invoice response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var gwErr errorResponse
		if json.Unmarshal(raw, &gwErr) == nil && gwErr.Message != "" {
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, gwErr.Message)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var invoice invoiceResponse
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("decode invoice response: %w", err)
	}
	if invoice.ID == "" || invoice.URL == "" {
		return nil, errors.New("invoice response is missing id or checkout url")
	}

	return &Session{ExternalID: invoice.ID, RedirectURL: invoice.URL}, nil
}

// MinorUnits converts a decimal total into the gateway's minor currency
// units, rounding half away from zero and applying the gateway minimum.
func MinorUnits(total decimal.Decimal) int64 {
	amount := total.Shift(2).Round(0).IntPart()
	if amount < minAmount {
		return minAmount
	}
	return amount
}

// Callback is the body the gateway posts when an invoice changes state.
type Callback struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Succeeded reports whether the invoice has been paid.
func (cb Callback) Succeeded() bool {
	return cb.Status == "paid"
}

// ParseCallback decodes a callback body. The body is untrusted; the caller
// must still match ID against a reference it issued.
func ParseCallback(body []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return Callback{}, fmt.Errorf("decode callback: %w", err)
	}
	cb.ID = strings.TrimSpace(cb.ID)
	cb.Status = strings.ToLower(strings.TrimSpace(cb.Status))
	return cb, nil
}
