// Package payment is a thin client for the hosted checkout provider: it
// creates and fetches checkout sessions and verifies signed webhook events.
// The provider hosts the payment UI; this process only ever sees session
// references and confirmation events.
package payment

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// Event types delivered to the webhook endpoint.
	EventSessionCompleted = "checkout.session.completed"
	EventSessionExpired   = "checkout.session.expired"
	EventPaymentFailed    = "checkout.session.async_payment_failed"

	// PaymentStatusPaid is the session payment_status that confirms money
	// actually moved; sessions can complete without it on deferred methods.
	PaymentStatusPaid = "paid"

	signatureHeaderTimestamp = "t"
	signatureHeaderV1        = "v1"

	defaultMaxAttempts = 3
)

type Config struct {
	APIBase       string
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
	// Tolerance bounds how stale a signed webhook timestamp may be.
	Tolerance time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Tolerance == 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
}

// Enabled reports whether the client has credentials to talk to the
// provider. Callers degrade to the manual confirmation path when false.
func (c *Client) Enabled() bool {
	return c.cfg.SecretKey != "" && c.cfg.APIBase != ""
}

// LineItem is one display line on the hosted payment page.
type LineItem struct {
	Name        string
	AmountCents int64
	Quantity    int
}

type CreateSessionParams struct {
	// Reference is our order reference, carried as the session's client
	// reference so webhook events map back to an order.
	Reference     string
	CustomerEmail string
	LineItems     []LineItem
}

// Session is the provider-side checkout session state.
type Session struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	PaymentStatus   string `json:"payment_status"`
	ClientReference string `json:"client_reference_id"`
	Status          string `json:"status"`
}

func (s *Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// CreateSession opens a hosted checkout session. Transient provider
// failures are retried with linear backoff; the idempotency key keeps
// retries from opening duplicate sessions.
func (c *Client) CreateSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("checkout provider is not configured")
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", p.Reference)
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	if p.CustomerEmail != "" {
		form.Set("customer_email", p.CustomerEmail)
	}
	for i, item := range p.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", c.cfg.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.AmountCents, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[quantity]", strconv.Itoa(item.Quantity))
	}

	idempotencyKey := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		session, err := c.postSession(ctx, form, idempotencyKey)
		if err == nil {
			return session, nil
		}
		lastErr = err
		logrus.Warnf("checkout session creation attempt %d failed: %v", attempt, err)

		if attempt < defaultMaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return nil, fmt.Errorf("failed to create checkout session after %d attempts: %w", defaultMaxAttempts, lastErr)
}

func (c *Client) postSession(ctx context.Context, form url.Values, idempotencyKey string) (*Session, error) {
	endpoint := fmt.Sprintf("%s/v1/checkout/sessions", c.cfg.APIBase)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing session request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading session response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parsing session response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("session response missing id or url")
	}
	return &session, nil
}

// GetSession fetches the current state of a session, used by the
// synchronous return-URL confirmation path.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("checkout provider is not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/checkout/sessions/%s", c.cfg.APIBase, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating session fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing session fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading session fetch response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("checkout session %s not found", id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parsing session fetch response: %w", err)
	}
	return &session, nil
}
