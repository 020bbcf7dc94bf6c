package key2pay

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

	"Key2PayBridge/internal/auth"
	"Key2PayBridge/internal/logging"
	"Key2PayBridge/internal/models"

	"go.uber.org/zap"
)

const createSessionPath = "/PaymentToken/Create"

var (
	// ErrSessionRejected means the processor answered but refused to open a
	// payment session (or answered without a redirect URL).
	ErrSessionRejected = errors.New("key2pay: payment session rejected")
	// ErrTransport means the processor could not be reached at all. The call
	// is not retried; the shopper resubmits checkout with a fresh track id.
	ErrTransport = errors.New("key2pay: request failed")
)

type ClientConfig struct {
	APIBase           string
	PaymentMethodType string
	Timeout           time.Duration
	Debug             bool
}

type Client struct {
	base       string
	methodType string
	httpClient *http.Client
	auth       auth.Strategy
	log        *zap.Logger
	debug      bool
}

func NewClient(cfg ClientConfig, strategy auth.Strategy, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		base:       strings.TrimRight(cfg.APIBase, "/"),
		methodType: cfg.PaymentMethodType,
		httpClient: &http.Client{Timeout: timeout},
		auth:       strategy,
		log:        log,
		debug:      cfg.Debug,
	}
}

// SessionParams carries everything needed to open a hosted-redirect payment
// session for one checkout attempt.
type SessionParams struct {
	TrackID     string
	Amount      float64
	Currency    string
	ReturnURL   string
	FailureURL  string
	ServerURL   string
	ProductDesc string
	Billing     models.Billing
}

type SessionResult struct {
	RedirectURL   string
	TransactionID string
	TrackID       string
}

type sessionResponse struct {
	Type          string `json:"type"`
	RedirectURL   string `json:"redirectUrl"`
	TransactionID string `json:"transactionid"`
	TrackID       string `json:"trackid"`
	ErrorText     string `json:"error_text"`
}

// CreateSession performs the single synchronous PaymentToken/Create call.
func (c *Client) CreateSession(ctx context.Context, p SessionParams) (*SessionResult, error) {
	body := map[string]any{
		"payment_method":       map[string]any{"type": c.methodType},
		"trackid":              p.TrackID,
		"bill_currencycode":    p.Currency,
		"bill_amount":          p.Amount,
		"returnUrl":            p.ReturnURL,
		"returnUrl_on_failure": p.FailureURL,
		"productdesc":          p.ProductDesc,
		"bill_customerip":      p.Billing.CustomerIP,
		"bill_phone":           p.Billing.Phone,
		"bill_email":           p.Billing.Email,
		"bill_country":         p.Billing.Country,
		"bill_city":            p.Billing.City,
		"bill_state":           p.Billing.State,
		"bill_address":         p.Billing.Address,
		"bill_zip":             p.Billing.Zip,
		"serverUrl":            p.ServerURL,
		"lang":                 "en",
	}
	body = c.auth.ApplyToBody(body)
	if c.auth.Type == auth.TypeSigned {
		body = c.auth.SignRequest(body, createSessionPath)
	}

	if c.debug {
		c.log.Debug("key2pay session request",
			zap.String("trackid", p.TrackID),
			zap.Any("body", logging.Redact(body)))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+createSessionPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.auth.Headers() {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var data sessionResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: unparseable response (status %d)", ErrSessionRejected, resp.StatusCode)
	}

	if c.debug {
		c.log.Debug("key2pay session response",
			zap.String("trackid", p.TrackID),
			zap.Int("status", resp.StatusCode),
			zap.String("type", data.Type),
			zap.String("error_text", data.ErrorText))
	}

	if data.Type != "valid" {
		return nil, rejection(data.ErrorText, "payment session was not accepted")
	}
	// A valid response without a redirect URL cannot be treated as success.
	if data.RedirectURL == "" {
		return nil, rejection(data.ErrorText, "payment session created but no redirect URL received")
	}

	return &SessionResult{
		RedirectURL:   data.RedirectURL,
		TransactionID: data.TransactionID,
		TrackID:       data.TrackID,
	}, nil
}

func (c *Client) IsConfigured() bool {
	return c.auth.IsConfigured()
}

func rejection(errorText, fallback string) error {
	if errorText == "" {
		errorText = fallback
	}
	return fmt.Errorf("%w: %s", ErrSessionRejected, errorText)
}
