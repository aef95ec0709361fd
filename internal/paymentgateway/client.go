package paymentgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errors "github.com/danandika/civic-report/internal"
	gatewaytypes "github.com/danandika/civic-report/internal/core/datamodel/paymentgateway"
)

// Gateway is what the entitlement service consumes. The live client and the
// in-process sandbox both satisfy it.
type Gateway interface {
	CreateSession(ctx context.Context, req *gatewaytypes.SessionRequest) (*gatewaytypes.Session, error)
	GetSession(ctx context.Context, sessionID string) (*gatewaytypes.Session, error)
}

// Client talks to the Stripe Checkout REST API. Requests are form encoded
// with bracketed metadata keys; responses come back as JSON.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

type Config struct {
	APIBaseURL string
	SecretKey  string
	Timeout    time.Duration
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		baseURL:    baseURL,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateSession opens a checkout session. No local state is written here; if
// the citizen abandons the checkout page nothing needs cleaning up.
func (c *Client) CreateSession(ctx context.Context, req *gatewaytypes.SessionRequest) (*gatewaytypes.Session, error) {
	if c.secretKey == "" {
		return nil, errors.ErrGatewayNotConfigured
	}
	if err := req.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount, 10))
	form.Set("line_items[0][quantity]", "1")
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	session, err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	c.logger.Info("checkout session created",
		"session_id", session.ID,
		"amount", req.Amount,
		"product", req.ProductName)

	return session, nil
}

// GetSession fetches the current state of a checkout session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*gatewaytypes.Session, error) {
	if c.secretKey == "" {
		return nil, errors.ErrGatewayNotConfigured
	}
	if sessionID == "" {
		return nil, errors.NewValidationError("session id is required", errors.ErrCodeValidationFailed)
	}

	return c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*gatewaytypes.Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.NewInternalError("failed to build gateway request", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if method == http.MethodPost {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway request failed", "method", method, "path", path, "error", err)
		return nil, errors.NewExternalError("payment gateway unreachable", errors.ErrCodeGatewayUnavailable).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.ErrPaymentNotFound
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("gateway returned error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(raw))
		return nil, errors.NewExternalError(
			fmt.Sprintf("payment gateway returned status %d", resp.StatusCode),
			errors.ErrCodeGatewayUnavailable)
	}

	var session gatewaytypes.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, errors.NewExternalError("failed to decode gateway response", errors.ErrCodeGatewayUnavailable).WithCause(err)
	}

	return &session, nil
}
