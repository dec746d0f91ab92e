// Package facilitator is the HTTP client for the PayBot payment facilitator.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/config"
	"paybot-mcp/internal/infra/tracer"
)

// maxResponseBody caps how much of a facilitator response is read.
const maxResponseBody = 4 * 1024 * 1024

// Header names sent on every request.
const (
	headerBotID          = "X-Bot-Id"
	headerRequestID      = "X-Request-Id"
	headerIdempotencyKey = "Idempotency-Key"
)

// Dialer hands out a Client bound to one identity. Long-lived resources
// (connection pool, circuit breaker, compiled schemas) are shared.
type Dialer struct {
	httpClient *http.Client
	breaker    *Breaker
	validator  *Validator
	endpoints  config.EndpointsConfig
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
}

// DialerOption customizes a Dialer.
type DialerOption func(*Dialer)

// WithHTTPClient replaces the pooled HTTP client. Tests use this to point at
// an httptest server transport.
func WithHTTPClient(c *http.Client) DialerOption {
	return func(d *Dialer) { d.httpClient = c }
}

// WithBreaker routes every request through b.
func WithBreaker(b *Breaker) DialerOption {
	return func(d *Dialer) { d.breaker = b }
}

// NewDialer builds a Dialer from facilitator configuration.
func NewDialer(cfg config.FacilitatorConfig, logger *slog.Logger, opts ...DialerOption) *Dialer {
	d := &Dialer{
		httpClient: NewHTTPClient(cfg.Pool),
		validator:  NewValidator(),
		endpoints:  cfg.Endpoints,
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
	if cfg.CircuitBreaker.Enabled {
		d.breaker = NewBreaker(cfg.CircuitBreaker, logger)
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.userAgent == "" {
		d.userAgent = "paybot-mcp"
	}
	return d
}

// For returns a Client bound to id. Clients are cheap; build one per call.
func (d *Dialer) For(id domain.Identity) API {
	return &Client{dialer: d, id: id}
}

// Client performs authenticated requests for a single identity.
type Client struct {
	dialer *Dialer
	id     domain.Identity
}

// request describes one facilitator call.
type request struct {
	op      string // span/log name, e.g. "pay"
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
	schema  string // response schema name; "" skips validation
}

// do sends req and decodes a 2xx JSON body into out. out may be nil, in which
// case the raw body is returned.
func (c *Client) do(ctx context.Context, req request, out any) (json.RawMessage, error) {
	op := "facilitator." + req.op
	ctx, span := tracer.StartSpan(ctx, op)
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("http.method", req.method),
		tracer.StringAttr("http.route", req.path),
		tracer.StringAttr("bot.id", c.id.BotID),
	)

	raw, err := c.send(ctx, op, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if req.schema != "" {
		if err := c.dialer.validator.Validate(req.schema, raw); err != nil {
			perr := domain.NewProtocolError(op, err)
			tracer.RecordError(span, perr)
			return nil, perr
		}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			perr := domain.NewProtocolError(op, err)
			tracer.RecordError(span, perr)
			return nil, perr
		}
	}

	tracer.SetOK(span)
	return raw, nil
}

// send performs the HTTP exchange, through the breaker when configured.
func (c *Client) send(ctx context.Context, op string, req request) (json.RawMessage, error) {
	if c.dialer.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.dialer.timeout)
		defer cancel()
	}

	exchange := func() ([]byte, error) { return c.exchange(ctx, op, req) }

	if c.dialer.breaker == nil {
		return exchange()
	}
	return c.dialer.breaker.Execute(op, exchange)
}

func (c *Client) exchange(ctx context.Context, op string, req request) ([]byte, error) {
	start := time.Now()

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, domain.NewTransportError(op, err)
	}

	resp, err := c.dialer.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewTransportError(op, describeTransportError(ctx, err, c.dialer.timeout))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	c.dialer.logger.Debug("facilitator response",
		"op", op,
		"status", resp.StatusCode,
		"bot_id", c.id.BotID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := strings.TrimSpace(string(body))
		if readErr != nil || text == "" {
			text = domain.UnknownErrorBody
		}
		return nil, domain.NewHTTPError(op, resp.StatusCode, text, extractMessage(body))
	}
	if readErr != nil {
		return nil, domain.NewTransportError(op, fmt.Errorf("read response: %w", readErr))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, domain.NewProtocolError(op, errors.New("empty response body"))
	}
	if !json.Valid(body) {
		return nil, domain.NewProtocolError(op, fmt.Errorf("response is not JSON: %s", truncate(string(body), 120)))
	}
	return body, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req request) (*http.Request, error) {
	target, err := url.Parse(c.id.BaseURL + req.path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.id.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.dialer.userAgent)
	httpReq.Header.Set(headerBotID, c.id.BotID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	requestID := domain.CallIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set(headerRequestID, requestID)

	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// describeTransportError distinguishes our own timeout from other failures.
func describeTransportError(ctx context.Context, err error, timeout time.Duration) error {
	if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", domain.ErrTimeout, timeout, context.DeadlineExceeded)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request cancelled: %w", context.Canceled)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

// extractMessage pulls a human-readable message out of an error body:
// {"error":"..."}, {"message":"..."} or {"error":{"message":"..."}}.
// It returns "" when none is found.
func extractMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if len(envelope.Error) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return envelope.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// expandPath substitutes {name} placeholders with escaped values.
func expandPath(template string, values map[string]string) string {
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{"+k+"}", url.PathEscape(v))
	}
	return out
}
