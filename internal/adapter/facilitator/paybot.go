package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"paybot-mcp/internal/domain"
)

// API is the set of facilitator operations the tools depend on.
type API interface {
	Pay(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error)
	Balance(ctx context.Context, botID string) (*domain.Balance, error)
	History(ctx context.Context, botID string, limit int) ([]domain.HistoryEvent, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.Registration, error)
	Payment(ctx context.Context, id string) (json.RawMessage, error)
	ListPayments(ctx context.Context, limit, offset int) (json.RawMessage, error)
	Health(ctx context.Context) (json.RawMessage, error)
}

// Pay submits a payment. A declined payment comes back as a result with
// Success=false, not as an error. The Idempotency-Key header is sent only
// when the caller supplied a key.
func (c *Client) Pay(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	var headers map[string]string
	if req.IdempotencyKey != "" {
		headers = map[string]string{headerIdempotencyKey: req.IdempotencyKey}
	}
	var res domain.PaymentResult
	_, err := c.do(ctx, request{
		op:      "pay",
		method:  http.MethodPost,
		path:    c.dialer.endpoints.Pay,
		body:    req,
		headers: headers,
		schema:  schemaPaymentResult,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Balance fetches the bot's spending limits.
func (c *Client) Balance(ctx context.Context, botID string) (*domain.Balance, error) {
	var bal domain.Balance
	_, err := c.do(ctx, request{
		op:     "balance",
		method: http.MethodGet,
		path:   expandPath(c.dialer.endpoints.Balance, map[string]string{"botId": botID}),
		schema: schemaBalance,
	}, &bal)
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// History fetches up to limit recent audit events. The facilitator may answer
// with a bare array or with {"events": [...]}; order is preserved.
func (c *Client) History(ctx context.Context, botID string, limit int) ([]domain.HistoryEvent, error) {
	raw, err := c.do(ctx, request{
		op:     "history",
		method: http.MethodGet,
		path:   expandPath(c.dialer.endpoints.History, map[string]string{"botId": botID}),
		query:  url.Values{"limit": {strconv.Itoa(limit)}},
		schema: schemaHistory,
	}, nil)
	if err != nil {
		return nil, err
	}

	var events []domain.HistoryEvent
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &events)
	} else {
		var wrapped struct {
			Events []domain.HistoryEvent `json:"events"`
		}
		err = json.Unmarshal(raw, &wrapped)
		events = wrapped.Events
	}
	if err != nil {
		return nil, domain.NewProtocolError("facilitator.history", err)
	}
	return events, nil
}

// Register creates a bot. The returned trust level is authoritative.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Registration, error) {
	var reg domain.Registration
	_, err := c.do(ctx, request{
		op:     "register",
		method: http.MethodPost,
		path:   c.dialer.endpoints.Register,
		body:   req,
		schema: schemaRegistration,
	}, &reg)
	if err != nil {
		return nil, err
	}
	if reg.BotID == "" {
		reg.BotID = req.BotID
	}
	return &reg, nil
}

// Payment fetches one payment record by id.
func (c *Client) Payment(ctx context.Context, id string) (json.RawMessage, error) {
	return c.do(ctx, request{
		op:     "payment",
		method: http.MethodGet,
		path:   expandPath(c.dialer.endpoints.Payment, map[string]string{"id": id}),
		schema: schemaObject,
	}, nil)
}

// ListPayments pages through payment records. A zero limit or offset is left
// out of the query and the facilitator's default applies.
func (c *Client) ListPayments(ctx context.Context, limit, offset int) (json.RawMessage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	return c.do(ctx, request{
		op:     "list_payments",
		method: http.MethodGet,
		path:   c.dialer.endpoints.Payments,
		query:  query,
	}, nil)
}

// Request performs an arbitrary authenticated call and returns the raw 2xx
// JSON body. body is JSON-encoded when non-nil; path may carry a query.
func (c *Client) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, request{
		op:     "request",
		method: method,
		path:   path,
		body:   body,
	}, nil)
}

// Health reports facilitator status.
func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, request{
		op:     "health",
		method: http.MethodGet,
		path:   c.dialer.endpoints.Health,
	}, nil)
}

var _ API = (*Client)(nil)
