package tool

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/domain"
)

// The extended tools expose raw facilitator records as indented JSON. They
// are registered only when tools.extended is set.

var getPaymentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"paymentId": {"type": "string", "minLength": 1, "description": "The payment ID to look up"},
		"botId": {"type": "string", "description": "` + botIDDescription + `"}
	},
	"required": ["paymentId"]
}`)

var listPaymentsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"limit": {"type": "integer", "minimum": 1, "description": "Max number of payments to return"},
		"offset": {"type": "integer", "minimum": 0, "description": "Offset for pagination"},
		"botId": {"type": "string", "description": "` + botIDDescription + `"}
	}
}`)

var healthSchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// GetPaymentTool looks up one payment record.
type GetPaymentTool struct{ baseTool }

// NewGetPaymentTool creates the paybot_get_payment tool.
func NewGetPaymentTool(deps Deps) *GetPaymentTool {
	return &GetPaymentTool{baseTool{
		name:        NameGetPayment,
		description: "Get the status of a PayBot payment.",
		schema:      getPaymentSchema,
		deps:        deps,
	}}
}

type getPaymentParams struct {
	PaymentID string `json:"paymentId"`
	BotID     string `json:"botId"`
}

// Execute implements domain.Tool.
func (t *GetPaymentTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NameGetPayment, t.deps.Logger, params,
		func(ctx context.Context, span trace.Span, p getPaymentParams) (any, error) {
			id := strings.TrimSpace(p.PaymentID)
			if err := RequireField("paymentId", id); err != nil {
				return ErrResult("invalid arguments: %v", err), nil
			}
			client, _, err := t.connect(span, p.BotID)
			if err != nil {
				return nil, err
			}
			return client.Payment(ctx, id)
		},
	)
}

// ListPaymentsTool pages through recent payments.
type ListPaymentsTool struct{ baseTool }

// NewListPaymentsTool creates the paybot_list_payments tool.
func NewListPaymentsTool(deps Deps) *ListPaymentsTool {
	return &ListPaymentsTool{baseTool{
		name:        NameListPayments,
		description: "List recent PayBot payments.",
		schema:      listPaymentsSchema,
		deps:        deps,
	}}
}

type listPaymentsParams struct {
	Limit  *int   `json:"limit"`
	Offset int    `json:"offset"`
	BotID  string `json:"botId"`
}

// Execute implements domain.Tool.
func (t *ListPaymentsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NameListPayments, t.deps.Logger, params,
		func(ctx context.Context, span trace.Span, p listPaymentsParams) (any, error) {
			// Unset paging stays unset; the facilitator picks its own page.
			var limit int
			if p.Limit != nil {
				limit = *p.Limit
				if limit < 1 {
					return ErrResult("invalid arguments: limit must be >= 1 and offset >= 0"), nil
				}
			}
			if p.Offset < 0 {
				return ErrResult("invalid arguments: limit must be >= 1 and offset >= 0"), nil
			}
			client, _, err := t.connect(span, p.BotID)
			if err != nil {
				return nil, err
			}
			return client.ListPayments(ctx, limit, p.Offset)
		},
	)
}

// HealthTool reports facilitator status.
type HealthTool struct{ baseTool }

// NewHealthTool creates the paybot_health tool.
func NewHealthTool(deps Deps) *HealthTool {
	return &HealthTool{baseTool{
		name:        NameHealth,
		description: "Check PayBot facilitator health.",
		schema:      healthSchema,
		deps:        deps,
	}}
}

// Execute implements domain.Tool.
func (t *HealthTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NameHealth, t.deps.Logger, params,
		func(ctx context.Context, span trace.Span, _ struct{}) (any, error) {
			client, _, err := t.connect(span, "")
			if err != nil {
				return nil, err
			}
			return client.Health(ctx)
		},
	)
}
