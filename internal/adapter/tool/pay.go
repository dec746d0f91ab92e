package tool

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/tracer"
)

const payProperties = `
		"amount": {"type": "string", "description": "Amount in USD (e.g., \"0.05\" for 5 cents)"},
		"recipient": {"type": "string", "description": "Recipient wallet address (0x...)"},
		"resource": {"type": "string", "description": "URL or description of what you are paying for"},
		"botId": {"type": "string", "description": "` + botIDDescription + `"},
		"network": {"type": "string", "description": "Network CAIP-2 ID (default: eip155:84532 Base Sepolia)"}`

var paySchema = json.RawMessage(`{
	"type": "object",
	"properties": {` + payProperties + `
	},
	"required": ["amount", "recipient", "resource"]
}`)

var payExtendedSchema = json.RawMessage(`{
	"type": "object",
	"properties": {` + payProperties + `,
		"idempotencyKey": {"type": "string", "description": "Idempotency key to prevent duplicates"}
	},
	"required": ["amount", "recipient", "resource"]
}`)

const payDescription = "Make a USDC payment for an API, service, or resource. Returns transaction hash and commission breakdown."

// PayTool makes a USDC payment through the facilitator.
type PayTool struct {
	baseTool
	acceptsIdempotencyKey bool
}

// NewPayTool creates the paybot_pay tool.
func NewPayTool(deps Deps) *PayTool {
	return &PayTool{baseTool: baseTool{
		name:        NamePay,
		description: payDescription,
		schema:      paySchema,
		deps:        deps,
	}}
}

// NewExtendedPayTool creates paybot_pay with an optional idempotencyKey
// argument, forwarded to the facilitator so a retried call settles once.
func NewExtendedPayTool(deps Deps) *PayTool {
	return &PayTool{
		baseTool: baseTool{
			name:        NamePay,
			description: payDescription,
			schema:      payExtendedSchema,
			deps:        deps,
		},
		acceptsIdempotencyKey: true,
	}
}

type payParams struct {
	Amount         string `json:"amount"`
	Recipient      string `json:"recipient"`
	Resource       string `json:"resource"`
	BotID          string `json:"botId"`
	Network        string `json:"network"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Execute implements domain.Tool.
func (t *PayTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NamePay, t.deps.Logger, params, t.pay)
}

func (t *PayTool) pay(ctx context.Context, span trace.Span, p payParams) (any, error) {
	amount := strings.TrimSpace(p.Amount)
	recipient := strings.TrimSpace(p.Recipient)
	network := t.deps.Resolver.Network(p.Network)

	if err := ValidateAll(
		RequireField("amount", amount),
		ValidateAmount("amount", amount),
		RequireField("recipient", recipient),
		RequireField("resource", p.Resource),
		ValidateNetwork("network", network),
		ValidateRecipient("recipient", recipient, network),
	); err != nil {
		return ErrResult("invalid arguments: %v", err), nil
	}

	client, id, err := t.connect(span, p.BotID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		tracer.StringAttr("payment.amount", amount),
		tracer.StringAttr("payment.network", network),
	)

	req := domain.PaymentRequest{
		Resource: p.Resource,
		Amount:   amount,
		PayTo:    recipient,
		Network:  network,
		BotID:    id.BotID,
	}
	if t.acceptsIdempotencyKey {
		req.IdempotencyKey = strings.TrimSpace(p.IdempotencyKey)
	}
	res, err := client.Pay(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.BoolAttr("payment.success", res.Success))

	if !res.Success {
		t.deps.Logger.Info("payment declined",
			"call_id", domain.CallIDFromContext(ctx),
			"bot_id", id.BotID,
			"reason", res.Error,
		)
		return &domain.ToolResult{IsError: true, Content: t.deps.Formatter.PaymentFailed(res)}, nil
	}

	t.deps.Logger.Info("payment settled",
		"call_id", domain.CallIDFromContext(ctx),
		"bot_id", id.BotID,
		"amount", amount,
		"tx_hash", res.TxHash,
		"network", res.Network,
	)
	return t.deps.Formatter.PaymentSucceeded(amount, recipient, network, res), nil
}
