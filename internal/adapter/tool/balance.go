package tool

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/tracer"
)

var balanceSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"botId": {"type": "string", "description": "` + botIDDescription + `"}
	}
}`)

// BalanceTool reports a bot's trust level and spending limits.
type BalanceTool struct {
	baseTool
}

// NewBalanceTool creates the paybot_balance tool.
func NewBalanceTool(deps Deps) *BalanceTool {
	return &BalanceTool{baseTool{
		name:        NameBalance,
		description: "Check spending limits, trust level, and remaining daily budget for a bot.",
		schema:      balanceSchema,
		deps:        deps,
	}}
}

type balanceParams struct {
	BotID string `json:"botId"`
}

// Execute implements domain.Tool.
func (t *BalanceTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NameBalance, t.deps.Logger, params,
		func(ctx context.Context, span trace.Span, p balanceParams) (any, error) {
			client, id, err := t.connect(span, p.BotID)
			if err != nil {
				return nil, err
			}
			bal, err := client.Balance(ctx, id.BotID)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("bot.trust_level", bal.TrustLevel))
			return t.deps.Formatter.Balance(bal, id.BotID), nil
		},
	)
}
