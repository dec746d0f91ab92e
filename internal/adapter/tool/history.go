package tool

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/tracer"
)

var historySchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"botId": {"type": "string", "description": "` + botIDDescription + `"},
		"limit": {"type": "integer", "minimum": 1, "description": "Max events to return (default: 10)"}
	}
}`)

// HistoryTool lists recent payment and audit events for a bot.
type HistoryTool struct {
	baseTool
}

// NewHistoryTool creates the paybot_history tool.
func NewHistoryTool(deps Deps) *HistoryTool {
	return &HistoryTool{baseTool{
		name:        NameHistory,
		description: "View recent payment history and audit events for a bot.",
		schema:      historySchema,
		deps:        deps,
	}}
}

type historyParams struct {
	BotID string `json:"botId"`
	Limit *int   `json:"limit"`
}

// Execute implements domain.Tool.
func (t *HistoryTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NameHistory, t.deps.Logger, params,
		func(ctx context.Context, span trace.Span, p historyParams) (any, error) {
			limit := t.deps.Resolver.HistoryLimit(p.Limit)
			if limit < 1 {
				return ErrResult("invalid arguments: limit must be >= 1"), nil
			}

			client, id, err := t.connect(span, p.BotID)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("history.limit", limit))

			events, err := client.History(ctx, id.BotID, limit)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("history.count", len(events)))
			return t.deps.Formatter.History(events), nil
		},
	)
}
