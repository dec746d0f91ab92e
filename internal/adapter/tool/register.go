package tool

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/tracer"
)

var registerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"botId": {"type": "string", "description": "Unique bot identifier"},
		"trustLevel": {"type": "integer", "minimum": 0, "maximum": 5, "description": "Initial trust level 0-5 (default: 1)"}
	},
	"required": ["botId"]
}`)

// RegisterTool registers a new bot with the facilitator. Unlike the other
// tools it reports every failure itself as "Registration failed: ...".
type RegisterTool struct {
	baseTool
}

// NewRegisterTool creates the paybot_register tool.
func NewRegisterTool(deps Deps) *RegisterTool {
	return &RegisterTool{baseTool{
		name:        NameRegister,
		description: "Register a new bot with the PayBot facilitator. Returns the assigned trust level.",
		schema:      registerSchema,
		deps:        deps,
	}}
}

type registerParams struct {
	BotID      string `json:"botId"`
	TrustLevel *int   `json:"trustLevel"`
}

// Execute implements domain.Tool.
func (t *RegisterTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+NameRegister, t.deps.Logger, params, t.register)
}

func (t *RegisterTool) register(ctx context.Context, span trace.Span, p registerParams) (any, error) {
	botID := strings.TrimSpace(p.BotID)
	level := t.deps.Resolver.TrustLevel(p.TrustLevel)

	if err := ValidateAll(
		RequireField("botId", botID),
		ValidateRange("trustLevel", level, domain.MinTrustLevel, domain.MaxTrustLevel),
	); err != nil {
		return t.failed(span, err), nil
	}

	client, _, err := t.connect(span, botID)
	if err != nil {
		return t.failed(span, err), nil
	}

	reg, err := client.Register(ctx, domain.RegisterRequest{BotID: botID, TrustLevel: level})
	if err != nil {
		t.deps.Logger.Warn("bot registration failed",
			"call_id", domain.CallIDFromContext(ctx),
			"bot_id", botID,
			"error", err,
		)
		return t.failed(span, err), nil
	}

	span.SetAttributes(
		tracer.IntAttr("bot.trust_level.requested", level),
		tracer.IntAttr("bot.trust_level", reg.TrustLevel),
	)
	t.deps.Logger.Info("bot registered", "bot_id", botID, "trust_level", reg.TrustLevel)
	return t.deps.Formatter.Registered(botID, reg.TrustLevel), nil
}

func (t *RegisterTool) failed(span trace.Span, err error) *domain.ToolResult {
	tracer.RecordError(span, err)
	return ErrResult("%s", t.deps.Formatter.RegistrationFailed(err))
}
