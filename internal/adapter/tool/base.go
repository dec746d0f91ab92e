package tool

import (
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/adapter/facilitator"
	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/config"
	"paybot-mcp/internal/infra/tracer"
)

// Tool names. Hosts bind to these; they are a stable contract.
const (
	NamePay          = "paybot_pay"
	NameBalance      = "paybot_balance"
	NameHistory      = "paybot_history"
	NameRegister     = "paybot_register"
	NameGetPayment   = "paybot_get_payment"
	NameListPayments = "paybot_list_payments"
	NameHealth       = "paybot_health"
)

// botIDDescription is shared by every tool with an optional botId.
const botIDDescription = "Bot identifier (defaults to env PAYBOT_BOT_ID)"

// Dialer hands out facilitator clients bound to one identity.
type Dialer interface {
	For(id domain.Identity) facilitator.API
}

// Deps are the collaborators shared by the PayBot tools.
type Deps struct {
	Resolver  *config.Resolver
	Dialer    Dialer
	Formatter *Formatter
	Logger    *slog.Logger
}

// baseTool carries the static tool metadata and dependencies.
type baseTool struct {
	name        string
	description string
	schema      json.RawMessage
	deps        Deps
}

func (b *baseTool) Name() string        { return b.name }
func (b *baseTool) Description() string { return b.description }

func (b *baseTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        b.name,
		Description: b.description,
		Parameters:  b.schema,
	}
}

// connect derives a fresh identity for this call and binds a client to it.
// A configuration error is returned before any network activity.
func (b *baseTool) connect(span trace.Span, botID string) (facilitator.API, domain.Identity, error) {
	id, err := b.deps.Resolver.Resolve(botID)
	if err != nil {
		return nil, domain.Identity{}, err
	}
	span.SetAttributes(tracer.StringAttr("bot.id", id.BotID))
	return b.deps.Dialer.For(id), id, nil
}

// PayBotTools returns the four core tools, plus the extended set when asked.
// The extended set also lets paybot_pay take an idempotency key.
func PayBotTools(deps Deps, extended bool) []domain.Tool {
	pay := NewPayTool(deps)
	if extended {
		pay = NewExtendedPayTool(deps)
	}
	tools := []domain.Tool{
		pay,
		NewBalanceTool(deps),
		NewHistoryTool(deps),
		NewRegisterTool(deps),
	}
	if extended {
		tools = append(tools,
			NewGetPaymentTool(deps),
			NewListPaymentsTool(deps),
			NewHealthTool(deps),
		)
	}
	return tools
}

func asFacilitatorError(err error) (*domain.FacilitatorError, bool) {
	var fe *domain.FacilitatorError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
