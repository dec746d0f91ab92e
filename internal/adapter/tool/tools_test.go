package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paybot-mcp/internal/adapter/facilitator"
	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/config"
	"paybot-mcp/internal/infra/logger"
)

// fakeAPI records calls and returns canned responses.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	payReq   domain.PaymentRequest
	payRes   *domain.PaymentResult
	balance  *domain.Balance
	events   []domain.HistoryEvent
	histArgs [2]any
	listArgs [2]int
	regReq   domain.RegisterRequest
	reg      *domain.Registration
	raw      json.RawMessage
	err      error
}

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeAPI) Pay(_ context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	f.record("pay")
	f.payReq = req
	return f.payRes, f.err
}

func (f *fakeAPI) Balance(_ context.Context, botID string) (*domain.Balance, error) {
	f.record("balance:" + botID)
	return f.balance, f.err
}

func (f *fakeAPI) History(_ context.Context, botID string, limit int) ([]domain.HistoryEvent, error) {
	f.record("history")
	f.histArgs = [2]any{botID, limit}
	return f.events, f.err
}

func (f *fakeAPI) Register(_ context.Context, req domain.RegisterRequest) (*domain.Registration, error) {
	f.record("register")
	f.regReq = req
	return f.reg, f.err
}

func (f *fakeAPI) Payment(_ context.Context, id string) (json.RawMessage, error) {
	f.record("payment:" + id)
	return f.raw, f.err
}

func (f *fakeAPI) ListPayments(_ context.Context, limit, offset int) (json.RawMessage, error) {
	f.record("list_payments")
	f.listArgs = [2]int{limit, offset}
	return f.raw, f.err
}

func (f *fakeAPI) Health(_ context.Context) (json.RawMessage, error) {
	f.record("health")
	return f.raw, f.err
}

// fakeDialer hands out the same fakeAPI and remembers the last identity.
type fakeDialer struct {
	api *fakeAPI
	ids []domain.Identity
}

func (d *fakeDialer) For(id domain.Identity) facilitator.API {
	d.ids = append(d.ids, id)
	return d.api
}

func envLookup(env map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func newTestDeps(env map[string]string, api *fakeAPI) (Deps, *fakeDialer) {
	d := &fakeDialer{api: api}
	cfg := config.Defaults()
	return Deps{
		Resolver:  config.NewResolver(cfg, envLookup(env)),
		Dialer:    d,
		Formatter: NewFormatter(""),
		Logger:    logger.Discard(),
	}, d
}

var withKey = map[string]string{config.EnvAPIKey: "sk_test"}

const validAddr = "0x1111111111111111111111111111111111111111"

func run(t *testing.T, tool domain.Tool, args string) *domain.ToolResult {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		return ResultFromError(err)
	}
	return res
}

func TestTools_MissingAPIKeyMakesNoCall(t *testing.T) {
	api := &fakeAPI{}
	deps, dialer := newTestDeps(map[string]string{}, api)

	for _, tool := range PayBotTools(deps, true) {
		args := `{}`
		switch tool.Name() {
		case NamePay:
			args = `{"amount":"1","recipient":"` + validAddr + `","resource":"r"}`
		case NameRegister:
			args = `{"botId":"b"}`
		case NameGetPayment:
			args = `{"paymentId":"p1"}`
		}
		res := run(t, tool, args)
		require.True(t, res.IsError, tool.Name())
		if tool.Name() == NameRegister {
			assert.Equal(t, "Registration failed: "+config.MissingAPIKeyMessage, res.Content)
		} else {
			assert.Equal(t, config.MissingAPIKeyMessage, res.Content, tool.Name())
		}
	}
	assert.Empty(t, api.calls)
	assert.Empty(t, dialer.ids)
}

func TestPayTool_Success(t *testing.T) {
	api := &fakeAPI{payRes: &domain.PaymentResult{
		Success: true, TxHash: "0xabc", CommissionRate: 0.02, CommissionAmount: "1000",
	}}
	deps, dialer := newTestDeps(map[string]string{config.EnvAPIKey: "sk_test", config.EnvBotID: "shopper"}, api)

	res := run(t, NewPayTool(deps), `{"amount":" 0.05 ","recipient":"`+validAddr+`","resource":"https://api.example.com/data"}`)

	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "Payment successful!\n"+
		"Transaction: 0xabc\n"+
		"Amount: $0.05 USDC\n"+
		"Recipient: "+validAddr+"\n"+
		"Commission: 2% ($0.001000)\n"+
		"Explorer: https://sepolia.basescan.org/tx/0xabc", res.Content)
	assert.Equal(t, domain.PaymentRequest{
		Resource: "https://api.example.com/data",
		Amount:   "0.05",
		PayTo:    validAddr,
		Network:  "eip155:84532",
		BotID:    "shopper",
	}, api.payReq)
	require.Len(t, dialer.ids, 1)
	assert.Equal(t, "sk_test", dialer.ids[0].APIKey)
}

func TestPayTool_UnknownNetworkOmitsExplorer(t *testing.T) {
	api := &fakeAPI{payRes: &domain.PaymentResult{
		Success: true, TxHash: "0xdef", CommissionRate: 0.02, CommissionAmount: "1000", Network: "eip155:999999",
	}}
	deps, _ := newTestDeps(withKey, api)

	res := run(t, NewPayTool(deps), `{"amount":"0.05","recipient":"`+validAddr+`","resource":"r"}`)

	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "Payment successful!\n"+
		"Transaction: 0xdef\n"+
		"Amount: $0.05 USDC\n"+
		"Recipient: "+validAddr+"\n"+
		"Commission: 2% ($0.001000)\n"+
		"Network: eip155:999999", res.Content)
	assert.NotContains(t, res.Content, "Explorer:")
}

func TestPayTool_Declined(t *testing.T) {
	api := &fakeAPI{payRes: &domain.PaymentResult{Success: false, Error: "Daily limit exceeded"}}
	deps, _ := newTestDeps(withKey, api)

	res := run(t, NewPayTool(deps), `{"amount":"100","recipient":"`+validAddr+`","resource":"r"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "Payment failed: Daily limit exceeded", res.Content)
}

func TestPayTool_InvalidArgumentsMakeNoCall(t *testing.T) {
	api := &fakeAPI{}
	deps, _ := newTestDeps(withKey, api)
	tool := NewPayTool(deps)

	for _, args := range []string{
		`{"amount":"-1","recipient":"` + validAddr + `","resource":"r"}`,
		`{"amount":"abc","recipient":"` + validAddr + `","resource":"r"}`,
		`{"amount":"0.0000001","recipient":"` + validAddr + `","resource":"r"}`,
		`{"amount":"1","recipient":"0x12","resource":"r"}`,
		`{"amount":"1","recipient":"` + validAddr + `","resource":"r","network":"base"}`,
	} {
		res := run(t, tool, args)
		assert.True(t, res.IsError, args)
		assert.True(t, strings.HasPrefix(res.Content, "invalid arguments:"), res.Content)
	}
	assert.Empty(t, api.calls)
}

func TestPayTool_HTTPErrorBecomesErrorResult(t *testing.T) {
	api := &fakeAPI{err: domain.NewHTTPError("facilitator.pay", 402, `{"error":"insufficient funds"}`, "insufficient funds")}
	deps, _ := newTestDeps(withKey, api)

	res := run(t, NewPayTool(deps), `{"amount":"1","recipient":"`+validAddr+`","resource":"r"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, `PayBot API error (402): {"error":"insufficient funds"}`, res.Content)
}

func TestBalanceTool(t *testing.T) {
	api := &fakeAPI{balance: &domain.Balance{
		TrustLevel: 1, TrustLevelName: "basic",
		DailySpentUSD: 1, DailyLimitUSD: 10, DailyRemainingUSD: 9,
		HourlyTransactions: 1, HourlyLimit: 5,
	}}
	deps, _ := newTestDeps(withKey, api)

	res := run(t, NewBalanceTool(deps), `{"botId":"alpha"}`)
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, []string{"balance:alpha"}, api.calls)
	assert.True(t, strings.HasPrefix(res.Content, "Bot: alpha\nTrust Level: 1 (basic)\n"), res.Content)
}

func TestBalanceTool_DefaultBotID(t *testing.T) {
	api := &fakeAPI{balance: &domain.Balance{}}
	deps, _ := newTestDeps(withKey, api)

	run(t, NewBalanceTool(deps), `{}`)
	assert.Equal(t, []string{"balance:" + config.DefaultBotID}, api.calls)
}

func TestHistoryTool(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		api := &fakeAPI{}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewHistoryTool(deps), `{}`)
		assert.False(t, res.IsError)
		assert.Equal(t, "No payment history found.", res.Content)
		assert.Equal(t, [2]any{config.DefaultBotID, 10}, api.histArgs)
	})

	t.Run("events", func(t *testing.T) {
		ts := domain.Timestamp{Time: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
		api := &fakeAPI{events: []domain.HistoryEvent{{EventType: "payment", Action: "settled", Timestamp: ts}}}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewHistoryTool(deps), `{"botId":"b","limit":3}`)
		assert.Equal(t, "Recent events:\n1. [payment] settled (2025-06-01T12:00:00.000Z)", res.Content)
		assert.Equal(t, [2]any{"b", 3}, api.histArgs)
	})

	t.Run("transport error is retryable", func(t *testing.T) {
		api := &fakeAPI{err: domain.NewTransportError("facilitator.history", errors.New("connection refused"))}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewHistoryTool(deps), `{}`)
		assert.True(t, res.IsError)
		assert.True(t, res.IsRetryable)
		assert.Contains(t, res.Content, "PayBot API unreachable: connection refused")
	})
}

func TestRegisterTool(t *testing.T) {
	t.Run("success uses assigned level", func(t *testing.T) {
		api := &fakeAPI{reg: &domain.Registration{BotID: "new-bot", TrustLevel: 2}}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewRegisterTool(deps), `{"botId":"new-bot"}`)
		require.False(t, res.IsError, res.Content)
		assert.Equal(t, `Bot "new-bot" registered at trust level 2. Ready to make payments.`, res.Content)
		assert.Equal(t, domain.RegisterRequest{BotID: "new-bot", TrustLevel: 1}, api.regReq)
	})

	t.Run("duplicate", func(t *testing.T) {
		api := &fakeAPI{err: domain.NewHTTPError("facilitator.register", 409, `{"error":"duplicate bot"}`, "duplicate bot")}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewRegisterTool(deps), `{"botId":"dup","trustLevel":3}`)
		assert.True(t, res.IsError)
		assert.Equal(t, "Registration failed: duplicate bot", res.Content)
	})

	t.Run("out of range never calls", func(t *testing.T) {
		api := &fakeAPI{}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewRegisterTool(deps), `{"botId":"b","trustLevel":9}`)
		assert.Equal(t, "Registration failed: trustLevel must be 0-5", res.Content)
		assert.Empty(t, api.calls)
	})
}

func TestPayTool_IdempotencyKey(t *testing.T) {
	args := `{"amount":"1","recipient":"` + validAddr + `","resource":"r","idempotencyKey":" order-42 "}`

	t.Run("core tool ignores it", func(t *testing.T) {
		api := &fakeAPI{payRes: &domain.PaymentResult{Success: true}}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewPayTool(deps), args)
		require.False(t, res.IsError, res.Content)
		assert.Empty(t, api.payReq.IdempotencyKey)
		assert.NotContains(t, string(NewPayTool(deps).Schema().Parameters), "idempotencyKey")
	})

	t.Run("extended tool forwards it", func(t *testing.T) {
		api := &fakeAPI{payRes: &domain.PaymentResult{Success: true}}
		deps, _ := newTestDeps(withKey, api)
		res := run(t, NewExtendedPayTool(deps), args)
		require.False(t, res.IsError, res.Content)
		assert.Equal(t, "order-42", api.payReq.IdempotencyKey)
		assert.Equal(t, NamePay, PayBotTools(deps, true)[0].Name())
		assert.Contains(t, string(PayBotTools(deps, true)[0].Schema().Parameters), "idempotencyKey")
	})
}

func TestListPaymentsTool_Paging(t *testing.T) {
	tests := []struct {
		name string
		args string
		want [2]int
	}{
		{"unset", `{}`, [2]int{0, 0}},
		{"limit only", `{"limit":5}`, [2]int{5, 0}},
		{"both", `{"limit":5,"offset":10}`, [2]int{5, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{raw: json.RawMessage(`{"payments":[]}`)}
			deps, _ := newTestDeps(withKey, api)
			res := run(t, NewListPaymentsTool(deps), tt.args)
			require.False(t, res.IsError, res.Content)
			assert.Equal(t, tt.want, api.listArgs)
		})
	}
}

func TestExtendedTools(t *testing.T) {
	api := &fakeAPI{raw: json.RawMessage(`{"id":"p1","status":"settled"}`)}
	deps, _ := newTestDeps(withKey, api)

	res := run(t, NewGetPaymentTool(deps), `{"paymentId":"p1"}`)
	require.False(t, res.IsError, res.Content)
	assert.JSONEq(t, `{"id":"p1","status":"settled"}`, res.Content)

	run(t, NewListPaymentsTool(deps), `{"limit":5}`)
	run(t, NewHealthTool(deps), `{}`)
	assert.Equal(t, []string{"payment:p1", "list_payments", "health"}, api.calls)

	assert.Len(t, PayBotTools(deps, false), 4)
	assert.Len(t, PayBotTools(deps, true), 7)
}

func TestPayTool_EndToEnd(t *testing.T) {
	var gotAuth, gotBotHeader, gotIdem string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotBotHeader = r.Header.Get("X-Bot-Id")
		gotIdem = r.Header.Get("Idempotency-Key")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"txHash":"0xfeed","commissionRate":0.025,"commissionAmount":"2500","network":"eip155:84532"}`))
	}))
	defer srv.Close()

	cfg := config.Defaults()
	deps := Deps{
		Resolver: config.NewResolver(cfg, envLookup(map[string]string{
			config.EnvAPIKey:         "sk_live",
			config.EnvFacilitatorURL: srv.URL + "/",
		})),
		Dialer:    facilitator.NewDialer(cfg.Facilitator, logger.Discard()),
		Formatter: NewFormatter(cfg.Tools.ExplorerURL),
		Logger:    logger.Discard(),
	}

	res := run(t, NewPayTool(deps), `{"amount":"0.1","recipient":"`+validAddr+`","resource":"https://api.example.com","botId":"e2e"}`)
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "Payment successful!\n"+
		"Transaction: 0xfeed\n"+
		"Amount: $0.1 USDC\n"+
		"Recipient: "+validAddr+"\n"+
		"Commission: 2.5% ($0.002500)\n"+
		"Network: eip155:84532\n"+
		"Explorer: https://sepolia.basescan.org/tx/0xfeed", res.Content)

	assert.Equal(t, "Bearer sk_live", gotAuth)
	assert.Equal(t, "e2e", gotBotHeader)
	assert.Empty(t, gotIdem)
	assert.Equal(t, map[string]any{
		"resource": "https://api.example.com",
		"amount":   "0.1",
		"payTo":    validAddr,
		"network":  "eip155:84532",
		"botId":    "e2e",
	}, gotBody)
}
