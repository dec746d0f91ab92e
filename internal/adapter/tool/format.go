package tool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"paybot-mcp/internal/domain"
)

// Fixed response texts.
const (
	noHistoryText     = "No payment history found."
	historyHeaderText = "Recent events:"
	missingTxHash     = "n/a"
)

// explorerTemplates maps CAIP-2 networks to block explorer transaction URLs.
var explorerTemplates = map[string]string{
	"eip155:1":        "https://etherscan.io/tx/{txHash}",
	"eip155:11155111": "https://sepolia.etherscan.io/tx/{txHash}",
	"eip155:8453":     "https://basescan.org/tx/{txHash}",
	"eip155:84532":    "https://sepolia.basescan.org/tx/{txHash}",
	"eip155:137":      "https://polygonscan.com/tx/{txHash}",
	"eip155:80002":    "https://amoy.polygonscan.com/tx/{txHash}",
	"eip155:43114":    "https://snowtrace.io/tx/{txHash}",
	"eip155:43113":    "https://testnet.snowtrace.io/tx/{txHash}",
}

// Formatter renders facilitator responses as the single text block each tool
// returns. Numeric formats are fixed per field.
type Formatter struct {
	explorerFallback string
}

// NewFormatter creates a Formatter. fallback is the explorer template used
// for networks without a known explorer; "" omits the explorer line then.
func NewFormatter(fallback string) *Formatter {
	return &Formatter{explorerFallback: fallback}
}

// PaymentSucceeded renders a successful payment. amount and recipient are
// echoed from the request; network is the one the request asked for and is
// only used when the facilitator does not report one.
func (f *Formatter) PaymentSucceeded(amount, recipient, network string, res *domain.PaymentResult) string {
	txHash := res.TxHash
	if txHash == "" {
		txHash = missingTxHash
	}

	lines := []string{
		"Payment successful!",
		"Transaction: " + txHash,
		"Amount: $" + amount + " USDC",
		"Recipient: " + recipient,
		"Commission: " + FormatCommission(res.CommissionRate, res.CommissionAmount),
	}
	if res.Network != "" {
		lines = append(lines, "Network: "+res.Network)
		network = res.Network
	}
	if res.TxHash != "" {
		if url := f.ExplorerURL(network, res.TxHash); url != "" {
			lines = append(lines, "Explorer: "+url)
		}
	}
	return strings.Join(lines, "\n")
}

// PaymentFailed renders a declined payment.
func (f *Formatter) PaymentFailed(res *domain.PaymentResult) string {
	msg := res.Error
	if msg == "" {
		msg = "unknown error"
	}
	return domain.NewBusinessError("tool.pay", msg).Error()
}

// ExplorerURL returns the transaction URL for txHash on network.
func (f *Formatter) ExplorerURL(network, txHash string) string {
	tmpl, ok := explorerTemplates[network]
	if !ok {
		tmpl = f.explorerFallback
	}
	if tmpl == "" {
		return ""
	}
	return strings.ReplaceAll(tmpl, "{txHash}", txHash)
}

// Balance renders spending limits. botID is used when the facilitator
// omits it from the response.
func (f *Formatter) Balance(b *domain.Balance, botID string) string {
	if b.BotID != "" {
		botID = b.BotID
	}
	trust := strconv.Itoa(b.TrustLevel)
	if b.TrustLevelName != "" {
		trust += " (" + b.TrustLevelName + ")"
	}
	return strings.Join([]string{
		"Bot: " + botID,
		"Trust Level: " + trust,
		"Daily Spent: " + FormatUSD(b.DailySpentUSD),
		"Daily Limit: " + FormatUSD(b.DailyLimitUSD),
		"Remaining: " + FormatUSD(b.DailyRemainingUSD),
		fmt.Sprintf("Hourly Transactions: %d/%d", b.HourlyTransactions, b.HourlyLimit),
	}, "\n")
}

// History renders events 1-indexed in the order given.
func (f *Formatter) History(events []domain.HistoryEvent) string {
	if len(events) == 0 {
		return noHistoryText
	}
	var sb strings.Builder
	sb.WriteString(historyHeaderText)
	for i, e := range events {
		fmt.Fprintf(&sb, "\n%d. [%s] %s (%s)", i+1, e.EventType, e.Action, e.Timestamp.ISO())
	}
	return sb.String()
}

// Registered renders a successful registration with the assigned level.
func (f *Formatter) Registered(botID string, trustLevel int) string {
	return `Bot "` + botID + `" registered at trust level ` + strconv.Itoa(trustLevel) + `. Ready to make payments.`
}

// RegistrationFailed renders any registration error. Facilitator errors use
// their own message; anything else is stringified.
func (f *Formatter) RegistrationFailed(err error) string {
	return "Registration failed: " + registrationMessage(err)
}

func registrationMessage(err error) string {
	fe, ok := asFacilitatorError(err)
	if !ok {
		return err.Error()
	}
	switch fe.Kind {
	case domain.KindHTTP, domain.KindConfiguration, domain.KindBusiness:
		return fe.Message
	default:
		return fe.Error()
	}
}

// FormatCommission renders "{rate*100}% (${amount/1e6 with 6 digits})".
func FormatCommission(rate float64, amount domain.Units) string {
	return FormatPercent(rate) + "% ($" + FormatUnits(amount) + ")"
}

// FormatPercent renders a fraction as a percentage using the shortest
// representation that round-trips, e.g. 0.025 -> "2.5".
func FormatPercent(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', -1, 64)
}

// FormatUnits converts smallest-unit USDC to a 6-digit decimal string.
// Empty renders as zero; unparsable input renders "NaN".
func FormatUnits(amount domain.Units) string {
	if amount == "" {
		return decimal.Zero.StringFixed(usdcDecimals)
	}
	d, err := decimal.NewFromString(string(amount))
	if err != nil {
		return "NaN"
	}
	return d.Shift(-usdcDecimals).StringFixed(usdcDecimals)
}

// FormatUSD renders "$x.xx". Halves round away from zero on the exact
// binary value, so 0.125 -> $0.13 while 1.005 (really 1.00499...) -> $1.00.
func FormatUSD(v float64) string {
	exact, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', 40, 64))
	if err != nil {
		return fmt.Sprintf("$%.2f", v)
	}
	return "$" + exact.StringFixed(2)
}
