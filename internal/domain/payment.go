package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Identity is the per-call facilitator identity. It is re-derived from
// configuration at the start of every tool invocation and never cached.
type Identity struct {
	APIKey    string
	BaseURL   string
	BotID     string
	WalletKey string // optional; used only for local signing, never sent
}

// HasWalletKey reports whether a local signing key was configured.
func (i Identity) HasWalletKey() bool { return i.WalletKey != "" }

// PaymentRequest is the outbound payment body.
type PaymentRequest struct {
	Resource string `json:"resource"`
	Amount   string `json:"amount"`
	PayTo    string `json:"payTo"`
	Network  string `json:"network,omitempty"`
	BotID    string `json:"botId"`

	// IdempotencyKey travels as a header, not in the body.
	IdempotencyKey string `json:"-"`
}

// PaymentResult is the facilitator's answer to a payment request. A declined
// payment is a normal value with Success=false, not an error.
type PaymentResult struct {
	Success          bool    `json:"success"`
	TxHash           string  `json:"txHash,omitempty"`
	CommissionRate   float64 `json:"commissionRate"`
	CommissionAmount Units   `json:"commissionAmount"`
	Network          string  `json:"network,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Balance reports a bot's spending limits as computed by the facilitator.
type Balance struct {
	BotID              string  `json:"botId"`
	TrustLevel         int     `json:"trustLevel"`
	TrustLevelName     string  `json:"trustLevelName"`
	DailySpentUSD      float64 `json:"dailySpentUsd"`
	DailyLimitUSD      float64 `json:"dailyLimitUsd"`
	DailyRemainingUSD  float64 `json:"dailyRemainingUsd"`
	HourlyTransactions int     `json:"hourlyTransactions"`
	HourlyLimit        int     `json:"hourlyLimit"`
}

// HistoryEvent is one audit entry for a bot.
type HistoryEvent struct {
	EventType string    `json:"eventType"`
	Action    string    `json:"action"`
	Timestamp Timestamp `json:"timestamp"`
}

// RegisterRequest is the outbound bot registration body.
type RegisterRequest struct {
	BotID      string `json:"botId"`
	TrustLevel int    `json:"trustLevel"`
}

// Registration is the facilitator's answer to a registration request.
// TrustLevel is authoritative and may differ from the requested level.
type Registration struct {
	BotID      string `json:"botId"`
	TrustLevel int    `json:"trustLevel"`
}

// MinTrustLevel and MaxTrustLevel bound the facilitator's trust scale.
const (
	MinTrustLevel = 0
	MaxTrustLevel = 5
)

// Units is an integer amount in the smallest USDC unit (1e6 per USDC). The
// facilitator may encode it as a JSON number or as a decimal string.
type Units string

// UnmarshalJSON accepts 250000, "250000" and null.
func (u *Units) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*u = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = Units(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("units: %w", err)
	}
	*u = Units(n.String())
	return nil
}

// Timestamp accepts epoch milliseconds (number or numeric string) or an
// ISO-8601 string.
type Timestamp struct {
	time.Time
}

// isoLayouts are tried in order for string timestamps.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("timestamp: missing value")
	}
	if data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		return t.setEpochMillis(ms)
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return t.setEpochMillis(ms)
	}
	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// maxEpochMillis is the widest instant an ECMAScript Date can hold,
// 100,000,000 days either side of the epoch.
const maxEpochMillis = 8.64e15

func (t *Timestamp) setEpochMillis(ms float64) error {
	if math.IsNaN(ms) || math.Abs(ms) > maxEpochMillis {
		return fmt.Errorf("timestamp: epoch milliseconds %g out of range", ms)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON renders the timestamp in ISO form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ISO())
}

// ISO renders the timestamp as UTC ISO-8601 with millisecond precision,
// e.g. 2025-01-02T03:04:05.000Z.
func (t Timestamp) ISO() string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
