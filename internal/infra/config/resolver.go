package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"paybot-mcp/internal/domain"
)

// Environment variables read on every tool call.
const (
	EnvAPIKey              = "PAYBOT_API_KEY"
	EnvAPIKeyFallback      = "API_KEY"
	EnvFacilitatorURL      = "PAYBOT_FACILITATOR_URL"
	EnvFacilitatorFallback = "X402_FACILITATOR_URL"
	EnvBotID               = "PAYBOT_BOT_ID"
	EnvWalletKey           = "PAYBOT_WALLET_KEY"

	// EnvConfigKey holds the passphrase for "enc:" values in the config file.
	EnvConfigKey = "PAYBOT_CONFIG_KEY"
)

const (
	DefaultFacilitatorURL = "http://localhost:3000"
	DefaultBotID          = "mcp-agent"
)

// MissingAPIKeyMessage is returned verbatim to the MCP client.
const MissingAPIKeyMessage = "PayBot MCP server requires an API key. " +
	"Set the PAYBOT_API_KEY (or API_KEY) environment variable before using PayBot tools."

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Resolver derives a fresh facilitator identity for each tool call.
// Precedence per field: primary env var, fallback env var, config file,
// built-in default. An empty variable counts as unset.
type Resolver struct {
	cfg    *Config
	lookup LookupFunc
}

// NewResolver creates a Resolver. A nil lookup reads the process environment.
func NewResolver(cfg *Config, lookup LookupFunc) *Resolver {
	if cfg == nil {
		cfg = Defaults()
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Resolver{cfg: cfg, lookup: lookup}
}

// Resolve builds the identity for one call. botID overrides the configured
// bot id when non-empty. It returns a configuration FacilitatorError when
// the API key is missing or the wallet key is malformed; no network call
// should follow such an error.
func (r *Resolver) Resolve(botID string) (domain.Identity, error) {
	id := domain.Identity{
		APIKey:    r.first(EnvAPIKey, EnvAPIKeyFallback, r.cfg.Facilitator.APIKey, ""),
		BaseURL:   r.first(EnvFacilitatorURL, EnvFacilitatorFallback, r.cfg.Facilitator.URL, DefaultFacilitatorURL),
		BotID:     strings.TrimSpace(botID),
		WalletKey: r.first(EnvWalletKey, "", r.cfg.Facilitator.WalletKey, ""),
	}
	if id.BotID == "" {
		id.BotID = r.DefaultBotID()
	}
	id.BaseURL = strings.TrimRight(id.BaseURL, "/")

	if id.APIKey == "" {
		return domain.Identity{}, domain.NewConfigurationError(domain.ErrMissingAPIKey, MissingAPIKeyMessage)
	}
	if strings.HasPrefix(id.APIKey, "enc:") {
		return domain.Identity{}, domain.NewConfigurationError(domain.ErrMissingAPIKey,
			"PayBot API key is encrypted; set "+EnvConfigKey+" to decrypt it.")
	}
	if err := validateBaseURL(id.BaseURL); err != nil {
		return domain.Identity{}, domain.NewConfigurationError(domain.ErrConfigLoad,
			fmt.Sprintf("Invalid PayBot facilitator URL %q: %v", id.BaseURL, err))
	}
	if id.WalletKey != "" {
		if err := ValidateWalletKey(id.WalletKey); err != nil {
			return domain.Identity{}, domain.NewConfigurationError(domain.ErrInvalidWalletKey,
				"Invalid PAYBOT_WALLET_KEY: "+err.Error())
		}
	}
	return id, nil
}

// DefaultBotID returns the bot id used when a call does not name one.
func (r *Resolver) DefaultBotID() string {
	return r.first(EnvBotID, "", r.cfg.Facilitator.BotID, DefaultBotID)
}

// Network returns requested, or the configured default network.
func (r *Resolver) Network(requested string) string {
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return r.cfg.Tools.DefaultNetwork
}

// HistoryLimit returns requested, or the configured default when nil.
func (r *Resolver) HistoryLimit(requested *int) int {
	if requested != nil {
		return *requested
	}
	return r.cfg.Tools.HistoryLimit
}

// TrustLevel returns requested, or the configured registration default when nil.
func (r *Resolver) TrustLevel(requested *int) int {
	if requested != nil {
		return *requested
	}
	return r.cfg.Tools.RegisterTrustLevel
}

func (r *Resolver) first(primary, fallback, fromFile, def string) string {
	for _, key := range []string{primary, fallback} {
		if key == "" {
			continue
		}
		if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if fromFile != "" {
		return fromFile
	}
	return def
}

// ValidateWalletKey checks for a 32-byte hex private key with optional 0x prefix.
func ValidateWalletKey(key string) error {
	k := strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X")
	if len(k) != 64 {
		return fmt.Errorf("expected 64 hex characters, got %d", len(k))
	}
	if _, err := hex.DecodeString(k); err != nil {
		return fmt.Errorf("not valid hex")
	}
	return nil
}
