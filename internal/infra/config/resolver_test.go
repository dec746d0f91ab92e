package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paybot-mcp/internal/domain"
)

const testWalletKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestResolveMissingAPIKey(t *testing.T) {
	r := NewResolver(Defaults(), envMap(nil))

	_, err := r.Resolve("")
	require.Error(t, err)
	assert.Equal(t, MissingAPIKeyMessage, err.Error())
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)

	var fe *domain.FacilitatorError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, domain.KindConfiguration, fe.Kind)
}

func TestResolveEmptyEnvCountsAsUnset(t *testing.T) {
	r := NewResolver(Defaults(), envMap(map[string]string{
		EnvAPIKey:         "  ",
		EnvAPIKeyFallback: "fallback-key",
	}))

	id, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "fallback-key", id.APIKey)
}

func TestResolvePrecedence(t *testing.T) {
	cfg := Defaults()
	cfg.Facilitator.APIKey = "file-key"
	cfg.Facilitator.URL = "https://file.example.com"
	cfg.Facilitator.BotID = "file-bot"

	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
		wantURL string
		wantBot string
	}{
		{
			name:    "file only",
			env:     nil,
			wantKey: "file-key",
			wantURL: "https://file.example.com",
			wantBot: "file-bot",
		},
		{
			name: "fallback env beats file",
			env: map[string]string{
				EnvAPIKeyFallback:      "fallback-key",
				EnvFacilitatorFallback: "https://x402.example.com/",
			},
			wantKey: "fallback-key",
			wantURL: "https://x402.example.com",
			wantBot: "file-bot",
		},
		{
			name: "primary env beats fallback",
			env: map[string]string{
				EnvAPIKey:              "primary-key",
				EnvAPIKeyFallback:      "fallback-key",
				EnvFacilitatorURL:      "https://paybot.example.com",
				EnvFacilitatorFallback: "https://x402.example.com",
				EnvBotID:               "env-bot",
			},
			wantKey: "primary-key",
			wantURL: "https://paybot.example.com",
			wantBot: "env-bot",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewResolver(cfg, envMap(tt.env)).Resolve("")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, id.APIKey)
			assert.Equal(t, tt.wantURL, id.BaseURL)
			assert.Equal(t, tt.wantBot, id.BotID)
		})
	}
}

func TestResolveBuiltinDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Facilitator.URL = ""
	cfg.Facilitator.BotID = ""
	r := NewResolver(cfg, envMap(map[string]string{EnvAPIKey: "k"}))

	id, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFacilitatorURL, id.BaseURL)
	assert.Equal(t, DefaultBotID, id.BotID)
}

func TestResolveExplicitBotIDWins(t *testing.T) {
	r := NewResolver(Defaults(), envMap(map[string]string{EnvAPIKey: "k", EnvBotID: "env-bot"}))

	id, err := r.Resolve("explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", id.BotID)
}

func TestResolveRereadsEnvironmentEachCall(t *testing.T) {
	env := map[string]string{}
	r := NewResolver(Defaults(), envMap(env))

	_, err := r.Resolve("")
	require.Error(t, err)

	env[EnvAPIKey] = "late-key"
	id, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "late-key", id.APIKey)

	env[EnvAPIKey] = "rotated-key"
	id, err = r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "rotated-key", id.APIKey)
}

func TestResolveWalletKey(t *testing.T) {
	r := NewResolver(Defaults(), envMap(map[string]string{EnvAPIKey: "k", EnvWalletKey: testWalletKey}))
	id, err := r.Resolve("")
	require.NoError(t, err)
	assert.True(t, id.HasWalletKey())

	r = NewResolver(Defaults(), envMap(map[string]string{EnvAPIKey: "k", EnvWalletKey: "0xnothex"}))
	_, err = r.Resolve("")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidWalletKey)
	assert.Contains(t, err.Error(), "Invalid PAYBOT_WALLET_KEY")
}

func TestResolveInvalidURL(t *testing.T) {
	r := NewResolver(Defaults(), envMap(map[string]string{EnvAPIKey: "k", EnvFacilitatorURL: "localhost:3000"}))
	_, err := r.Resolve("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid PayBot facilitator URL")
}

func TestResolveEncryptedKeyWithoutPassphrase(t *testing.T) {
	cfg := Defaults()
	cfg.Facilitator.APIKey = "enc:aa:bb"
	_, err := NewResolver(cfg, envMap(nil)).Resolve("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvConfigKey)
}

func TestResolverDefaults(t *testing.T) {
	r := NewResolver(Defaults(), envMap(nil))

	assert.Equal(t, 10, r.HistoryLimit(nil))
	five := 5
	assert.Equal(t, 5, r.HistoryLimit(&five))

	assert.Equal(t, 1, r.TrustLevel(nil))
	zero := 0
	assert.Equal(t, 0, r.TrustLevel(&zero))

	assert.Equal(t, "eip155:84532", r.Network(""))
	assert.Equal(t, "eip155:8453", r.Network("eip155:8453"))
}

func TestValidateWalletKey(t *testing.T) {
	assert.NoError(t, ValidateWalletKey(testWalletKey))
	assert.NoError(t, ValidateWalletKey(testWalletKey[2:]))
	assert.Error(t, ValidateWalletKey("0x1234"))
	assert.Error(t, ValidateWalletKey("0x"+"zz"+testWalletKey[4:]))
}
