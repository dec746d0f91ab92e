package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"paybot-mcp/internal/domain"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Facilitator.URL != "http://localhost:3000" {
		t.Errorf("Facilitator.URL = %q, want %q", cfg.Facilitator.URL, "http://localhost:3000")
	}
	if cfg.Facilitator.BotID != "mcp-agent" {
		t.Errorf("Facilitator.BotID = %q, want %q", cfg.Facilitator.BotID, "mcp-agent")
	}
	if cfg.Facilitator.Timeout != 30*time.Second {
		t.Errorf("Facilitator.Timeout = %v, want 30s", cfg.Facilitator.Timeout)
	}
	if cfg.Tools.HistoryLimit != 10 {
		t.Errorf("Tools.HistoryLimit = %d, want 10", cfg.Tools.HistoryLimit)
	}
	if cfg.Tools.RegisterTrustLevel != 1 {
		t.Errorf("Tools.RegisterTrustLevel = %d, want 1", cfg.Tools.RegisterTrustLevel)
	}
	if cfg.Server.Transport != "stdio" {
		t.Errorf("Server.Transport = %q, want stdio", cfg.Server.Transport)
	}
	if cfg.Logger.Output != "stderr" {
		t.Errorf("Logger.Output = %q, want stderr", cfg.Logger.Output)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load("/tmp/nonexistent-paybot-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tools.HistoryLimit != 10 {
		t.Errorf("expected defaults, got HistoryLimit=%d", cfg.Tools.HistoryLimit)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
facilitator:
  url: "https://facilitator.example.com"
  bot_id: "shopper"
  timeout: 5s
  endpoints:
    balance: "/api/bots/{botId}/limits"
tools:
  extended: true
  history_limit: 25
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Facilitator.URL != "https://facilitator.example.com" {
		t.Errorf("URL = %q", cfg.Facilitator.URL)
	}
	if cfg.Facilitator.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Facilitator.Timeout)
	}
	if cfg.Facilitator.Endpoints.Balance != "/api/bots/{botId}/limits" {
		t.Errorf("Balance endpoint = %q", cfg.Facilitator.Endpoints.Balance)
	}
	// Unset endpoints keep their defaults.
	if cfg.Facilitator.Endpoints.Pay != "/v1/payments" {
		t.Errorf("Pay endpoint = %q, want default", cfg.Facilitator.Endpoints.Pay)
	}
	if !cfg.Tools.Extended || cfg.Tools.HistoryLimit != 25 {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tools:\n  history_limit: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "tools.history_limit must be >= 1")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAYBOT_LOG_LEVEL", "warn")
	t.Setenv("PAYBOT_LOG_FORMAT", "json")
	t.Setenv("PAYBOT_TRANSPORT", "http")
	t.Setenv("PAYBOT_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("PAYBOT_FACILITATOR_TIMEOUT", "2s")
	t.Setenv("PAYBOT_TOOLS_EXTENDED", "true")
	t.Setenv("PAYBOT_HISTORY_LIMIT", "3")
	t.Setenv("PAYBOT_DEFAULT_NETWORK", "eip155:8453")
	t.Setenv("PAYBOT_CIRCUIT_BREAKER", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Logger.Level != "warn" || cfg.Logger.Format != "json" {
		t.Errorf("Logger = %+v", cfg.Logger)
	}
	if cfg.Server.Transport != "http" || cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Facilitator.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Facilitator.Timeout)
	}
	if !cfg.Facilitator.CircuitBreaker.Enabled {
		t.Error("expected circuit breaker enabled")
	}
	if !cfg.Tools.Extended || cfg.Tools.HistoryLimit != 3 || cfg.Tools.DefaultNetwork != "eip155:8453" {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
}

func TestEnvOverridesIgnoreMalformedNumbers(t *testing.T) {
	t.Setenv("PAYBOT_HISTORY_LIMIT", "many")
	t.Setenv("PAYBOT_FACILITATOR_TIMEOUT", "-5s")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Tools.HistoryLimit != 10 {
		t.Errorf("HistoryLimit = %d, want 10", cfg.Tools.HistoryLimit)
	}
	if cfg.Facilitator.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Facilitator.Timeout)
	}
}

func TestEnvOverridesDoNotTouchIdentity(t *testing.T) {
	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvBotID, "env-bot")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Facilitator.APIKey != "" {
		t.Errorf("APIKey = %q, identity must be resolved per call", cfg.Facilitator.APIKey)
	}
	if cfg.Facilitator.BotID != DefaultBotID {
		t.Errorf("BotID = %q, want %q", cfg.Facilitator.BotID, DefaultBotID)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-pass"
	encrypted, err := EncryptValue("pk_live_secret", passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if decrypted != "pk_live_secret" {
		t.Errorf("decrypted = %q, want %q", decrypted, "pk_live_secret")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "correct-pass")
	if err != nil {
		t.Fatal(err)
	}

	_, err = DecryptValue(encrypted, "wrong-pass")
	if !errors.Is(err, domain.ErrDecryption) {
		t.Errorf("expected ErrDecryption with wrong passphrase, got %v", err)
	}
}

func TestDecryptValueInvalidFormat(t *testing.T) {
	if _, err := DecryptValue("nocolon", "passphrase"); err == nil {
		t.Error("expected error for missing separator")
	}
}

func TestDecryptValueInvalidSalt(t *testing.T) {
	if _, err := DecryptValue("zz:aabb", "passphrase"); err == nil {
		t.Error("expected error for invalid salt hex")
	}
}

func TestDecryptValueTooShort(t *testing.T) {
	// Valid hex but too short for nonce+ciphertext
	_, err := DecryptValue("aabbccddee112233aabbccddee112233:aabb", "passphrase")
	if err == nil {
		t.Error("expected error for ciphertext too short")
	}
}

func TestDecryptSecrets(t *testing.T) {
	passphrase := "test-config-key"
	wallet := "0x" + "ab12" + "00000000000000000000000000000000000000000000000000000000000c"

	encKey, err := EncryptValue("pk_test_123", passphrase)
	if err != nil {
		t.Fatal(err)
	}
	encWallet, err := EncryptValue(wallet, passphrase)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	cfg.Facilitator.APIKey = "enc:" + encKey
	cfg.Facilitator.WalletKey = "enc:" + encWallet

	if err := decryptSecrets(cfg, passphrase); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.Facilitator.APIKey != "pk_test_123" {
		t.Errorf("APIKey = %q", cfg.Facilitator.APIKey)
	}
	if cfg.Facilitator.WalletKey != wallet {
		t.Errorf("WalletKey = %q", cfg.Facilitator.WalletKey)
	}
}

func TestDecryptSecretsNoEncPrefix(t *testing.T) {
	cfg := Defaults()
	cfg.Facilitator.APIKey = "pk_plain"

	if err := decryptSecrets(cfg, "any-passphrase"); err != nil {
		t.Fatalf("decryptSecrets: %v", err)
	}
	if cfg.Facilitator.APIKey != "pk_plain" {
		t.Errorf("APIKey should remain unchanged")
	}
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.Facilitator.APIKey = "enc:notvalidhex"

	if err := decryptSecrets(cfg, "passphrase"); err == nil {
		t.Error("expected error for invalid ciphertext")
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	passphrase := "test-load-key"
	encrypted, err := EncryptValue("pk_loadtest", passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "facilitator:\n  api_key: \"enc:" + encrypted + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfigKey, passphrase)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Facilitator.APIKey != "pk_loadtest" {
		t.Errorf("APIKey = %q, want %q", cfg.Facilitator.APIKey, "pk_loadtest")
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "insecure.yaml")
	if err := os.WriteFile(path, []byte("tools:\n  extended: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	// Chmod after write so the process umask cannot mask the group/other bits.
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for insecure permissions")
	}
}

func TestValidatePermissionsOK(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte("test"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := validatePermissions(path); err != nil {
		t.Errorf("validatePermissions: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("invalid: [yaml: bad"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
