package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"paybot-mcp/internal/domain"
)

// Config is the top-level application configuration.
//
// Facilitator identity (API key, base URL, bot id, wallet key) is NOT
// frozen here: the file only provides fallbacks, and Resolver re-reads the
// environment on every tool call.
type Config struct {
	Facilitator FacilitatorConfig `yaml:"facilitator"`
	Tools       ToolsConfig       `yaml:"tools"`
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
}

// FacilitatorConfig holds the PayBot facilitator connection settings.
type FacilitatorConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`    // may be "enc:..."
	BotID     string `yaml:"bot_id"`
	WalletKey string `yaml:"wallet_key"` // may be "enc:..."

	// Timeout bounds each facilitator request. 0 disables the internal
	// timeout and leaves it to the network layer.
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`

	Endpoints      EndpointsConfig      `yaml:"endpoints"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Pool           PoolConfig           `yaml:"pool"`
}

// EndpointsConfig holds facilitator REST paths. "{botId}" and "{id}" are
// substituted per call.
type EndpointsConfig struct {
	Pay      string `yaml:"pay"`
	Balance  string `yaml:"balance"`
	History  string `yaml:"history"`
	Register string `yaml:"register"`
	Payment  string `yaml:"payment"`
	Payments string `yaml:"payments"`
	Health   string `yaml:"health"`
}

// CircuitBreakerConfig configures the optional facilitator circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig configures HTTP connection pooling towards the facilitator.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ToolsConfig centralizes the defaults tool handlers would otherwise hardcode.
type ToolsConfig struct {
	Extended           bool   `yaml:"extended"`             // expose get_payment, list_payments, health
	DefaultNetwork     string `yaml:"default_network"`      // CAIP-2; "" lets the facilitator decide
	HistoryLimit       int    `yaml:"history_limit"`        // default 10
	RegisterTrustLevel int    `yaml:"register_trust_level"` // default 1
	ExplorerURL        string `yaml:"explorer_url"`         // fallback template with {txHash}
}

// ServerConfig holds MCP transport settings.
type ServerConfig struct {
	Name      string          `yaml:"name"`
	Transport string          `yaml:"transport"` // "stdio" or "http"
	Addr      string          `yaml:"addr"`      // http transport only
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits requests per client IP on the http transport.
type RateLimitConfig struct {
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Facilitator: FacilitatorConfig{
			URL:       DefaultFacilitatorURL,
			BotID:     DefaultBotID,
			Timeout:   30 * time.Second,
			UserAgent: "paybot-mcp",
			Endpoints: EndpointsConfig{
				Pay:      "/v1/payments",
				Balance:  "/v1/bots/{botId}/balance",
				History:  "/v1/bots/{botId}/history",
				Register: "/v1/bots",
				Payment:  "/v1/payments/{id}",
				Payments: "/v1/payments",
				Health:   "/health",
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     false,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			Pool: PoolConfig{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Tools: ToolsConfig{
			Extended:           false,
			DefaultNetwork:     "eip155:84532",
			HistoryLimit:       10,
			RegisterTrustLevel: 1,
			ExplorerURL:        "https://sepolia.basescan.org/tx/{txHash}",
		},
		Server: ServerConfig{
			Name:      "paybot",
			Transport: "stdio",
			Addr:      ":8090",
			RateLimit: RateLimitConfig{
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(EnvConfigKey); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps PAYBOT_* operational env vars to config fields.
// Identity variables are deliberately absent: Resolver reads them per call.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAYBOT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PAYBOT_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PAYBOT_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("PAYBOT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PAYBOT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("PAYBOT_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := os.Getenv("PAYBOT_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PAYBOT_FACILITATOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Facilitator.Timeout = d
		}
	}
	if v := os.Getenv("PAYBOT_CIRCUIT_BREAKER"); v == "true" {
		cfg.Facilitator.CircuitBreaker.Enabled = true
	}
	if v := os.Getenv("PAYBOT_TOOLS_EXTENDED"); v == "true" {
		cfg.Tools.Extended = true
	}
	if v := os.Getenv("PAYBOT_DEFAULT_NETWORK"); v != "" {
		cfg.Tools.DefaultNetwork = v
	}
	if v := os.Getenv("PAYBOT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Tools.HistoryLimit = n
		}
	}
}

// decryptSecrets finds "enc:..." values in facilitator secrets and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := map[string]*string{
		"facilitator.api_key":    &cfg.Facilitator.APIKey,
		"facilitator.wallet_key": &cfg.Facilitator.WalletKey,
	}
	for name, fp := range secrets {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", domain.NewDomainError("config.EncryptValue", domain.ErrEncryption, "generate salt: "+err.Error())
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", domain.NewDomainError("config.EncryptValue", domain.ErrEncryption, "generate nonce: "+err.Error())
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	salt, data, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", domain.NewDomainError("config.DecryptValue", domain.ErrDecryption, "invalid encrypted format")
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", domain.NewDomainError("config.DecryptValue", domain.ErrDecryption, "decode salt: "+err.Error())
	}
	raw, err := hex.DecodeString(data)
	if err != nil {
		return "", domain.NewDomainError("config.DecryptValue", domain.ErrDecryption, "decode ciphertext: "+err.Error())
	}

	gcm, err := newGCM(passphrase, saltBytes)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", domain.NewDomainError("config.DecryptValue", domain.ErrDecryption, "ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", domain.NewDomainError("config.DecryptValue", domain.ErrDecryption, err.Error())
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file is not writable by group/others,
// since it may carry the facilitator API key.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
