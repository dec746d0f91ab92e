package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"paybot-mcp/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
//
// A missing API key is not a validation error: the server must still start
// and answer tools/list, and the key is checked per call.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateFacilitator(cfg, ve)
	validateTools(cfg, ve)
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateFacilitator(cfg *Config, ve *ValidationError) {
	f := cfg.Facilitator
	if f.URL != "" {
		if err := validateBaseURL(f.URL); err != nil {
			ve.Add("facilitator.url: %v", err)
		}
	}
	if f.Timeout < 0 {
		ve.Add("facilitator.timeout must be >= 0")
	}
	if f.WalletKey != "" && !strings.HasPrefix(f.WalletKey, "enc:") {
		if err := ValidateWalletKey(f.WalletKey); err != nil {
			ve.Add("facilitator.wallet_key: %v", err)
		}
	}

	endpoints := map[string]string{
		"pay":      f.Endpoints.Pay,
		"balance":  f.Endpoints.Balance,
		"history":  f.Endpoints.History,
		"register": f.Endpoints.Register,
		"payment":  f.Endpoints.Payment,
		"payments": f.Endpoints.Payments,
		"health":   f.Endpoints.Health,
	}
	for name, path := range endpoints {
		if !strings.HasPrefix(path, "/") {
			ve.Add("facilitator.endpoints.%s must start with '/'", name)
		}
	}
	if !strings.Contains(f.Endpoints.Balance, "{botId}") {
		ve.Add("facilitator.endpoints.balance must contain {botId}")
	}
	if !strings.Contains(f.Endpoints.History, "{botId}") {
		ve.Add("facilitator.endpoints.history must contain {botId}")
	}
	if !strings.Contains(f.Endpoints.Payment, "{id}") {
		ve.Add("facilitator.endpoints.payment must contain {id}")
	}

	if f.CircuitBreaker.Enabled {
		if f.CircuitBreaker.MaxFailures == 0 {
			ve.Add("facilitator.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if f.CircuitBreaker.Timeout <= 0 {
			ve.Add("facilitator.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
	if f.Pool.MaxIdleConns < 0 || f.Pool.MaxIdleConnsPerHost < 0 {
		ve.Add("facilitator.pool sizes must be >= 0")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.HistoryLimit < 1 {
		ve.Add("tools.history_limit must be >= 1")
	}
	if t.RegisterTrustLevel < domain.MinTrustLevel || t.RegisterTrustLevel > domain.MaxTrustLevel {
		ve.Add("tools.register_trust_level must be between %d and %d", domain.MinTrustLevel, domain.MaxTrustLevel)
	}
	if t.ExplorerURL != "" && !strings.Contains(t.ExplorerURL, "{txHash}") {
		ve.Add("tools.explorer_url must contain {txHash}")
	}
	if t.DefaultNetwork != "" && !strings.Contains(t.DefaultNetwork, ":") {
		ve.Add("tools.default_network must be a CAIP-2 id (namespace:reference)")
	}
}

var validTransports = map[string]bool{
	"stdio": true,
	"http":  true,
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Name == "" {
		ve.Add("server.name must not be empty")
	}
	if !validTransports[s.Transport] {
		ve.Add("server.transport %q is invalid (valid: stdio, http)", s.Transport)
	}
	if s.Transport == "http" {
		if _, _, err := net.SplitHostPort(s.Addr); err != nil {
			ve.Add("server.addr %q is invalid: %v", s.Addr, err)
		}
		if s.RateLimit.RequestsPerMin < 0 || s.RateLimit.Burst < 0 {
			ve.Add("server.rate_limit values must be >= 0")
		}
	}
	// stdout is the JSON-RPC channel under stdio; a single log line corrupts it.
	if s.Transport == "stdio" && cfg.Logger.Output == "stdout" {
		ve.Add("logger.output must not be stdout when server.transport is stdio")
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (valid: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (valid: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (valid: noop, stdout)", cfg.Tracer.Exporter)
	}
}

// validateBaseURL accepts absolute http(s) URLs with a host.
func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
