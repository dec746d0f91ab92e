package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"paybot-mcp/internal/adapter/facilitator"
	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/config"
	"paybot-mcp/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

// healthTimeout bounds the facilitator reachability check.
const healthTimeout = 5 * time.Second

func doctorCmd(flags *globalFlags, s streams) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and facilitator reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), flags, os.LookupEnv, s.out)
		},
	}
}

// runDoctor executes all health checks and reports results to w.
func runDoctor(ctx context.Context, flags *globalFlags, lookup config.LookupFunc, w io.Writer) error {
	path, explicit := configPath(flags)

	// Some checks work without a loaded config.
	cfg, cfgErr := config.Load(path)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(path, explicit, cfgErr)},
		{Name: "API key", Fn: checkAPIKey(lookup)},
		{Name: "Wallet key", Fn: checkWalletKey(lookup)},
		{Name: "Log output", Fn: checkLogOutput},
		{Name: "Facilitator", Fn: checkFacilitator(lookup)},
	}

	fmt.Fprintln(w, "paybot-mcp doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(ctx, cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before connecting an MCP host.")
		return configErr(fmt.Errorf("%d check(s) failed", fail))
	}
	if warn > 0 {
		fmt.Fprintln(w, "\npaybot-mcp should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! paybot-mcp is ready to serve.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return color.GreenString("[PASS]")
	case StatusWarn:
		return color.YellowString("[WARN]")
	case StatusFail:
		return color.RedString("[FAIL]")
	default:
		return "[????]"
	}
}

// checkConfigFile verifies the config file loads. A missing default file
// only warns; a missing explicit file fails.
func checkConfigFile(path string, explicit bool, cfgErr error) func(context.Context, *config.Config) CheckResult {
	return func(context.Context, *config.Config) CheckResult {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if explicit {
				return CheckResult{
					Status:  StatusFail,
					Message: fmt.Sprintf("config file not found at %s", path),
					Fix:     "Pass an existing file with --config or unset PAYBOT_CONFIG",
				}
			}
			if cfgErr == nil {
				return CheckResult{
					Status:  StatusWarn,
					Message: "no config file; using defaults and environment",
				}
			}
		}

		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check the YAML syntax and values in " + path,
			}
		}

		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", path),
		}
	}
}

// checkAPIKey verifies an API key resolves from the environment or config.
func checkAPIKey(lookup config.LookupFunc) func(context.Context, *config.Config) CheckResult {
	return func(_ context.Context, cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
		}

		_, err := config.NewResolver(cfg, lookup).Resolve("")
		if err != nil && errors.Is(err, domain.ErrMissingAPIKey) {
			return CheckResult{
				Status:  StatusFail,
				Message: err.Error(),
				Fix:     "Set " + config.EnvAPIKey + " in the MCP host's server environment",
			}
		}
		return CheckResult{Status: StatusPass, Message: "API key is set"}
	}
}

// checkWalletKey validates the optional local signing key.
func checkWalletKey(lookup config.LookupFunc) func(context.Context, *config.Config) CheckResult {
	return func(_ context.Context, cfg *config.Config) CheckResult {
		key := ""
		if v, ok := lookup(config.EnvWalletKey); ok {
			key = strings.TrimSpace(v)
		}
		if key == "" && cfg != nil {
			key = cfg.Facilitator.WalletKey
		}
		if key == "" {
			return CheckResult{Status: StatusPass, Message: "not set (optional)"}
		}
		if strings.HasPrefix(key, "enc:") {
			return CheckResult{
				Status:  StatusWarn,
				Message: "wallet key is encrypted",
				Fix:     "Set " + config.EnvConfigKey + " so it can be decrypted",
			}
		}
		if err := config.ValidateWalletKey(key); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("invalid wallet key: %v", err),
				Fix:     "Use a 32-byte hex private key, optionally 0x-prefixed",
			}
		}
		return CheckResult{Status: StatusPass, Message: "valid"}
	}
}

// checkLogOutput verifies the log destination is writable and kept off the
// JSON-RPC channel.
func checkLogOutput(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusWarn, Message: "cannot check: config not loaded"}
	}
	if cfg.Server.Transport == "stdio" && cfg.Logger.Output == "stdout" {
		return CheckResult{
			Status:  StatusFail,
			Message: "logs would be written to the stdio channel",
			Fix:     "Set logger.output to stderr or a file path",
		}
	}
	_, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open log output: %v", err),
			Fix:     "Check logger.output permissions",
		}
	}
	_ = closeLog()

	out := cfg.Logger.Output
	if out == "" {
		out = "stderr"
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s (%s, %s)", out, cfg.Logger.Format, cfg.Logger.Level)}
}

// checkFacilitator calls the facilitator health endpoint.
func checkFacilitator(lookup config.LookupFunc) func(context.Context, *config.Config) CheckResult {
	return func(ctx context.Context, cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusWarn, Message: "skipped: config not loaded"}
		}

		id, err := config.NewResolver(cfg, lookup).Resolve("")
		if err != nil {
			return CheckResult{Status: StatusWarn, Message: "skipped: " + err.Error()}
		}

		ctx, cancel := context.WithTimeout(ctx, healthTimeout)
		defer cancel()

		api := facilitator.NewDialer(cfg.Facilitator, logger.Discard()).For(id)
		if _, err := api.Health(ctx); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s unreachable: %v", id.BaseURL, err),
				Fix:     "Check " + config.EnvFacilitatorURL + " and that the facilitator is running",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is healthy", id.BaseURL)}
	}
}
