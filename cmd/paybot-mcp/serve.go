package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"paybot-mcp/internal/adapter/facilitator"
	"paybot-mcp/internal/adapter/mcpserver"
	"paybot-mcp/internal/adapter/tool"
	"paybot-mcp/internal/infra/config"
	"paybot-mcp/internal/infra/logger"
	"paybot-mcp/internal/infra/tracer"
)

// loadConfig reads the config file (a missing default file is fine), then
// applies command-line overrides and validates the result.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	path, explicit := configPath(flags)
	if explicit {
		if _, err := os.Stat(path); err != nil {
			return nil, configErr(fmt.Errorf("config file: %w", err))
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, configErr(err)
	}

	if flags.transport != "" {
		cfg.Server.Transport = flags.transport
	}
	if flags.addr != "" {
		cfg.Server.Addr = flags.addr
	}
	if flags.logLevel != "" {
		cfg.Logger.Level = flags.logLevel
	}
	if flags.extended {
		cfg.Tools.Extended = true
	}

	if err := config.Validate(cfg); err != nil {
		return nil, configErr(err)
	}
	return cfg, nil
}

// buildRegistry wires the PayBot tools against cfg. Identity is resolved
// from the process environment on every call.
func buildRegistry(cfg *config.Config, log *slog.Logger) (*tool.Registry, error) {
	deps := tool.Deps{
		Resolver:  config.NewResolver(cfg, os.LookupEnv),
		Dialer:    facilitator.NewDialer(cfg.Facilitator, log),
		Formatter: tool.NewFormatter(cfg.Tools.ExplorerURL),
		Logger:    log,
	}

	reg := tool.NewRegistry(log)
	for _, t := range tool.PayBotTools(deps, cfg.Tools.Extended) {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// runServe serves MCP until the channel closes or ctx is cancelled.
func runServe(ctx context.Context, flags *globalFlags, s streams) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return configErr(fmt.Errorf("logger: %w", err))
	}
	defer closeLog()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return configErr(fmt.Errorf("tracer: %w", err))
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		return configErr(err)
	}

	srv := mcpserver.New(reg, log, mcpserver.Options{Name: cfg.Server.Name, Version: version})

	log.Info("paybot-mcp starting",
		"version", version,
		"transport", cfg.Server.Transport,
		"tools", len(reg.List()),
		"extended", cfg.Tools.Extended,
	)

	switch cfg.Server.Transport {
	case "http":
		err = srv.ListenAndServe(ctx, cfg.Server)
	default:
		err = srv.ServeStdio(ctx, s.in, s.out)
	}
	if err != nil {
		return channelErr(err)
	}
	return nil
}
