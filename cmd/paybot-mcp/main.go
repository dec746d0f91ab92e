// Command paybot-mcp serves the PayBot payment tools over the Model Context
// Protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// Exit codes.
const (
	exitOK      = 0
	exitChannel = 1 // the MCP channel could not be established
	exitConfig  = 2 // configuration or usage error
)

// exitError carries the process exit code for a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return &exitError{code: exitConfig, err: err} }
func channelErr(err error) error { return &exitError{code: exitChannel, err: err} }

// streams are the process stdio handles; tests substitute buffers.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	transport  string
	addr       string
	logLevel   string
	extended   bool
}

func main() {
	os.Exit(execute(os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr}))
}

// execute runs the CLI and maps the outcome to an exit code.
func execute(args []string, s streams) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(s)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(s.err, "paybot-mcp: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		// cobra reports unknown commands and bad flags as plain errors.
		return exitConfig
	}
	return exitOK
}

func newRootCmd(s streams) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "paybot-mcp",
		Short: "PayBot MCP server - USDC payments for AI agents",
		Long: `paybot-mcp exposes PayBot payment tools to MCP hosts.

With no subcommand it serves MCP over stdio. Identity is read from the
environment on every tool call:

  PAYBOT_API_KEY (or API_KEY)                     required
  PAYBOT_FACILITATOR_URL (or X402_FACILITATOR_URL) default http://localhost:3000
  PAYBOT_BOT_ID                                   default mcp-agent
  PAYBOT_WALLET_KEY                               optional`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, s)
		},
	}
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.err)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return configErr(err) })

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file path (default $PAYBOT_CONFIG or ./paybot.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.Flags().StringVar(&flags.transport, "transport", "", "transport: stdio or http")
	root.Flags().StringVar(&flags.addr, "addr", "", "listen address for the http transport")
	root.Flags().BoolVar(&flags.extended, "extended", false, "also register paybot_get_payment, paybot_list_payments and paybot_health")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, s)
		},
	}
	serve.Flags().AddFlagSet(root.LocalNonPersistentFlags())

	root.AddCommand(
		serve,
		doctorCmd(flags, s),
		encryptCmd(s),
		toolsCmd(flags, s),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(s.out, "paybot-mcp %s\n", version)
			},
		},
	)
	return root
}

// configPath resolves the config file location. An explicit flag wins,
// then $PAYBOT_CONFIG, then ./paybot.yaml.
func configPath(flags *globalFlags) (path string, explicit bool) {
	if flags.configPath != "" {
		return flags.configPath, true
	}
	if p := os.Getenv("PAYBOT_CONFIG"); p != "" {
		return p, true
	}
	return "paybot.yaml", false
}
