package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"paybot-mcp/internal/infra/config"
)

func encryptCmd(s streams) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a secret for the config file",
		Long: `Encrypt a secret (api_key or wallet_key) with the passphrase in
$PAYBOT_CONFIG_KEY. The value is read from the argument or, when omitted,
from the first line of stdin. Paste the printed enc:... string into the
config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv(config.EnvConfigKey)
			if passphrase == "" {
				return configErr(fmt.Errorf("%s is not set", config.EnvConfigKey))
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(s.in).ReadString('\n')
				if err != nil && line == "" {
					return configErr(errors.New("no value given on the command line or stdin"))
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if strings.TrimSpace(value) == "" {
				return configErr(errors.New("value is empty"))
			}

			enc, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, "enc:"+enc)
			return nil
		},
	}
}
