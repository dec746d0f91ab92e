package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"paybot-mcp/internal/infra/logger"
)

// toolDefinition is the MCP-facing shape of one tool.
type toolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func toolsCmd(flags *globalFlags, s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool definitions served to MCP hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if extended, _ := cmd.Flags().GetBool("extended"); extended {
				flags.extended = true
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg, logger.Discard())
			if err != nil {
				return configErr(err)
			}

			defs := make([]toolDefinition, 0, len(reg.List()))
			for _, schema := range reg.Schemas() {
				defs = append(defs, toolDefinition{
					Name:        schema.Name,
					Description: schema.Description,
					InputSchema: schema.Parameters,
				})
			}
			// One compact JSON array; schemas keep no insignificant whitespace.
			data, err := json.Marshal(defs)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, string(data))
			return nil
		},
	}
	cmd.Flags().Bool("extended", false, "include the extended tools")
	return cmd
}
