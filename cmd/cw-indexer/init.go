package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const exampleConfig = `node:
  rpc_url: ${NODE_RPC_URL}
  lcd_url: ${NODE_LCD_URL}
  ws_url: ${NODE_WS_URL}

db_path: indexer.db

code_ids:
  dao-core: [1234]
  dao-rbam: [1235]

extractors:
  - type: daocore
  - type: roles
  - type: bank
  - type: feegrant

listener:
  events: [NewBlock, Tx]
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil {
			return fmt.Errorf("refusing to overwrite existing %s", cfgPath)
		}
		if err := os.WriteFile(cfgPath, []byte(exampleConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
		return nil
	},
}
