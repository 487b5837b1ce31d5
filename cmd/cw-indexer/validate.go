package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (%d extractors)\n", len(cfg.Extractors))

		codes := chain.NewCodeIDRegistry(cfg.CodeIDs)
		if _, _, err := buildExtractors(cfg, codes); err != nil {
			return fmt.Errorf("extractors: %w", err)
		}
		fmt.Fprintln(out, "extractors OK")

		cli, err := chain.NewNodeClient(cfg.Node.LCDURL, cfg.Node.RPCURL)
		if err != nil {
			return fmt.Errorf("node client: %w", err)
		}
		height, err := cli.GetHeight(cmd.Context())
		if err != nil {
			return fmt.Errorf("node unreachable: %w", err)
		}
		fmt.Fprintf(out, "node OK (height %d)\n", height)

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
