package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/cw-indexer/internal/config"
	"github.com/devblac/cw-indexer/internal/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show stored extraction and contract counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		extractions, err := store.CountExtractions(ctx)
		if err != nil {
			return err
		}
		contracts, err := store.CountContracts(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "extractions: %d\n", extractions)
		fmt.Fprintf(out, "contracts:   %d\n", contracts)

		if height, ok, err := store.LatestExtractionHeight(ctx); err != nil {
			return err
		} else if ok {
			fmt.Fprintf(out, "latest height: %d\n", height)
		} else {
			fmt.Fprintln(out, "latest height: none")
		}
		return nil
	},
}
