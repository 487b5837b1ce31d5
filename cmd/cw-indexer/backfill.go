package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/config"
	"github.com/devblac/cw-indexer/internal/logging"
	"github.com/devblac/cw-indexer/internal/pipeline"
	"github.com/devblac/cw-indexer/internal/storage"
)

var flagBackfillOnly []string

func init() {
	backfillCmd.Flags().StringSliceVar(&flagBackfillOnly, "extractor", nil, "Backfill only the named extractors")
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Regenerate extractions from a full chain-state scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.NewWithLevel(os.Getenv("LOG_LEVEL"))
		ctx := cmd.Context()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		cli, err := chain.NewNodeClient(cfg.Node.LCDURL, cfg.Node.RPCURL)
		if err != nil {
			return fmt.Errorf("node client: %w", err)
		}

		codes := chain.NewCodeIDRegistry(cfg.CodeIDs)
		extractors, syncers, err := buildExtractors(cfg, codes)
		if err != nil {
			return err
		}

		pipe := pipeline.New(pipeline.Options{
			Extractors: extractors,
			Syncers:    syncers,
			Chain:      cli,
			Codes:      codes,
			Store:      store,
			Log:        log,
		})

		only := map[string]bool{}
		for _, name := range flagBackfillOnly {
			only[name] = true
		}
		if err := pipe.Backfill(ctx, only); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "backfill: success")
		return nil
	},
}
