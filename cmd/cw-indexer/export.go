package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devblac/cw-indexer/internal/config"
	"github.com/devblac/cw-indexer/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Stream stored extractions as newline-delimited JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		return store.EachExtraction(cmd.Context(), func(e storage.Extraction) error {
			return enc.Encode(e)
		})
	},
}
