package main

import (
	"fmt"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/config"
	"github.com/devblac/cw-indexer/internal/extractor"
	"github.com/devblac/cw-indexer/internal/source"
)

// buildExtractors constructs the configured extractors and the backfill
// syncers that go with them.
func buildExtractors(cfg *config.Config, codes *chain.CodeIDRegistry) ([]*extractor.Extractor, []extractor.Syncer, error) {
	var extractors []*extractor.Extractor
	var syncers []extractor.Syncer

	for _, xc := range cfg.Extractors {
		switch xc.Type {
		case "daocore":
			x, err := extractor.NewDAOCore(codes)
			if err != nil {
				return nil, nil, err
			}
			extractors = append(extractors, x)
			syncers = append(syncers, extractor.NewDAOCoreSyncer())
		case "roles":
			x, err := extractor.NewRoles(codes)
			if err != nil {
				return nil, nil, err
			}
			extractors = append(extractors, x)
			syncers = append(syncers, extractor.NewRolesSyncer())
		case "bank":
			bankCfg := source.BankTransferConfig{}
			if xc.Bank != nil {
				bankCfg = *xc.Bank
			}
			x, err := extractor.NewBank(bankCfg)
			if err != nil {
				return nil, nil, err
			}
			extractors = append(extractors, x)
		case "feegrant":
			fgCfg := source.FeeGrantConfig{}
			if xc.FeeGrant != nil {
				fgCfg = *xc.FeeGrant
			}
			x, err := extractor.NewFeeGrant(fgCfg)
			if err != nil {
				return nil, nil, err
			}
			extractors = append(extractors, x)
		default:
			return nil, nil, fmt.Errorf("unsupported extractor type %s", xc.Type)
		}
	}
	return extractors, syncers, nil
}
