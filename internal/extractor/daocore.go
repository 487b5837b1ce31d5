package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/source"
	"github.com/devblac/cw-indexer/internal/storage"
)

// TypeDAOCore identifies the dao-core extractor.
const TypeDAOCore = "daocore"

// DAOCoreCodeKey is the symbolic code-id key dao-core contracts are
// registered under.
const DAOCoreCodeKey = "dao-core"

// daoCoreChunkSize bounds concurrent per-address queries when a batch of
// contracts arrives on one record, as backfill pages do.
const daoCoreChunkSize = 10

// NewDAOCore builds the extractor tracking dao-core contract state. It
// reacts to instantiation/migration of dao-core code ids and to config
// changes executed on already-known contracts.
func NewDAOCore(reg *chain.CodeIDRegistry) (*Extractor, error) {
	bindings := []Binding{
		{
			Handler: "instantiate",
			Source: source.NewWasmInstantiateSource(source.WasmInstantiateConfig{
				CodeIDKeys: []string{DAOCoreCodeKey},
			}, reg),
		},
		{
			Handler: "dumpState",
			Source: source.NewWasmEventSource(source.WasmEventConfig{
				Key:   source.StringSet{"action"},
				Value: source.StringSet{"execute_update_config", "execute_proposal_hook"},
			}),
		},
	}
	handlers := map[string]HandlerFunc{
		"instantiate": daoCoreInstantiate,
		"dumpState":   daoCoreDumpState,
	}
	return New(TypeDAOCore, bindings, handlers)
}

// daoCoreInstantiate resolves contract metadata and full state for every
// address on the match record, with bounded concurrency. One address
// failing after its retry budget drops only that address from the batch;
// the rest are kept. Backfill packs whole pages into one record, so a
// single unreachable contract must not sink its page.
func daoCoreInstantiate(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error) {
	data, ok := d.(source.WasmInstantiateData)
	if !ok {
		return nil, fmt.Errorf("daocore: unexpected data shape %T", d)
	}
	cli, err := env.Client()
	if err != nil {
		return nil, err
	}

	results := chain.InChunks(ctx, data.Addresses, daoCoreChunkSize,
		func(ctx context.Context, addr string) ([]storage.Extraction, error) {
			return daoCoreExtractContract(ctx, env, cli, addr)
		})

	var out []storage.Extraction
	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, chain.ErrNotConnected) || len(data.Addresses) == 1 {
				return nil, fmt.Errorf("daocore: contract %s: %w", r.Item, r.Err)
			}
			env.logger().Error("daocore instantiate: dropping address",
				"address", r.Item, "height", env.Height, "error", r.Err)
			continue
		}
		out = append(out, r.Out...)
	}
	return out, nil
}

// daoCoreExtractContract handles one address: metadata lookup, the cache
// upsert, and the info/dump_state queries. The code-id membership check is
// repeated here because the backfill path synthesizes records whose code
// id the DataSource never saw; a contract outside the dao-core set is
// simply not ours and produces nothing.
func daoCoreExtractContract(ctx context.Context, env *Env, cli chain.Client, addr string) ([]storage.Extraction, error) {
	var info chain.ContractInfo
	err := chain.Retry(ctx, chain.DefaultRetryAttempts, chain.DefaultRetryDelay, func(ctx context.Context) error {
		var err error
		info, err = cli.GetContract(ctx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !env.Codes.MatchesWasmCodeKeys(info.CodeID, DAOCoreCodeKey) {
		return nil, nil
	}

	if env.Store != nil {
		cacheErr := env.Store.UpsertContract(ctx, storage.Contract{
			Address:                  addr,
			CodeID:                   info.CodeID,
			Admin:                    info.Admin,
			Creator:                  info.Creator,
			Label:                    info.Label,
			InstantiatedAtHeight:     env.Height,
			InstantiatedAtTimeUnixMs: env.TimeUnixMs,
		})
		if cacheErr != nil {
			env.logger().Warn("contract cache upsert failed", "address", addr, "error", cacheErr)
		}
	}

	infoJSON, err := queryWithRetry(ctx, cli, addr, map[string]any{"info": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	dumpJSON, err := queryWithRetry(ctx, cli, addr, map[string]any{"dump_state": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("dump_state: %w", err)
	}
	return []storage.Extraction{
		{Address: addr, Name: "info", Data: infoJSON},
		{Address: addr, Name: "dump_state", Data: dumpJSON},
	}, nil
}

// daoCoreDumpState refreshes dump_state after an on-chain config change.
func daoCoreDumpState(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error) {
	data, ok := d.(source.WasmEventData)
	if !ok {
		return nil, fmt.Errorf("daocore: unexpected data shape %T", d)
	}
	cli, err := env.Client()
	if err != nil {
		return nil, err
	}

	var info chain.ContractInfo
	err = chain.Retry(ctx, chain.DefaultRetryAttempts, chain.DefaultRetryDelay, func(ctx context.Context) error {
		var err error
		info, err = cli.GetContract(ctx, data.Address)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("daocore: contract %s: %w", data.Address, err)
	}
	if !env.Codes.MatchesWasmCodeKeys(info.CodeID, DAOCoreCodeKey) {
		return nil, nil
	}

	dumpJSON, err := queryWithRetry(ctx, cli, data.Address, map[string]any{"dump_state": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("daocore: dump_state %s: %w", data.Address, err)
	}
	return []storage.Extraction{{Address: data.Address, Name: "dump_state", Data: dumpJSON}}, nil
}

func queryWithRetry(ctx context.Context, cli chain.Client, addr string, query any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := chain.Retry(ctx, chain.DefaultRetryAttempts, chain.DefaultRetryDelay, func(ctx context.Context) error {
		var err error
		raw, err = cli.QueryContractSmart(ctx, addr, query)
		return err
	})
	return raw, err
}
