package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/source"
	"github.com/devblac/cw-indexer/internal/storage"
)

// TypeRoles identifies the dao-rbam role extractor.
const TypeRoles = "roles"

// RolesCodeKey is the symbolic code-id key rbam contracts are registered
// under.
const RolesCodeKey = "dao-rbam"

// rolesExtractionName namespaces the role-list fact per contract address.
const rolesExtractionName = "dao-rbam/list_roles"

// rolesChunkSize bounds concurrent per-address queries when a batch of
// contracts is refreshed at once.
const rolesChunkSize = 10

// NewRoles builds the extractor tracking role assignments on dao-rbam
// contracts. Live role mutations arrive as wasm action events; the
// instantiate binding (also fed by backfill) refreshes whole batches of
// contracts.
func NewRoles(reg *chain.CodeIDRegistry) (*Extractor, error) {
	bindings := []Binding{
		{
			Handler: "listRoles",
			Source: source.NewWasmEventSource(source.WasmEventConfig{
				Key:   source.StringSet{"action"},
				Value: source.StringSet{"create_role", "update_role", "assign", "revoke"},
			}),
		},
		{
			Handler: "refresh",
			Source: source.NewWasmInstantiateSource(source.WasmInstantiateConfig{
				CodeIDKeys: []string{RolesCodeKey},
			}, reg),
		},
	}
	handlers := map[string]HandlerFunc{
		"listRoles": rolesListRoles,
		"refresh":   rolesRefresh,
	}
	return New(TypeRoles, bindings, handlers)
}

// rolesListRoles re-queries the role list of the one contract named by a
// wasm action match.
func rolesListRoles(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error) {
	data, ok := d.(source.WasmEventData)
	if !ok {
		return nil, fmt.Errorf("roles: unexpected data shape %T", d)
	}
	cli, err := env.Client()
	if err != nil {
		return nil, err
	}
	rolesJSON, err := queryWithRetry(ctx, cli, data.Address, map[string]any{"list_roles": struct{}{}})
	if err != nil {
		return nil, fmt.Errorf("roles: list_roles %s: %w", data.Address, err)
	}
	return []storage.Extraction{{Address: data.Address, Name: rolesExtractionName, Data: rolesJSON}}, nil
}

// rolesRefresh queries list_roles for every address on the record with
// bounded concurrency. One address failing after its retry budget drops
// only that address from the batch; the rest are kept.
func rolesRefresh(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error) {
	data, ok := d.(source.WasmInstantiateData)
	if !ok {
		return nil, fmt.Errorf("roles: unexpected data shape %T", d)
	}
	cli, err := env.Client()
	if err != nil {
		return nil, err
	}
	if !env.Codes.MatchesWasmCodeKeys(data.CodeID, RolesCodeKey) {
		return nil, nil
	}

	results := chain.InChunks(ctx, data.Addresses, rolesChunkSize,
		func(ctx context.Context, addr string) (storage.Extraction, error) {
			rolesJSON, err := queryWithRetry(ctx, cli, addr, map[string]any{"list_roles": struct{}{}})
			if err != nil {
				return storage.Extraction{}, err
			}
			return storage.Extraction{Address: addr, Name: rolesExtractionName, Data: rolesJSON}, nil
		})

	var out []storage.Extraction
	for _, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, chain.ErrNotConnected) || len(data.Addresses) == 1 {
				return nil, fmt.Errorf("roles: list_roles %s: %w", r.Item, r.Err)
			}
			env.logger().Error("roles refresh: dropping address",
				"address", r.Item, "height", env.Height, "error", r.Err)
			continue
		}
		out = append(out, r.Out)
	}
	return out, nil
}
