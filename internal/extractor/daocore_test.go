package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/event"
	"github.com/devblac/cw-indexer/internal/source"
)

func daoCoreEnv(cli chain.Client) *Env {
	return &Env{
		Chain:      cli,
		Codes:      chain.NewCodeIDRegistry(map[string][]uint64{DAOCoreCodeKey: {1234}}),
		Height:     100,
		TimeUnixMs: 100000,
		TxHash:     "T",
	}
}

func TestDAOCoreMatchesInstantiateEvent(t *testing.T) {
	reg := chain.NewCodeIDRegistry(map[string][]uint64{DAOCoreCodeKey: {1234}})
	x, err := NewDAOCore(reg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tx := event.TxData{Events: []event.Event{{
		Type: "instantiate",
		Attributes: []event.Attribute{
			{Key: "code_id", Value: "1234"},
			{Key: source.ContractAddressKey, Value: "juno123contract456"},
		},
	}}}
	routed := x.Match(tx)
	if len(routed) != 1 {
		t.Fatalf("expected 1 routed item, got %d", len(routed))
	}
	if routed[0].Handler != "instantiate" {
		t.Fatalf("unexpected handler: %s", routed[0].Handler)
	}
}

func TestDAOCoreInstantiateExtractsInfoAndDumpState(t *testing.T) {
	cli := &fakeClient{
		contracts: map[string]chain.ContractInfo{
			"juno1dao": {Address: "juno1dao", CodeID: 1234, Label: "dao"},
		},
		query: func(addr string, query any) (json.RawMessage, error) {
			q := query.(map[string]any)
			if _, ok := q["info"]; ok {
				return json.RawMessage(`{"name":"dao"}`), nil
			}
			return json.RawMessage(`{"config":{}}`), nil
		},
	}

	d := source.NewWasmInstantiateData("instantiate", 1234, []string{"juno1dao"}, nil)
	got, err := daoCoreInstantiate(context.Background(), daoCoreEnv(cli), d)
	if err != nil {
		t.Fatalf("instantiate handler: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected info and dump_state, got %d", len(got))
	}
	if got[0].Name != "info" || got[0].Address != "juno1dao" {
		t.Fatalf("unexpected first extraction: %+v", got[0])
	}
	if got[1].Name != "dump_state" || string(got[1].Data) != `{"config":{}}` {
		t.Fatalf("unexpected second extraction: %+v", got[1])
	}
}

func TestDAOCoreInstantiateSkipsForeignCodeID(t *testing.T) {
	cli := &fakeClient{
		contracts: map[string]chain.ContractInfo{
			"juno1other": {Address: "juno1other", CodeID: 9999},
		},
	}

	d := source.NewWasmInstantiateData("instantiate", 9999, []string{"juno1other"}, nil)
	got, err := daoCoreInstantiate(context.Background(), daoCoreEnv(cli), d)
	if err != nil {
		t.Fatalf("instantiate handler: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("contract outside the dao-core set must produce nothing, got %d", len(got))
	}
}

func TestDAOCoreDumpStateRefresh(t *testing.T) {
	cli := &fakeClient{
		contracts: map[string]chain.ContractInfo{
			"juno1dao": {Address: "juno1dao", CodeID: 1234},
		},
		query: func(addr string, query any) (json.RawMessage, error) {
			return json.RawMessage(`{"paused":false}`), nil
		},
	}

	d := source.NewWasmEventData("juno1dao", "action", "execute_update_config", nil)
	got, err := daoCoreDumpState(context.Background(), daoCoreEnv(cli), d)
	if err != nil {
		t.Fatalf("dumpState handler: %v", err)
	}
	if len(got) != 1 || got[0].Name != "dump_state" {
		t.Fatalf("unexpected extractions: %+v", got)
	}
}

func TestDAOCoreNotConnected(t *testing.T) {
	env := daoCoreEnv(nil)
	env.Chain = nil

	d := source.NewWasmInstantiateData("instantiate", 1234, []string{"juno1dao"}, nil)
	_, err := daoCoreInstantiate(context.Background(), env, d)
	if !errors.Is(err, chain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestDAOCoreInstantiateDropsFailingAddress(t *testing.T) {
	cli := &fakeClient{
		contracts: map[string]chain.ContractInfo{
			"juno1good":  {Address: "juno1good", CodeID: 1234},
			"juno1good2": {Address: "juno1good2", CodeID: 1234},
		},
		contractErr: map[string]error{"juno1bad": errors.New("transient query failure")},
	}

	d := source.NewWasmInstantiateData("instantiate", 1234,
		[]string{"juno1good", "juno1bad", "juno1good2"}, nil)
	got, err := daoCoreInstantiate(context.Background(), daoCoreEnv(cli), d)
	if err != nil {
		t.Fatalf("one failing address of several must not abort: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected info+dump_state for both surviving addresses, got %d", len(got))
	}
	for _, e := range got {
		if e.Address == "juno1bad" {
			t.Fatalf("failing address must be dropped")
		}
	}
}

func TestDAOCoreInstantiateNotConnectedAbortsBatch(t *testing.T) {
	cli := &fakeClient{
		contracts: map[string]chain.ContractInfo{
			"juno1good": {Address: "juno1good", CodeID: 1234},
		},
		contractErr: map[string]error{"juno1down": chain.ErrNotConnected},
	}

	d := source.NewWasmInstantiateData("instantiate", 1234,
		[]string{"juno1good", "juno1down"}, nil)
	_, err := daoCoreInstantiate(context.Background(), daoCoreEnv(cli), d)
	if !errors.Is(err, chain.ErrNotConnected) {
		t.Fatalf("disconnection must abort the whole batch, got %v", err)
	}
}

func TestDAOCoreContractLookupNotRetriedWhenDisconnected(t *testing.T) {
	cli := &fakeClient{
		contractErr: map[string]error{"juno1dao": chain.ErrNotConnected},
	}

	d := source.NewWasmInstantiateData("instantiate", 1234, []string{"juno1dao"}, nil)
	_, err := daoCoreInstantiate(context.Background(), daoCoreEnv(cli), d)
	if !errors.Is(err, chain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if !strings.Contains(err.Error(), "juno1dao") {
		t.Fatalf("error should name the contract: %v", err)
	}
}
