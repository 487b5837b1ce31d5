package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/event"
	"github.com/devblac/cw-indexer/internal/extractor"
	"github.com/devblac/cw-indexer/internal/listener"
	"github.com/devblac/cw-indexer/internal/source"
	"github.com/devblac/cw-indexer/internal/storage"
)

type fakeClient struct {
	height uint64
	pages  map[uint64][][]string
	query  func(addr string, query any) (json.RawMessage, error)
}

func (f *fakeClient) GetContract(ctx context.Context, address string) (chain.ContractInfo, error) {
	return chain.ContractInfo{}, fmt.Errorf("no such contract %s", address)
}

func (f *fakeClient) GetContracts(ctx context.Context, codeID uint64, startAfter string, limit int) ([]string, error) {
	pages := f.pages[codeID]
	if len(pages) == 0 {
		return nil, nil
	}
	page := pages[0]
	f.pages[codeID] = pages[1:]
	return page, nil
}

func (f *fakeClient) GetCodes(ctx context.Context) ([]uint64, error) { return nil, nil }

func (f *fakeClient) QueryContractSmart(ctx context.Context, address string, query any) (json.RawMessage, error) {
	if f.query == nil {
		return json.RawMessage(`{}`), nil
	}
	return f.query(address, query)
}

func (f *fakeClient) GetBlock(ctx context.Context, height uint64) (chain.BlockInfo, error) {
	return chain.BlockInfo{Height: height, TimeUnixMs: int64(height) * 1000, Timestamp: "t"}, nil
}

func (f *fakeClient) GetHeight(ctx context.Context) (uint64, error) { return f.height, nil }

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func transferTx(hash string, height uint64) event.TxData {
	return event.TxData{
		Hash:   hash,
		Height: height,
		Events: []event.Event{{
			Type: "transfer",
			Attributes: []event.Attribute{
				{Key: "sender", Value: "juno1from"},
				{Key: "recipient", Value: "juno1to"},
				{Key: "amount", Value: "42ujuno"},
			},
		}},
	}
}

func TestProcessTxPersistsStampedExtractions(t *testing.T) {
	store := newTestStore(t)
	bank, err := extractor.NewBank(source.BankTransferConfig{})
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	p := New(Options{Extractors: []*extractor.Extractor{bank}, Store: store})

	tx := transferTx("HASH", 77)
	tx.TimeUnixMs = 77000
	if err := p.ProcessTx(context.Background(), tx); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, ok, err := store.GetExtraction(context.Background(), "juno1to", "bank/transfer/ujuno", 77)
	if err != nil || !ok {
		t.Fatalf("extraction not persisted: err=%v ok=%v", err, ok)
	}
	if got.TxHash != "HASH" || got.TimeUnixMs != 77000 {
		t.Fatalf("extraction not stamped: %+v", got)
	}
}

func TestProcessTxIsolatesExtractorFailure(t *testing.T) {
	store := newTestStore(t)

	failing, err := extractor.New("failing",
		[]extractor.Binding{{Handler: "h", Source: alwaysMatchSource{}}},
		map[string]extractor.HandlerFunc{
			"h": func(context.Context, *extractor.Env, source.Data) ([]storage.Extraction, error) {
				return nil, errors.New("boom")
			},
		})
	if err != nil {
		t.Fatalf("new failing: %v", err)
	}
	bank, err := extractor.NewBank(source.BankTransferConfig{})
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}

	p := New(Options{Extractors: []*extractor.Extractor{failing, bank}, Store: store})

	err = p.ProcessTx(context.Background(), transferTx("HASH", 5))
	if err == nil {
		t.Fatalf("failing extractor's error must surface")
	}

	if _, ok, _ := store.GetExtraction(context.Background(), "juno1to", "bank/transfer/ujuno", 5); !ok {
		t.Fatalf("other extractors must still run and persist")
	}
}

type alwaysMatchSource struct{}

func (alwaysMatchSource) Type() string { return "always" }
func (alwaysMatchSource) Match(tx event.TxData) []source.Data {
	return []source.Data{source.NewFeeGrantData(source.FeeGrantActionSet, "g", "e")}
}
func (alwaysMatchSource) IsOurData(d source.Data) bool { return true }

func TestHandleBlockFeedsBlockTimeCache(t *testing.T) {
	store := newTestStore(t)
	bank, _ := extractor.NewBank(source.BankTransferConfig{})
	p := New(Options{Extractors: []*extractor.Extractor{bank}, Store: store})

	ctx := context.Background()
	p.HandleBlock(ctx, listener.BlockHeader{Height: 9, Time: "t9", TimeUnixMs: 9000})

	res := listener.TxResult{Height: 9, Events: transferTx("", 9).Events}
	p.HandleTx(ctx, "HASH", res)

	got, ok, err := store.GetExtraction(ctx, "juno1to", "bank/transfer/ujuno", 9)
	if err != nil || !ok {
		t.Fatalf("extraction missing: err=%v ok=%v", err, ok)
	}
	if got.TimeUnixMs != 9000 {
		t.Fatalf("block time not resolved from cache: %+v", got)
	}
}

func TestBlockTimeFallsBackToNode(t *testing.T) {
	store := newTestStore(t)
	cli := &fakeClient{}
	p := New(Options{Store: store, Chain: cli})

	got := p.blockTime(context.Background(), 12)
	if got != 12000 {
		t.Fatalf("expected node lookup 12000, got %d", got)
	}

	// The answer is cached for the next resolution.
	b, ok, err := store.GetBlock(context.Background(), 12)
	if err != nil || !ok || b.TimeUnixMs != 12000 {
		t.Fatalf("node answer not cached: %+v ok=%v err=%v", b, ok, err)
	}
}

func TestBackfillReproducesLiveRows(t *testing.T) {
	ctx := context.Background()
	codes := chain.NewCodeIDRegistry(map[string][]uint64{extractor.RolesCodeKey: {1235}})
	rolesJSON := json.RawMessage(`{"roles":["admin"]}`)

	// Live path: a create_role action on the contract.
	liveStore := newTestStore(t)
	liveCli := &fakeClient{
		query: func(addr string, query any) (json.RawMessage, error) { return rolesJSON, nil },
	}
	roles, err := extractor.NewRoles(codes)
	if err != nil {
		t.Fatalf("new roles: %v", err)
	}
	live := New(Options{
		Extractors: []*extractor.Extractor{roles},
		Chain:      liveCli, Codes: codes, Store: liveStore,
	})
	tx := event.TxData{
		Hash: "HASH", Height: 50, TimeUnixMs: 50000,
		Events: []event.Event{{
			Type: "wasm",
			Attributes: []event.Attribute{
				{Key: source.ContractAddressKey, Value: "juno1roles"},
				{Key: "action", Value: "create_role"},
			},
		}},
	}
	if err := live.ProcessTx(ctx, tx); err != nil {
		t.Fatalf("live process: %v", err)
	}

	// Backfill path: the same contract discovered by chain-state scan.
	backStore := newTestStore(t)
	backCli := &fakeClient{
		height: 50,
		pages:  map[uint64][][]string{1235: {{"juno1roles"}}},
		query:  func(addr string, query any) (json.RawMessage, error) { return rolesJSON, nil },
	}
	back := New(Options{
		Extractors: []*extractor.Extractor{roles},
		Syncers:    []extractor.Syncer{extractor.NewRolesSyncer()},
		Chain:      backCli, Codes: codes, Store: backStore,
	})
	if err := back.Backfill(ctx, nil); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	liveRow, ok, err := liveStore.GetExtraction(ctx, "juno1roles", "dao-rbam/list_roles", 50)
	if err != nil || !ok {
		t.Fatalf("live row missing: err=%v ok=%v", err, ok)
	}
	backRow, ok, err := backStore.GetExtraction(ctx, "juno1roles", "dao-rbam/list_roles", 50)
	if err != nil || !ok {
		t.Fatalf("backfill row missing: err=%v ok=%v", err, ok)
	}
	if string(liveRow.Data) != string(backRow.Data) {
		t.Fatalf("live and backfill data diverge: %s vs %s", liveRow.Data, backRow.Data)
	}
}

func TestBackfillOnlyFilter(t *testing.T) {
	codes := chain.NewCodeIDRegistry(map[string][]uint64{
		extractor.DAOCoreCodeKey: {1234},
		extractor.RolesCodeKey:   {1235},
	})
	cli := &fakeClient{
		height: 10,
		pages:  map[uint64][][]string{1235: {{"juno1roles"}}},
		query:  func(addr string, query any) (json.RawMessage, error) { return json.RawMessage(`{}`), nil },
	}

	daocore, err := extractor.NewDAOCore(codes)
	if err != nil {
		t.Fatalf("new daocore: %v", err)
	}
	roles, err := extractor.NewRoles(codes)
	if err != nil {
		t.Fatalf("new roles: %v", err)
	}

	store := newTestStore(t)
	p := New(Options{
		Extractors: []*extractor.Extractor{daocore, roles},
		Syncers:    []extractor.Syncer{extractor.NewDAOCoreSyncer(), extractor.NewRolesSyncer()},
		Chain:      cli, Codes: codes, Store: store,
	})

	// The daocore syncer would fail on GetContract; filtering it out means
	// only the roles syncer runs.
	if err := p.Backfill(context.Background(), map[string]bool{extractor.TypeRoles: true}); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	if _, ok, _ := store.GetExtraction(context.Background(), "juno1roles", "dao-rbam/list_roles", 10); !ok {
		t.Fatalf("filtered backfill must still run the selected syncer")
	}
}

func TestBackfillUnknownExtractor(t *testing.T) {
	cli := &fakeClient{height: 1}
	p := New(Options{
		Syncers: []extractor.Syncer{extractor.NewRolesSyncer()},
		Chain:   cli,
	})
	if err := p.Backfill(context.Background(), nil); err == nil {
		t.Fatalf("syncer without its extractor must fail")
	}
}

func TestBackfillNotConnected(t *testing.T) {
	p := New(Options{})
	if err := p.Backfill(context.Background(), nil); !errors.Is(err, chain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestDryRunSkipsPersistence(t *testing.T) {
	store := newTestStore(t)
	bank, _ := extractor.NewBank(source.BankTransferConfig{})
	p := New(Options{Extractors: []*extractor.Extractor{bank}, Store: store, DryRun: true})

	if err := p.ProcessTx(context.Background(), transferTx("HASH", 3)); err != nil {
		t.Fatalf("process: %v", err)
	}

	n, err := store.CountExtractions(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("dry run must not persist, got %d rows", n)
	}
}
