package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertExtractionsConvergesOnReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := Extraction{
		Address:    "juno1abc",
		Name:       "info",
		Height:     100,
		TimeUnixMs: 1000,
		TxHash:     "AAA",
		Data:       json.RawMessage(`{"v":1}`),
	}
	if err := store.UpsertExtractions(ctx, []Extraction{first}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := first
	second.TimeUnixMs = 2000
	second.TxHash = "BBB"
	second.Data = json.RawMessage(`{"v":2}`)
	if err := store.UpsertExtractions(ctx, []Extraction{second}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := store.CountExtractions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single row after replay, got %d", n)
	}

	got, ok, err := store.GetExtraction(ctx, "juno1abc", "info", 100)
	if err != nil || !ok {
		t.Fatalf("get extraction err=%v ok=%v", err, ok)
	}
	if got.TxHash != "BBB" || string(got.Data) != `{"v":2}` {
		t.Fatalf("row not refreshed: %+v", got)
	}
}

func TestExtractionsDistinctByNaturalKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []Extraction{
		{Address: "juno1abc", Name: "info", Height: 100, TxHash: "A", Data: json.RawMessage(`{}`)},
		{Address: "juno1abc", Name: "info", Height: 101, TxHash: "B", Data: json.RawMessage(`{}`)},
		{Address: "juno1abc", Name: "dump_state", Height: 100, TxHash: "A", Data: json.RawMessage(`{}`)},
		{Address: "juno1def", Name: "info", Height: 100, TxHash: "A", Data: json.RawMessage(`{}`)},
	}
	if err := store.UpsertExtractions(ctx, batch); err != nil {
		t.Fatalf("upsert batch: %v", err)
	}

	n, err := store.CountExtractions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 distinct rows, got %d", n)
	}

	height, ok, err := store.LatestExtractionHeight(ctx)
	if err != nil || !ok {
		t.Fatalf("latest height err=%v ok=%v", err, ok)
	}
	if height != 101 {
		t.Fatalf("expected latest height 101, got %d", height)
	}
}

func TestUpsertExtractionsRejectsEmptyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bad := []Extraction{{Address: "", Name: "info", Height: 1, Data: json.RawMessage(`{}`)}}
	if err := store.UpsertExtractions(ctx, bad); err == nil {
		t.Fatalf("expected missing address to fail")
	}
}

func TestLatestExtractionHeightEmpty(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.LatestExtractionHeight(context.Background())
	if err != nil {
		t.Fatalf("latest height: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false on empty table")
	}
}

func TestEachExtractionOrderAndStop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []Extraction{
		{Address: "a", Name: "n", Height: 30, Data: json.RawMessage(`{}`)},
		{Address: "a", Name: "n", Height: 10, Data: json.RawMessage(`{}`)},
		{Address: "a", Name: "n", Height: 20, Data: json.RawMessage(`{}`)},
	}
	if err := store.UpsertExtractions(ctx, batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var heights []uint64
	err := store.EachExtraction(ctx, func(e Extraction) error {
		heights = append(heights, e.Height)
		return nil
	})
	if err != nil {
		t.Fatalf("each: %v", err)
	}
	if len(heights) != 3 || heights[0] != 10 || heights[1] != 20 || heights[2] != 30 {
		t.Fatalf("unexpected scan order: %v", heights)
	}
}

func TestUpsertContractPreservesProvenance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := Contract{
		Address:                  "juno1abc",
		CodeID:                   1234,
		Admin:                    "juno1admin",
		Creator:                  "juno1creator",
		Label:                    "dao",
		InstantiatedAtHeight:     50,
		InstantiatedAtTimeUnixMs: 5000,
	}
	if err := store.UpsertContract(ctx, c); err != nil {
		t.Fatalf("upsert contract: %v", err)
	}

	updated := c
	updated.CodeID = 1300
	updated.Label = "dao-v2"
	updated.InstantiatedAtHeight = 999
	updated.InstantiatedAtTimeUnixMs = 99900
	if err := store.UpsertContract(ctx, updated); err != nil {
		t.Fatalf("upsert contract update: %v", err)
	}

	got, ok, err := store.GetContract(ctx, "juno1abc")
	if err != nil || !ok {
		t.Fatalf("get contract err=%v ok=%v", err, ok)
	}
	if got.CodeID != 1300 || got.Label != "dao-v2" {
		t.Fatalf("metadata not refreshed: %+v", got)
	}
	if got.InstantiatedAtHeight != 50 || got.InstantiatedAtTimeUnixMs != 5000 {
		t.Fatalf("instantiation provenance overwritten: %+v", got)
	}
}

func TestNearestBlockBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, b := range []Block{
		{Height: 10, TimeUnixMs: 100, Timestamp: "t10"},
		{Height: 20, TimeUnixMs: 200, Timestamp: "t20"},
		{Height: 40, TimeUnixMs: 400, Timestamp: "t40"},
	} {
		if err := store.UpsertBlock(ctx, b); err != nil {
			t.Fatalf("upsert block %d: %v", b.Height, err)
		}
	}

	cases := []struct {
		query  uint64
		want   uint64
		wantOK bool
	}{
		{query: 40, want: 40, wantOK: true},
		{query: 39, want: 20, wantOK: true},
		{query: 20, want: 20, wantOK: true},
		{query: 15, want: 10, wantOK: true},
		{query: 9, wantOK: false},
	}
	for _, tc := range cases {
		b, ok, err := store.NearestBlockBefore(ctx, tc.query)
		if err != nil {
			t.Fatalf("nearest before %d: %v", tc.query, err)
		}
		if ok != tc.wantOK {
			t.Fatalf("nearest before %d: ok=%v want %v", tc.query, ok, tc.wantOK)
		}
		if ok && b.Height != tc.want {
			t.Fatalf("nearest before %d: got %d want %d", tc.query, b.Height, tc.want)
		}
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
