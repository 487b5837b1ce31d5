package chain

import (
	"reflect"
	"testing"
)

func TestCodeIDRegistryLookups(t *testing.T) {
	reg := NewCodeIDRegistry(map[string][]uint64{
		"dao-core": {1300, 1234},
		"dao-rbam": {1235, 1234},
	})

	got := reg.FindWasmCodeIDsByKeys("dao-core", "dao-rbam")
	if !reflect.DeepEqual(got, []uint64{1234, 1235, 1300}) {
		t.Fatalf("expected sorted dedup union, got %v", got)
	}

	if got := reg.FindWasmCodeIDsByKeys("missing"); len(got) != 0 {
		t.Fatalf("unknown key should yield nothing, got %v", got)
	}

	keys := reg.FindWasmCodeKeysByID(1234)
	if len(keys) != 2 {
		t.Fatalf("code id 1234 registered under 2 keys, got %v", keys)
	}

	if !reg.MatchesWasmCodeKeys(1235, "dao-rbam") {
		t.Fatalf("1235 belongs to dao-rbam")
	}
	if reg.MatchesWasmCodeKeys(1235, "dao-core") {
		t.Fatalf("1235 does not belong to dao-core")
	}
	if reg.MatchesWasmCodeKeys(9999, "dao-core") {
		t.Fatalf("unknown id matches nothing")
	}
}

func TestCodeIDRegistryReplace(t *testing.T) {
	reg := NewCodeIDRegistry(map[string][]uint64{"dao-core": {1234}})

	reg.Replace(map[string][]uint64{"dao-core": {1300}})

	if reg.MatchesWasmCodeKeys(1234, "dao-core") {
		t.Fatalf("old id should be gone after Replace")
	}
	if !reg.MatchesWasmCodeKeys(1300, "dao-core") {
		t.Fatalf("new id should be present after Replace")
	}
}
