package event

import (
	"reflect"
	"testing"
)

func TestAttrMapPreservesDuplicates(t *testing.T) {
	m := NewAttrMap([]Attribute{
		{Key: "_contract_address", Value: "juno1a"},
		{Key: "action", Value: "create_role"},
		{Key: "_contract_address", Value: "juno1b"},
		{Key: "role", Value: "admin"},
	})

	if got, ok := m.Get("_contract_address"); !ok || got != "juno1a" {
		t.Fatalf("Get should return first value, got %q ok=%v", got, ok)
	}
	if got := m.All("_contract_address"); !reflect.DeepEqual(got, []string{"juno1a", "juno1b"}) {
		t.Fatalf("All should keep emission order, got %v", got)
	}
	if got := m.Keys(); !reflect.DeepEqual(got, []string{"_contract_address", "action", "role"}) {
		t.Fatalf("Keys should be first-appearance order, got %v", got)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 distinct keys, got %d", m.Len())
	}
	if !m.Has("role") || m.Has("missing") {
		t.Fatalf("Has misreported membership")
	}
}

func TestAttrMapToMapCopies(t *testing.T) {
	m := NewAttrMap([]Attribute{{Key: "k", Value: "v1"}, {Key: "k", Value: "v2"}})

	out := m.ToMap()
	out["k"][0] = "mutated"

	if got := m.All("k"); got[0] != "v1" {
		t.Fatalf("ToMap must not alias internal storage, got %v", got)
	}
}

func TestEventFirst(t *testing.T) {
	ev := Event{Type: "wasm", Attributes: []Attribute{
		{Key: "action", Value: "a"},
		{Key: "action", Value: "b"},
	}}

	if v, ok := ev.First("action"); !ok || v != "a" {
		t.Fatalf("First should return first occurrence, got %q ok=%v", v, ok)
	}
	if _, ok := ev.First("missing"); ok {
		t.Fatalf("First should miss absent keys")
	}
}
