package source

import (
	"github.com/devblac/cw-indexer/internal/event"
)

// TypeWasmEvent identifies the wasm-event source kind.
const TypeWasmEvent = "wasm/event"

// AttributeRequirement is an auxiliary filter on the candidate event.
// A bare key means "present with any value"; with Values set, at least one
// of the key's values must be a member.
type AttributeRequirement struct {
	Key    string    `yaml:"key"`
	Values StringSet `yaml:"values,omitempty"`
}

// WasmEventConfig parameterizes a WasmEventSource.
type WasmEventConfig struct {
	// EventType is the event category to inspect; defaults to "wasm".
	EventType string `yaml:"event_type,omitempty"`
	// Key names the attribute keys that produce matches. Required.
	Key StringSet `yaml:"key"`
	// Value restricts qualifying attribute values; empty means any.
	Value StringSet `yaml:"value,omitempty"`
	// ContractAddresses restricts the emitting contract; empty means any.
	ContractAddresses StringSet `yaml:"contract_addresses,omitempty"`
	// OtherAttributes are auxiliary requirements the event must satisfy
	// before its attributes are scanned for matches.
	OtherAttributes []AttributeRequirement `yaml:"other_attributes,omitempty"`
}

// WasmEventData is the match record of a WasmEventSource: one record per
// qualifying attribute occurrence.
type WasmEventData struct {
	// Address is the emitting contract's address (first value of
	// _contract_address on the source event).
	Address string `json:"address"`
	Key     string `json:"key"`
	Value   string `json:"value"`
	// Attributes is the full multi-value view of the source event.
	Attributes event.AttrMap `json:"-"`
	// RawAttributes preserves the source event's ordered attribute list
	// for replay fidelity.
	RawAttributes []event.Attribute `json:"attributes"`
}

// SourceType implements Data.
func (WasmEventData) SourceType() string { return TypeWasmEvent }

// NewWasmEventData builds a match record from one qualifying attribute of
// an event. The sync path uses the same factory so live and backfilled
// records are structurally interchangeable.
func NewWasmEventData(address, key, value string, attrs []event.Attribute) WasmEventData {
	raw := make([]event.Attribute, len(attrs))
	copy(raw, attrs)
	return WasmEventData{
		Address:       address,
		Key:           key,
		Value:         value,
		Attributes:    event.NewAttrMap(raw),
		RawAttributes: raw,
	}
}

// WasmEventSource matches wasm events by contract address, attribute
// key/value membership, and auxiliary attribute requirements.
type WasmEventSource struct {
	cfg WasmEventConfig
}

// NewWasmEventSource builds the source; the config is immutable afterwards.
func NewWasmEventSource(cfg WasmEventConfig) *WasmEventSource {
	if cfg.EventType == "" {
		cfg.EventType = "wasm"
	}
	return &WasmEventSource{cfg: cfg}
}

// Type implements DataSource.
func (s *WasmEventSource) Type() string { return TypeWasmEvent }

// Match implements DataSource. An event qualifies when its type matches
// the configured category, it carries a non-empty _contract_address, the
// address passes the allow set, and every auxiliary requirement holds.
// Each attribute occurrence passing the key/value filters then yields one
// record, so duplicate qualifying attributes yield multiple records.
func (s *WasmEventSource) Match(tx event.TxData) []Data {
	var out []Data
	for _, ev := range tx.Events {
		if ev.Type != s.cfg.EventType || len(ev.Attributes) == 0 {
			continue
		}
		addr, ok := ev.First(ContractAddressKey)
		if !ok || addr == "" {
			continue
		}
		if !s.cfg.ContractAddresses.Allows(addr) {
			continue
		}
		attrs := event.NewAttrMap(ev.Attributes)
		if !satisfiesRequirements(attrs, s.cfg.OtherAttributes) {
			continue
		}
		for _, a := range ev.Attributes {
			if !s.cfg.Key.Contains(a.Key) {
				continue
			}
			if !s.cfg.Value.Allows(a.Value) {
				continue
			}
			out = append(out, NewWasmEventData(addr, a.Key, a.Value, ev.Attributes))
		}
	}
	return out
}

// IsOurData implements DataSource. It accepts any record whose key, value,
// address, and attribute bag are consistent with an event this source
// could have matched.
func (s *WasmEventSource) IsOurData(d Data) bool {
	wd, ok := d.(WasmEventData)
	if !ok {
		return false
	}
	if wd.Address == "" || !s.cfg.ContractAddresses.Allows(wd.Address) {
		return false
	}
	if !s.cfg.Key.Contains(wd.Key) || !s.cfg.Value.Allows(wd.Value) {
		return false
	}
	return satisfiesRequirements(wd.Attributes, s.cfg.OtherAttributes)
}

func satisfiesRequirements(attrs event.AttrMap, reqs []AttributeRequirement) bool {
	for _, req := range reqs {
		vs := attrs.All(req.Key)
		if len(vs) == 0 {
			return false
		}
		if len(req.Values) == 0 {
			continue
		}
		found := false
		for _, v := range vs {
			if req.Values.Contains(v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
