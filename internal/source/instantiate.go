package source

import (
	"strconv"

	"github.com/devblac/cw-indexer/internal/chain"
	"github.com/devblac/cw-indexer/internal/event"
)

// TypeWasmInstantiate identifies the instantiate-or-migrate source kind.
const TypeWasmInstantiate = "wasm/instantiate"

// WasmInstantiateConfig parameterizes a WasmInstantiateSource.
type WasmInstantiateConfig struct {
	// CodeIDKeys are symbolic contract kinds resolved to numeric code ids
	// through the registry at construction time. Empty means any code id.
	CodeIDKeys []string `yaml:"code_id_keys,omitempty"`
	// Instantiate / Migrate select which event types to match. When both
	// are false the source matches both, the common case.
	Instantiate bool `yaml:"instantiate,omitempty"`
	Migrate     bool `yaml:"migrate,omitempty"`
}

// WasmInstantiateData is the match record of a WasmInstantiateSource.
// One instantiate event can name several contracts when the wasm module
// emits repeated _contract_address attributes.
type WasmInstantiateData struct {
	// Kind is "instantiate" or "migrate".
	Kind      string   `json:"kind"`
	CodeID    uint64   `json:"codeId"`
	Addresses []string `json:"addresses"`
	// RawAttributes preserves the source event's attribute list.
	RawAttributes []event.Attribute `json:"attributes,omitempty"`
}

// SourceType implements Data.
func (WasmInstantiateData) SourceType() string { return TypeWasmInstantiate }

// NewWasmInstantiateData builds a match record; the backfill generators
// use the same factory so handlers consume one shape.
func NewWasmInstantiateData(kind string, codeID uint64, addresses []string, attrs []event.Attribute) WasmInstantiateData {
	cp := make([]string, len(addresses))
	copy(cp, addresses)
	var raw []event.Attribute
	if len(attrs) > 0 {
		raw = make([]event.Attribute, len(attrs))
		copy(raw, attrs)
	}
	return WasmInstantiateData{Kind: kind, CodeID: codeID, Addresses: cp, RawAttributes: raw}
}

// WasmInstantiateSource matches instantiate/migrate events whose code id
// belongs to a set resolved once at construction.
type WasmInstantiateSource struct {
	cfg         WasmInstantiateConfig
	codeIDs     map[uint64]struct{}
	anyCodeID   bool
	instantiate bool
	migrate     bool
}

// NewWasmInstantiateSource resolves the configured symbolic keys against
// the registry and builds the source.
func NewWasmInstantiateSource(cfg WasmInstantiateConfig, reg *chain.CodeIDRegistry) *WasmInstantiateSource {
	s := &WasmInstantiateSource{
		cfg:         cfg,
		codeIDs:     map[uint64]struct{}{},
		instantiate: cfg.Instantiate,
		migrate:     cfg.Migrate,
	}
	if !cfg.Instantiate && !cfg.Migrate {
		s.instantiate = true
		s.migrate = true
	}
	if len(cfg.CodeIDKeys) == 0 {
		s.anyCodeID = true
		return s
	}
	for _, id := range reg.FindWasmCodeIDsByKeys(cfg.CodeIDKeys...) {
		s.codeIDs[id] = struct{}{}
	}
	return s
}

// Type implements DataSource.
func (s *WasmInstantiateSource) Type() string { return TypeWasmInstantiate }

// Match implements DataSource. code_id must be a strictly positive decimal
// integer; non-numeric, negative, zero, or fractional values never match.
func (s *WasmInstantiateSource) Match(tx event.TxData) []Data {
	var out []Data
	for _, ev := range tx.Events {
		if !s.wantsKind(ev.Type) || len(ev.Attributes) == 0 {
			continue
		}
		rawID, ok := ev.First("code_id")
		if !ok {
			continue
		}
		codeID, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || codeID == 0 {
			continue
		}
		if !s.tracksCodeID(codeID) {
			continue
		}
		addrs := contractAddresses(ev)
		if len(addrs) == 0 {
			continue
		}
		out = append(out, NewWasmInstantiateData(ev.Type, codeID, addrs, ev.Attributes))
	}
	return out
}

// IsOurData implements DataSource.
func (s *WasmInstantiateSource) IsOurData(d Data) bool {
	id, ok := d.(WasmInstantiateData)
	if !ok {
		return false
	}
	if !s.wantsKind(id.Kind) || len(id.Addresses) == 0 {
		return false
	}
	return s.tracksCodeID(id.CodeID)
}

func (s *WasmInstantiateSource) wantsKind(kind string) bool {
	switch kind {
	case "instantiate":
		return s.instantiate
	case "migrate":
		return s.migrate
	default:
		return false
	}
}

func (s *WasmInstantiateSource) tracksCodeID(id uint64) bool {
	if s.anyCodeID {
		return id > 0
	}
	_, ok := s.codeIDs[id]
	return ok
}

func contractAddresses(ev event.Event) []string {
	var out []string
	for _, a := range ev.Attributes {
		if a.Key == ContractAddressKey && a.Value != "" {
			out = append(out, a.Value)
		}
	}
	return out
}
