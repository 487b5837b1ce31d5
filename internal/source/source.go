package source

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/devblac/cw-indexer/internal/event"
)

// Data is a typed match record produced by a DataSource for one
// transaction. Concrete shapes vary per source kind.
type Data interface {
	SourceType() string
}

// DataSource recognizes qualifying events in a transaction. Match is a
// pure function of the transaction's events and the source's immutable
// config: no I/O, no side effects, and never an error (non-matching input
// is silently skipped). IsOurData must accept any record Match could have
// produced, so backfilled records can be re-validated.
type DataSource interface {
	Type() string
	Match(tx event.TxData) []Data
	IsOurData(d Data) bool
}

// StringSet is a config value that accepts either a single YAML scalar or
// a sequence. An empty set means "unrestricted" wherever it is optional.
type StringSet []string

// UnmarshalYAML decodes a scalar or a sequence into the set.
func (s *StringSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = StringSet{v}
		return nil
	case yaml.SequenceNode:
		var vs []string
		if err := node.Decode(&vs); err != nil {
			return err
		}
		*s = StringSet(vs)
		return nil
	default:
		return fmt.Errorf("expected string or list, got yaml kind %d", node.Kind)
	}
}

// Contains reports set membership. An empty set contains nothing; callers
// that treat empty as "any" must check len first (see Allows).
func (s StringSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Allows is Contains with empty-set-means-any semantics, the common case
// for optional allow filters.
func (s StringSet) Allows(v string) bool {
	return len(s) == 0 || s.Contains(v)
}

// ContractAddressKey is the wasm module's reserved attribute carrying the
// emitting contract's address.
const ContractAddressKey = "_contract_address"
