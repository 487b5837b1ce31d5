package source

import (
	"github.com/devblac/cw-indexer/internal/event"
)

// TypeFeeGrant identifies the fee-grant source kind.
const TypeFeeGrant = "feegrant"

// Fee-grant lifecycle actions emitted as message-level events.
const (
	FeeGrantActionSet    = "set_feegrant"
	FeeGrantActionRevoke = "revoke_feegrant"
	FeeGrantActionUse    = "use_feegrant"
	FeeGrantActionPrune  = "prune_feegrant"
)

// FeeGrantConfig parameterizes a FeeGrantSource. Granter/Grantee are
// optional exact-address filters.
type FeeGrantConfig struct {
	Granter string `yaml:"granter,omitempty"`
	Grantee string `yaml:"grantee,omitempty"`
}

// FeeGrantData is the match record of a FeeGrantSource.
type FeeGrantData struct {
	Action  string `json:"action"`
	Granter string `json:"granter"`
	Grantee string `json:"grantee"`
}

// SourceType implements Data.
func (FeeGrantData) SourceType() string { return TypeFeeGrant }

// NewFeeGrantData builds a match record.
func NewFeeGrantData(action, granter, grantee string) FeeGrantData {
	return FeeGrantData{Action: action, Granter: granter, Grantee: grantee}
}

// FeeGrantSource matches message events carrying fee-grant actions.
type FeeGrantSource struct {
	cfg FeeGrantConfig
}

// NewFeeGrantSource builds the source.
func NewFeeGrantSource(cfg FeeGrantConfig) *FeeGrantSource {
	return &FeeGrantSource{cfg: cfg}
}

// Type implements DataSource.
func (s *FeeGrantSource) Type() string { return TypeFeeGrant }

// Match implements DataSource.
func (s *FeeGrantSource) Match(tx event.TxData) []Data {
	var out []Data
	for _, ev := range tx.Events {
		if ev.Type != "message" || len(ev.Attributes) == 0 {
			continue
		}
		action, _ := ev.First("action")
		if !isFeeGrantAction(action) {
			continue
		}
		granter, _ := ev.First("granter")
		grantee, _ := ev.First("grantee")
		d := NewFeeGrantData(action, granter, grantee)
		if !s.allowed(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// IsOurData implements DataSource.
func (s *FeeGrantSource) IsOurData(d Data) bool {
	fd, ok := d.(FeeGrantData)
	if !ok {
		return false
	}
	return isFeeGrantAction(fd.Action) && s.allowed(fd)
}

func (s *FeeGrantSource) allowed(d FeeGrantData) bool {
	if s.cfg.Granter != "" && d.Granter != s.cfg.Granter {
		return false
	}
	if s.cfg.Grantee != "" && d.Grantee != s.cfg.Grantee {
		return false
	}
	return true
}

func isFeeGrantAction(action string) bool {
	switch action {
	case FeeGrantActionSet, FeeGrantActionRevoke, FeeGrantActionUse, FeeGrantActionPrune:
		return true
	default:
		return false
	}
}
