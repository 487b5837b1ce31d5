package extractor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/devblac/cw-indexer/internal/source"
	"github.com/devblac/cw-indexer/internal/storage"
)

// TypeFeeGrant identifies the fee-grant extractor.
const TypeFeeGrant = "feegrant"

// NewFeeGrant builds the extractor tracking the fee-grant lifecycle. Its
// handler is a pure translation of the match record.
func NewFeeGrant(cfg source.FeeGrantConfig) (*Extractor, error) {
	bindings := []Binding{
		{Handler: "grant", Source: source.NewFeeGrantSource(cfg)},
	}
	handlers := map[string]HandlerFunc{
		"grant": feeGrantGrant,
	}
	return New(TypeFeeGrant, bindings, handlers)
}

func feeGrantGrant(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error) {
	data, ok := d.(source.FeeGrantData)
	if !ok {
		return nil, fmt.Errorf("feegrant: unexpected data shape %T", d)
	}
	address := data.Granter
	if address == "" {
		address = data.Grantee
	}
	if address == "" {
		// Message events without either address carry nothing to key on.
		return nil, nil
	}
	payload, err := json.Marshal(struct {
		source.FeeGrantData
		Active bool `json:"active"`
	}{
		FeeGrantData: data,
		Active:       data.Action == source.FeeGrantActionSet || data.Action == source.FeeGrantActionUse,
	})
	if err != nil {
		return nil, fmt.Errorf("feegrant: marshal grant: %w", err)
	}
	return []storage.Extraction{{
		Address: address,
		Name:    "feegrant/" + data.Grantee,
		Data:    payload,
	}}, nil
}
