package extractor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/devblac/cw-indexer/internal/source"
	"github.com/devblac/cw-indexer/internal/storage"
)

// TypeBank identifies the bank-transfer extractor.
const TypeBank = "bank"

// NewBank builds the extractor recording native-token transfers. Its
// handler is a pure translation of the match record, no chain queries.
func NewBank(cfg source.BankTransferConfig) (*Extractor, error) {
	bindings := []Binding{
		{Handler: "transfer", Source: source.NewBankTransferSource(cfg)},
	}
	handlers := map[string]HandlerFunc{
		"transfer": bankTransfer,
	}
	return New(TypeBank, bindings, handlers)
}

func bankTransfer(ctx context.Context, env *Env, d source.Data) ([]storage.Extraction, error) {
	data, ok := d.(source.BankTransferData)
	if !ok {
		return nil, fmt.Errorf("bank: unexpected data shape %T", d)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("bank: marshal transfer: %w", err)
	}
	// Recorded against the recipient; the sender is recoverable from data.
	return []storage.Extraction{{
		Address: data.Recipient,
		Name:    "bank/transfer/" + data.Denom,
		Data:    payload,
	}}, nil
}
