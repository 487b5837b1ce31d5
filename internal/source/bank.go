package source

import (
	"strings"

	"github.com/devblac/cw-indexer/internal/event"
)

// TypeBankTransfer identifies the bank-transfer source kind.
const TypeBankTransfer = "bank/transfer"

// BankTransferConfig parameterizes a BankTransferSource. Allow and deny
// lists apply independently to sender, recipient, and denom.
type BankTransferConfig struct {
	AllowSenders    StringSet `yaml:"allow_senders,omitempty"`
	DenySenders     StringSet `yaml:"deny_senders,omitempty"`
	AllowRecipients StringSet `yaml:"allow_recipients,omitempty"`
	DenyRecipients  StringSet `yaml:"deny_recipients,omitempty"`
	AllowDenoms     StringSet `yaml:"allow_denoms,omitempty"`
	DenyDenoms      StringSet `yaml:"deny_denoms,omitempty"`
}

// BankTransferData is the match record of a BankTransferSource.
type BankTransferData struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	// Amount is the integer amount of the first coin, kept as a decimal
	// string since chain amounts can exceed uint64.
	Amount string `json:"amount"`
	Denom  string `json:"denom"`
}

// SourceType implements Data.
func (BankTransferData) SourceType() string { return TypeBankTransfer }

// NewBankTransferData builds a match record.
func NewBankTransferData(sender, recipient, amount, denom string) BankTransferData {
	return BankTransferData{Sender: sender, Recipient: recipient, Amount: amount, Denom: denom}
}

// BankTransferSource matches native-token transfer events.
type BankTransferSource struct {
	cfg BankTransferConfig
}

// NewBankTransferSource builds the source.
func NewBankTransferSource(cfg BankTransferConfig) *BankTransferSource {
	return &BankTransferSource{cfg: cfg}
}

// Type implements DataSource.
func (s *BankTransferSource) Type() string { return TypeBankTransfer }

// Match implements DataSource. A transfer event must carry non-empty
// sender and recipient and a parseable coin amount; multi-coin amounts
// (comma-joined) contribute only their first coin.
func (s *BankTransferSource) Match(tx event.TxData) []Data {
	var out []Data
	for _, ev := range tx.Events {
		if ev.Type != "transfer" || len(ev.Attributes) == 0 {
			continue
		}
		sender, _ := ev.First("sender")
		recipient, _ := ev.First("recipient")
		rawAmount, _ := ev.First("amount")
		if sender == "" || recipient == "" {
			continue
		}
		amount, denom, ok := parseFirstCoin(rawAmount)
		if !ok {
			continue
		}
		d := NewBankTransferData(sender, recipient, amount, denom)
		if !s.allowed(d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// IsOurData implements DataSource.
func (s *BankTransferSource) IsOurData(d Data) bool {
	bd, ok := d.(BankTransferData)
	if !ok {
		return false
	}
	if bd.Sender == "" || bd.Recipient == "" || bd.Denom == "" {
		return false
	}
	if !isDecimal(bd.Amount) {
		return false
	}
	return s.allowed(bd)
}

func (s *BankTransferSource) allowed(d BankTransferData) bool {
	if !s.cfg.AllowSenders.Allows(d.Sender) || s.cfg.DenySenders.Contains(d.Sender) {
		return false
	}
	if !s.cfg.AllowRecipients.Allows(d.Recipient) || s.cfg.DenyRecipients.Contains(d.Recipient) {
		return false
	}
	if !s.cfg.AllowDenoms.Allows(d.Denom) || s.cfg.DenyDenoms.Contains(d.Denom) {
		return false
	}
	return true
}

// parseFirstCoin splits a coin string like "1200ujuno" or
// "1200ujuno,5ibc/ABC" into its first coin's amount and denom.
func parseFirstCoin(raw string) (amount, denom string, ok bool) {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.TrimSpace(raw)
	split := len(raw)
	for i, r := range raw {
		if r < '0' || r > '9' {
			split = i
			break
		}
	}
	if split == 0 || split == len(raw) {
		return "", "", false
	}
	return raw[:split], raw[split:], true
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
