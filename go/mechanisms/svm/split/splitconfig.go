// Package split implements the SVM split-scheme shared recipient
// configuration and dust-allocation logic. The client, facilitator and
// server halves live in their own subpackages; the client half delegates
// to the exact scheme's client, whose transfer pays requirements.PayTo's
// ATA, and the split facilitator accepts it only when that is the fee
// payer's own ATA.
package split

import (
	"fmt"
	"strconv"
)

// Recipient is one payee of a split payment's escrowed funds.
type Recipient struct {
	Address string `json:"address"`
	BPS     int    `json:"bps"`
}

func (r Recipient) Validate() error {
	if r.Address == "" {
		return fmt.Errorf("recipient address must not be empty")
	}
	if r.BPS < 1 || r.BPS > 10000 {
		return fmt.Errorf("recipient bps must be between 1 and 10000, got %d", r.BPS)
	}
	return nil
}

// Config is the full set of recipients a split payment distributes to.
type Config struct {
	Recipients []Recipient `json:"recipients"`
}

func (c Config) Validate() error {
	if len(c.Recipients) == 0 {
		return fmt.Errorf("split config must have at least one recipient")
	}
	total := 0
	for _, r := range c.Recipients {
		if err := r.Validate(); err != nil {
			return err
		}
		total += r.BPS
	}
	if total != 10000 {
		return fmt.Errorf("recipient bps must sum to 10000, got %d", total)
	}
	return nil
}

// ParseConfig reads a split Config out of a requirements.extra["recipients"]
// value.
func ParseConfig(extra map[string]interface{}) (*Config, error) {
	raw, ok := extra["recipients"]
	if !ok {
		return nil, fmt.Errorf("missing recipients in requirements.extra")
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("recipients must be a list")
	}

	config := &Config{}
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("each recipient must be an object")
		}
		address, _ := m["address"].(string)
		bps := 0
		switch v := m["bps"].(type) {
		case int:
			bps = v
		case float64:
			bps = int(v)
		}
		config.Recipients = append(config.Recipients, Recipient{Address: address, BPS: bps})
	}
	return config, nil
}

// SplitAmount is one recipient's share, in atomic units, of a distributed
// total.
type SplitAmount struct {
	Address string
	Amount  uint64
}

// CalculateSplitAmounts divides totalAmount among recipients by their bps
// share, flooring each share except the LAST recipient, who absorbs the
// leftover dust — the same rule the EVM split scheme uses. Despite a comment
// in the upstream Python claiming otherwise, this does NOT match Stellar
// split, which gives dust to the FIRST recipient.
func CalculateSplitAmounts(totalAmount string, recipients []Recipient) ([]SplitAmount, error) {
	total, err := strconv.ParseUint(totalAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid total amount: %s", totalAmount)
	}

	splits := make([]SplitAmount, len(recipients))
	var allocated uint64

	for i, r := range recipients {
		var amount uint64
		if i == len(recipients)-1 {
			amount = total - allocated
		} else {
			amount = total * uint64(r.BPS) / 10000
			allocated += amount
		}
		splits[i] = SplitAmount{Address: r.Address, Amount: amount}
	}
	return splits, nil
}

// FormatAmount renders an atomic-unit amount as a decimal string.
func FormatAmount(amount uint64) string {
	return strconv.FormatUint(amount, 10)
}
