// Package split implements the EVM split-scheme shared recipient
// configuration and dust-allocation logic. The client half is the exact
// scheme's EIP-3009 client unchanged — the wire authorization it produces
// (transfer to the escrow payTo) is identical in shape for exact and split.
package split

import (
	"fmt"
	"math/big"
)

// Recipient is one payee of a split payment's escrowed funds.
type Recipient struct {
	Address string `json:"address"`
	BPS     int    `json:"bps"`
	Label   string `json:"label,omitempty"`
}

func (r Recipient) Validate() error {
	if r.Address == "" {
		return fmt.Errorf("recipient address must not be empty")
	}
	if r.BPS < 1 || r.BPS > 10000 {
		return fmt.Errorf("recipient bps must be between 1 and 10000, got %d for %s", r.BPS, r.Address)
	}
	return nil
}

// Config is the full set of recipients a split payment distributes to.
type Config struct {
	Recipients []Recipient `json:"recipients"`
}

func (c Config) Validate() error {
	if len(c.Recipients) == 0 {
		return fmt.Errorf("split must have at least 1 recipient")
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
		label, _ := m["label"].(string)
		bps := 0
		switch v := m["bps"].(type) {
		case int:
			bps = v
		case float64:
			bps = int(v)
		}
		config.Recipients = append(config.Recipients, Recipient{Address: address, BPS: bps, Label: label})
	}
	return config, nil
}

// SplitAmount is one recipient's share of a distributed total.
type SplitAmount struct {
	Address string
	Amount  string
	Label   string
}

// CalculateSplitAmounts divides totalAmount among recipients by their bps
// share, flooring each share except the LAST recipient, who absorbs the
// leftover dust. This is the mirror image of the Stellar split scheme's
// remainder-to-first rule.
func CalculateSplitAmounts(totalAmount string, recipients []Recipient) ([]SplitAmount, error) {
	total, ok := new(big.Int).SetString(totalAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid total amount: %s", totalAmount)
	}

	bpsDivisor := big.NewInt(10000)
	splits := make([]SplitAmount, len(recipients))
	distributed := big.NewInt(0)

	for i, r := range recipients {
		var share *big.Int
		if i == len(recipients)-1 {
			share = new(big.Int).Sub(total, distributed)
		} else {
			share = new(big.Int).Mul(total, big.NewInt(int64(r.BPS)))
			share.Div(share, bpsDivisor)
		}
		splits[i] = SplitAmount{Address: r.Address, Amount: share.String(), Label: r.Label}
		distributed.Add(distributed, share)
	}

	return splits, nil
}
