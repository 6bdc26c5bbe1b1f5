// Package split implements the Stellar split-scheme shared recipient
// configuration and dust-allocation logic. The client, facilitator and
// server halves live in their own subpackages; the client half delegates
// to x402-go/go/mechanisms/stellar/exact/client, since the wire transaction
// is identical in shape to the exact scheme's escrow transfer.
package split

import (
	"fmt"
	"math/big"

	"github.com/x402-go/x402/go/mechanisms/stellar"
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

// SplitAmount is one recipient's share of a distributed total.
type SplitAmount struct {
	Address string
	Amount  string
}

// CalculateSplitAmounts divides totalAmount among recipients by their bps
// share, flooring each share and crediting the leftover dust to the FIRST
// recipient. This mirrors the Stellar original's dust policy, which
// deliberately differs from the EVM and Solana split schemes'
// remainder-to-last rule.
func CalculateSplitAmounts(totalAmount string, recipients []Recipient) ([]SplitAmount, error) {
	total, ok := new(big.Int).SetString(totalAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid total amount: %s", totalAmount)
	}

	bpsDivisor := big.NewInt(10000)
	splits := make([]SplitAmount, len(recipients))
	allocated := big.NewInt(0)
	for i, r := range recipients {
		share := new(big.Int).Mul(total, big.NewInt(int64(r.BPS)))
		share.Div(share, bpsDivisor)
		splits[i] = SplitAmount{Address: r.Address, Amount: share.String()}
		allocated.Add(allocated, share)
	}

	dust := new(big.Int).Sub(total, allocated)
	if dust.Sign() > 0 && len(splits) > 0 {
		first, _ := new(big.Int).SetString(splits[0].Amount, 10)
		first.Add(first, dust)
		splits[0].Amount = first.String()
	}

	return splits, nil
}

var _ = stellar.SchemeSplit
