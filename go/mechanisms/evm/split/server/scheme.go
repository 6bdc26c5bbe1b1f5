// Package server implements the EVM split-scheme resource-server half.
// Pricing and EIP-712 domain population are identical to the exact
// scheme's, so this delegates to it and adds recipient-configuration
// validation.
package server

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/x402-go/x402/go"
	exactserver "github.com/x402-go/x402/go/mechanisms/evm/exact/server"
	"github.com/x402-go/x402/go/mechanisms/evm/split"
)

// SplitEvmScheme implements x402.SchemeNetworkServer for EVM split
// payments.
type SplitEvmScheme struct {
	exact *exactserver.ExactEvmScheme
}

// NewSplitEvmScheme creates a new SplitEvmScheme.
func NewSplitEvmScheme() *SplitEvmScheme {
	return &SplitEvmScheme{exact: exactserver.NewExactEvmScheme()}
}

func (s *SplitEvmScheme) Scheme() string {
	return x402.SchemeSplit
}

// ParsePrice is identical to the exact scheme's: split parses the total
// price the same way, before it's divided among recipients at settlement.
func (s *SplitEvmScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	return s.exact.ParsePrice(price, network)
}

// EnhancePaymentRequirements fills in the asset address, EIP-712
// name/version extras, and atomic amount exactly like the exact scheme,
// then validates the configured recipients if present.
func (s *SplitEvmScheme) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	requirements, err := s.exact.EnhancePaymentRequirements(ctx, requirements, supportedKind, extensionKeys)
	if err != nil {
		return requirements, err
	}

	if requirements.Extra == nil {
		return requirements, nil
	}
	if _, hasRecipients := requirements.Extra["recipients"]; !hasRecipients {
		return requirements, nil
	}

	config, err := split.ParseConfig(requirements.Extra)
	if err != nil {
		return requirements, err
	}
	if err := config.Validate(); err != nil {
		return requirements, err
	}
	for _, r := range config.Recipients {
		if !common.IsHexAddress(r.Address) {
			return requirements, fmt.Errorf("invalid recipient address: %s", r.Address)
		}
	}

	return requirements, nil
}
