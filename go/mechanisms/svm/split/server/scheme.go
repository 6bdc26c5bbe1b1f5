// Package server implements the SVM split-scheme resource-server half.
package server

import (
	"context"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/svm"
	exactserver "github.com/x402-go/x402/go/mechanisms/svm/exact/server"
	"github.com/x402-go/x402/go/mechanisms/svm/split"
)

// SplitSvmScheme implements x402.SchemeNetworkServer for Solana split
// payments.
type SplitSvmScheme struct {
	exact *exactserver.ExactSvmScheme
}

// NewSplitSvmScheme creates a new SplitSvmScheme.
func NewSplitSvmScheme() *SplitSvmScheme {
	return &SplitSvmScheme{exact: exactserver.NewExactSvmScheme()}
}

func (s *SplitSvmScheme) Scheme() string {
	return svm.SchemeSplit
}

// ParsePrice reuses the exact scheme's dollar-string and default-asset
// conversion convenience — pricing a split payment works the same as
// pricing an exact one.
func (s *SplitSvmScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	return s.exact.ParsePrice(price, network)
}

// EnhancePaymentRequirements validates the configured recipients, fills in
// the mint address and fee payer, and publishes the recipient list into
// requirements.extra.
func (s *SplitSvmScheme) EnhancePaymentRequirements(
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
		return requirements, fmt.Errorf("split scheme requires requirements.extra.recipients")
	}
	if _, ok := requirements.Extra["recipients"]; !ok {
		return requirements, fmt.Errorf("split scheme requires requirements.extra.recipients")
	}

	config, err := split.ParseConfig(requirements.Extra)
	if err != nil {
		return requirements, err
	}
	if err := config.Validate(); err != nil {
		return requirements, err
	}
	for _, r := range config.Recipients {
		if _, err := solana.PublicKeyFromBase58(r.Address); err != nil {
			return requirements, fmt.Errorf("invalid recipient address %s: %w", r.Address, err)
		}
	}

	if _, err := strconv.ParseUint(requirements.Amount, 10, 64); err != nil {
		return requirements, fmt.Errorf("invalid amount: %s", requirements.Amount)
	}

	return requirements, nil
}
