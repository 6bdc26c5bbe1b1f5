// Package server implements the Stellar split-scheme resource-server half.
package server

import (
	"context"
	"fmt"
	"math"
	"strconv"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
	"github.com/x402-go/x402/go/mechanisms/stellar/split"
)

// SplitStellarScheme implements x402.SchemeNetworkServer for Stellar split
// payments.
type SplitStellarScheme struct {
	areFeesSponsored bool
}

// NewSplitStellarScheme creates a new SplitStellarScheme.
func NewSplitStellarScheme(areFeesSponsored bool) *SplitStellarScheme {
	return &SplitStellarScheme{areFeesSponsored: areFeesSponsored}
}

func (s *SplitStellarScheme) Scheme() string {
	return stellar.SchemeSplit
}

func (s *SplitStellarScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	priceMap, ok := price.(map[string]interface{})
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("stellar split scheme requires an explicit asset/amount, got %v", price)
	}
	amountStr, ok := priceMap["amount"].(string)
	if !ok {
		return x402.AssetAmount{}, fmt.Errorf("amount must be a string")
	}
	asset, _ := priceMap["asset"].(string)
	extra, _ := priceMap["extra"].(map[string]interface{})
	return x402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
}

// EnhancePaymentRequirements validates the configured recipients, converts
// the amount to atomic units, and publishes the recipient list and
// fee-sponsorship flag into requirements.extra.
func (s *SplitStellarScheme) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	if !stellar.ValidateStellarAssetAddress(requirements.Asset) {
		return requirements, fmt.Errorf("invalid Stellar asset contract address: %s", requirements.Asset)
	}
	if !stellar.ValidateStellarDestinationAddress(requirements.PayTo) {
		return requirements, fmt.Errorf("invalid escrow payTo address: %s", requirements.PayTo)
	}

	if requirements.Extra == nil {
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
		if !stellar.ValidateStellarDestinationAddress(r.Address) {
			return requirements, fmt.Errorf("invalid recipient address: %s", r.Address)
		}
	}

	if amount, err := strconv.ParseFloat(requirements.Amount, 64); err == nil {
		multiplier := math.Pow10(stellar.DefaultTokenDecimals)
		atomic := int64(amount * multiplier)
		requirements.Amount = strconv.FormatInt(atomic, 10)
	}

	requirements.Extra["areFeesSponsored"] = s.areFeesSponsored

	for _, key := range extensionKeys {
		if supportedKind.Extra != nil {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}

	return requirements, nil
}
