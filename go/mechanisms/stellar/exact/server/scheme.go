// Package server implements the Stellar exact-scheme resource-server half:
// turning a configured price into concrete PaymentRequirements.
package server

import (
	"context"
	"fmt"
	"math"
	"strconv"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
)

// ExactStellarScheme implements x402.SchemeNetworkServer for Stellar exact
// payments.
type ExactStellarScheme struct {
	areFeesSponsored bool
}

// NewExactStellarScheme creates a new ExactStellarScheme. areFeesSponsored
// advertises that the facilitator, not the payer, covers the network fee —
// required by the exact scheme's client.
func NewExactStellarScheme(areFeesSponsored bool) *ExactStellarScheme {
	return &ExactStellarScheme{areFeesSponsored: areFeesSponsored}
}

func (s *ExactStellarScheme) Scheme() string {
	return stellar.SchemeExact
}

func (s *ExactStellarScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	if priceMap, ok := price.(map[string]interface{}); ok {
		if amountVal, hasAmount := priceMap["amount"]; hasAmount {
			amountStr, ok := amountVal.(string)
			if !ok {
				return x402.AssetAmount{}, fmt.Errorf("amount must be a string")
			}
			asset, _ := priceMap["asset"].(string)
			extra, _ := priceMap["extra"].(map[string]interface{})
			return x402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
		}
	}
	return x402.AssetAmount{}, fmt.Errorf("stellar exact scheme requires an explicit asset/amount, got %v", price)
}

// EnhancePaymentRequirements converts a decimal amount into atomic units
// and advertises the fee-sponsorship extra the client requires.
func (s *ExactStellarScheme) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	if !stellar.ValidateStellarAssetAddress(requirements.Asset) {
		return requirements, fmt.Errorf("invalid Stellar asset contract address: %s", requirements.Asset)
	}
	if !stellar.ValidateStellarDestinationAddress(requirements.PayTo) {
		return requirements, fmt.Errorf("invalid payTo address: %s", requirements.PayTo)
	}

	if amount, err := strconv.ParseFloat(requirements.Amount, 64); err == nil {
		multiplier := math.Pow10(stellar.DefaultTokenDecimals)
		atomic := int64(amount * multiplier)
		requirements.Amount = strconv.FormatInt(atomic, 10)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
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
