// Package server implements the SVM exact-scheme resource-server half:
// turning a configured price into concrete PaymentRequirements.
package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/svm"
)

// ExactSvmScheme implements x402.SchemeNetworkServer for Solana exact
// payments.
type ExactSvmScheme struct{}

// NewExactSvmScheme creates a new ExactSvmScheme.
func NewExactSvmScheme() *ExactSvmScheme {
	return &ExactSvmScheme{}
}

func (s *ExactSvmScheme) Scheme() string {
	return svm.SchemeExact
}

// ParsePrice converts a configured price into atomic units of the
// network's default asset. An already-resolved AssetAmount (map with
// "amount" and "asset") passes through unchanged.
func (s *ExactSvmScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	networkStr := string(network)

	config, err := svm.GetNetworkConfig(networkStr)
	if err != nil {
		return x402.AssetAmount{}, err
	}

	if priceMap, ok := price.(map[string]interface{}); ok {
		if amountVal, hasAmount := priceMap["amount"]; hasAmount {
			amountStr, ok := amountVal.(string)
			if !ok {
				return x402.AssetAmount{}, fmt.Errorf("amount must be a string")
			}
			asset := config.DefaultAsset.Address
			if assetVal, ok := priceMap["asset"].(string); ok && assetVal != "" {
				asset = assetVal
			}
			extra, _ := priceMap["extra"].(map[string]interface{})
			return x402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
		}
	}

	decimalAmount, err := parseMoneyToDecimal(price)
	if err != nil {
		return x402.AssetAmount{}, err
	}

	return defaultMoneyConversion(decimalAmount, config)
}

func parseMoneyToDecimal(price x402.Price) (float64, error) {
	if priceStr, ok := price.(string); ok {
		clean := strings.TrimSpace(priceStr)
		clean = strings.TrimPrefix(clean, "$")
		clean = strings.TrimSpace(clean)
		parts := strings.Fields(clean)
		if len(parts) >= 1 {
			amount, err := strconv.ParseFloat(parts[0], 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse price string %q: %w", priceStr, err)
			}
			return amount, nil
		}
	}

	switch v := price.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}

	return 0, fmt.Errorf("invalid price format: %v", price)
}

func defaultMoneyConversion(amount float64, config *svm.NetworkConfig) (x402.AssetAmount, error) {
	amountStr := fmt.Sprintf("%.6f", amount)
	parsedAmount, err := svm.ParseAmount(amountStr, config.DefaultAsset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("failed to convert amount: %w", err)
	}

	return x402.AssetAmount{
		Amount: strconv.FormatUint(parsedAmount, 10),
		Asset:  config.DefaultAsset.Address,
	}, nil
}

// EnhancePaymentRequirements fills in the mint address and copies the
// facilitator-selected feePayer into requirements.extra, since the
// facilitator — not the payer — covers Solana's network fee.
func (s *ExactSvmScheme) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	networkStr := requirements.Network
	config, err := svm.GetNetworkConfig(networkStr)
	if err != nil {
		return requirements, err
	}

	var assetInfo *svm.AssetInfo
	if requirements.Asset != "" {
		assetInfo, err = svm.GetAssetInfo(networkStr, requirements.Asset)
		if err != nil {
			return requirements, err
		}
	} else {
		assetInfo = &config.DefaultAsset
		requirements.Asset = assetInfo.Address
	}

	if requirements.Amount != "" && strings.Contains(requirements.Amount, ".") {
		amount, err := svm.ParseAmount(requirements.Amount, assetInfo.Decimals)
		if err != nil {
			return requirements, fmt.Errorf("failed to parse amount: %w", err)
		}
		requirements.Amount = strconv.FormatUint(amount, 10)
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}

	if supportedKind.Extra != nil {
		if feePayer, ok := supportedKind.Extra["feePayer"]; ok {
			requirements.Extra["feePayer"] = feePayer
		}
		for _, key := range extensionKeys {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}

	return requirements, nil
}
