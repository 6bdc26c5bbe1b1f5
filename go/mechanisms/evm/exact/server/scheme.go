// Package server implements the EVM exact-scheme resource-server half:
// turning a configured price into concrete PaymentRequirements.
package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/evm"
)

// ExactEvmScheme implements x402.SchemeNetworkServer for EVM exact payments.
type ExactEvmScheme struct{}

// NewExactEvmScheme creates a new ExactEvmScheme.
func NewExactEvmScheme() *ExactEvmScheme {
	return &ExactEvmScheme{}
}

func (s *ExactEvmScheme) Scheme() string {
	return x402.SchemeExact
}

// ParsePrice converts a configured price into atomic units of the network's
// default asset. An already-resolved AssetAmount (map with "amount" and
// "asset") passes through unchanged; a dollar string or number is converted
// using the network's default asset decimals.
func (s *ExactEvmScheme) ParsePrice(price x402.Price, network x402.Network) (x402.AssetAmount, error) {
	networkStr := string(network)

	if priceMap, ok := price.(map[string]interface{}); ok {
		if amountVal, hasAmount := priceMap["amount"]; hasAmount {
			amountStr, ok := amountVal.(string)
			if !ok {
				return x402.AssetAmount{}, fmt.Errorf("amount must be a string")
			}
			asset, _ := priceMap["asset"].(string)
			if asset == "" {
				return x402.AssetAmount{}, fmt.Errorf("asset address must be specified for AssetAmount")
			}
			extra, _ := priceMap["extra"].(map[string]interface{})
			return x402.AssetAmount{Amount: amountStr, Asset: asset, Extra: extra}, nil
		}
	}

	decimalAmount, err := parseMoneyToDecimal(price)
	if err != nil {
		return x402.AssetAmount{}, err
	}

	return defaultMoneyConversion(decimalAmount, networkStr)
}

func parseMoneyToDecimal(price x402.Price) (float64, error) {
	switch v := price.(type) {
	case string:
		clean := strings.TrimSpace(v)
		clean = strings.TrimPrefix(clean, "$")
		clean = strings.TrimSuffix(clean, " USD")
		clean = strings.TrimSuffix(clean, " USDC")
		clean = strings.TrimSpace(clean)
		amount, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse price string %q: %w", v, err)
		}
		return amount, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unsupported price type: %T", price)
	}
}

func defaultMoneyConversion(amount float64, network string) (x402.AssetAmount, error) {
	config, err := evm.GetNetworkConfig(network)
	if err != nil {
		return x402.AssetAmount{}, err
	}

	oneUnit := float64(1)
	for i := 0; i < config.DefaultAsset.Decimals; i++ {
		oneUnit *= 10
	}

	if amount >= oneUnit && amount == float64(int64(amount)) {
		return x402.AssetAmount{
			Asset:  config.DefaultAsset.Address,
			Amount: fmt.Sprintf("%.0f", amount),
		}, nil
	}

	amountStr := fmt.Sprintf("%.6f", amount)
	parsedAmount, err := evm.ParseAmount(amountStr, config.DefaultAsset.Decimals)
	if err != nil {
		return x402.AssetAmount{}, fmt.Errorf("failed to convert amount: %w", err)
	}

	return x402.AssetAmount{
		Asset:  config.DefaultAsset.Address,
		Amount: parsedAmount.String(),
	}, nil
}

// EnhancePaymentRequirements fills in the asset address and EIP-712
// name/version extras a client needs to reconstruct the signing domain.
func (s *ExactEvmScheme) EnhancePaymentRequirements(
	ctx context.Context,
	requirements x402.PaymentRequirements,
	supportedKind x402.SupportedKind,
	extensionKeys []string,
) (x402.PaymentRequirements, error) {
	networkStr := requirements.Network
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return requirements, err
	}

	var assetInfo *evm.AssetInfo
	if requirements.Asset != "" {
		assetInfo, err = evm.GetAssetInfo(networkStr, requirements.Asset)
		if err != nil {
			return requirements, err
		}
	} else {
		assetInfo = &config.DefaultAsset
		requirements.Asset = assetInfo.Address
	}

	if requirements.Amount != "" && strings.Contains(requirements.Amount, ".") {
		amount, err := evm.ParseAmount(requirements.Amount, assetInfo.Decimals)
		if err != nil {
			return requirements, fmt.Errorf("failed to parse amount: %w", err)
		}
		requirements.Amount = amount.String()
	}

	if requirements.Extra == nil {
		requirements.Extra = make(map[string]interface{})
	}
	if _, ok := requirements.Extra["name"]; !ok {
		requirements.Extra["name"] = assetInfo.Name
	}
	if _, ok := requirements.Extra["version"]; !ok {
		requirements.Extra["version"] = assetInfo.Version
	}

	if supportedKind.Extra != nil {
		for _, key := range extensionKeys {
			if val, ok := supportedKind.Extra[key]; ok {
				requirements.Extra[key] = val
			}
		}
	}

	return requirements, nil
}
