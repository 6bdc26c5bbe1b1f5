package evm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// GetEvmChainId returns the chain id for a CAIP-2 network, falling back to
// parsing the eip155 namespace directly if the network isn't in the table.
func GetEvmChainId(network string) (*big.Int, error) {
	if config, ok := NetworkConfigs[network]; ok {
		return config.ChainID, nil
	}

	if strings.HasPrefix(network, "eip155:") {
		chainIDStr := strings.TrimPrefix(network, "eip155:")
		chainID, ok := new(big.Int).SetString(chainIDStr, 10)
		if ok {
			return chainID, nil
		}
	}

	return nil, fmt.Errorf("unsupported network: %s", network)
}

// CreateNonce generates a random 32-byte EIP-3009 nonce.
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(nonce), nil
}

// NormalizeAddress lowercases an address and ensures a 0x prefix, for
// case-insensitive comparison.
func NormalizeAddress(address string) string {
	return "0x" + strings.TrimPrefix(strings.ToLower(address), "0x")
}

// IsValidAddress reports whether address is 20 bytes of hex.
func IsValidAddress(address string) bool {
	addr := strings.TrimPrefix(address, "0x")
	if len(addr) != 40 {
		return false
	}
	_, err := hex.DecodeString(addr)
	return err == nil
}

// ParseAmount converts a decimal-string amount into atomic units for a token
// with the given decimals, without ever going through floating point.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}

	intPart, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer part: %s", parts[0])
	}

	decPart := new(big.Int)
	if len(parts) == 2 && parts[1] != "" {
		decStr := parts[1]
		if len(decStr) > decimals {
			decStr = decStr[:decimals]
		} else {
			decStr += strings.Repeat("0", decimals-len(decStr))
		}
		decPart, ok = new(big.Int).SetString(decStr, 10)
		if !ok {
			return nil, fmt.Errorf("invalid decimal part: %s", parts[1])
		}
	}

	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	result := new(big.Int).Mul(intPart, multiplier)
	result.Add(result, decPart)
	return result, nil
}

// FormatAmount converts atomic units back to a trimmed decimal string.
func FormatAmount(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quotient, remainder := new(big.Int).DivMod(amount, divisor, new(big.Int))

	decStr := remainder.String()
	if len(decStr) < decimals {
		decStr = strings.Repeat("0", decimals-len(decStr)) + decStr
	}
	decStr = strings.TrimRight(decStr, "0")

	if decStr == "" {
		return quotient.String()
	}
	return quotient.String() + "." + decStr
}

// GetNetworkConfig returns the asset table for a network.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	return &config, nil
}

// GetAssetInfo resolves an asset symbol or contract address to its AssetInfo
// on a network, defaulting to the network's default asset.
func GetAssetInfo(network string, assetSymbolOrAddress string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if IsValidAddress(assetSymbolOrAddress) {
		normalized := NormalizeAddress(assetSymbolOrAddress)
		if normalized == NormalizeAddress(config.DefaultAsset.Address) {
			return &config.DefaultAsset, nil
		}
		for _, asset := range config.SupportedAssets {
			if NormalizeAddress(asset.Address) == normalized {
				return &asset, nil
			}
		}
		return nil, fmt.Errorf("asset %s not supported on network %s", assetSymbolOrAddress, network)
	}

	if asset, ok := config.SupportedAssets[strings.ToUpper(assetSymbolOrAddress)]; ok {
		return &asset, nil
	}

	return &config.DefaultAsset, nil
}

// CreateValidityWindow returns the validAfter/validBefore bounds for a
// freshly signed authorization, with a clock-skew buffer on the lower bound.
func CreateValidityWindow(duration time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()
	validAfter = big.NewInt(now - 10)
	validBefore = big.NewInt(now + int64(duration.Seconds()))
	return validAfter, validBefore
}

// HexToBytes decodes a 0x-prefixed or bare hex string.
func HexToBytes(hexStr string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(hexStr, "0x"))
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
