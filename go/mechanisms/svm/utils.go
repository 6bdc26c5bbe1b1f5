package svm

import (
	"encoding/base64"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

var solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// GetNetworkConfig returns the RPC/asset table for a network.
func GetNetworkConfig(network string) (*NetworkConfig, error) {
	config, ok := NetworkConfigs[network]
	if !ok {
		return nil, fmt.Errorf("unsupported Solana network: %s", network)
	}
	return &config, nil
}

// GetAssetInfo resolves a mint address to its AssetInfo on a network,
// defaulting to the network's default asset when assetSymbolOrAddress is
// empty or not a valid address.
func GetAssetInfo(network string, assetSymbolOrAddress string) (*AssetInfo, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	if ValidateSolanaAddress(assetSymbolOrAddress) {
		if assetSymbolOrAddress == config.DefaultAsset.Address {
			return &config.DefaultAsset, nil
		}
		return nil, fmt.Errorf("asset %s not supported on network %s", assetSymbolOrAddress, network)
	}

	return &config.DefaultAsset, nil
}

// ValidateSolanaAddress reports whether address is a base58 Solana pubkey.
func ValidateSolanaAddress(address string) bool {
	if !solanaAddressRegex.MatchString(address) {
		return false
	}
	_, err := solana.PublicKeyFromBase58(address)
	return err == nil
}

// ParseAmount converts a decimal-string amount into atomic units for a
// token with the given decimals.
func ParseAmount(amount string, decimals int) (uint64, error) {
	amount = strings.TrimSpace(amount)

	parts := strings.Split(amount, ".")
	if len(parts) > 2 {
		return 0, fmt.Errorf("invalid amount format: %s", amount)
	}

	intPart, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer part: %s", parts[0])
	}

	decPart := uint64(0)
	if len(parts) == 2 && parts[1] != "" {
		decStr := parts[1]
		if len(decStr) > decimals {
			decStr = decStr[:decimals]
		} else {
			decStr += strings.Repeat("0", decimals-len(decStr))
		}
		decPart, err = strconv.ParseUint(decStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid decimal part: %s", parts[1])
		}
	}

	multiplier := uint64(math.Pow10(decimals))
	return intPart*multiplier + decPart, nil
}

// FormatAmount converts atomic units back to a trimmed decimal string.
func FormatAmount(amount uint64, decimals int) string {
	if amount == 0 {
		return "0"
	}

	divisor := uint64(math.Pow10(decimals))
	quotient := amount / divisor
	remainder := amount % divisor

	decStr := fmt.Sprintf("%0*d", decimals, remainder)
	decStr = strings.TrimRight(decStr, "0")

	if decStr == "" {
		return fmt.Sprintf("%d", quotient)
	}
	return fmt.Sprintf("%d.%s", quotient, decStr)
}

// DecodeTransaction decodes a base64-encoded Solana transaction.
func DecodeTransaction(base64Tx string) (*solana.Transaction, error) {
	txBytes, err := base64.StdEncoding.DecodeString(base64Tx)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 transaction: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
	}

	return tx, nil
}

// EncodeTransaction serializes and base64-encodes a Solana transaction.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// GetTokenPayerFromTransaction returns the authority (owner) address of the
// transaction's TransferChecked instruction.
func GetTokenPayerFromTransaction(tx *solana.Transaction) (string, error) {
	if tx == nil || tx.Message.Instructions == nil {
		return "", fmt.Errorf("invalid transaction: nil transaction or instructions")
	}

	for _, inst := range tx.Message.Instructions {
		programID := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if programID != solana.TokenProgramID && programID != solana.Token2022ProgramID {
			continue
		}

		accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
		if err != nil {
			continue
		}

		decoded, err := token.DecodeInstruction(accounts, inst.Data)
		if err != nil {
			continue
		}

		if _, ok := decoded.Impl.(*token.TransferChecked); ok {
			if len(accounts) >= 4 {
				return accounts[3].PublicKey.String(), nil
			}
		}
	}

	return "", fmt.Errorf("no TransferChecked instruction found in transaction")
}
