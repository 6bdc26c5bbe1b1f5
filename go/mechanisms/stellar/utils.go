package stellar

import (
	"context"
	"fmt"
	"math"
	"regexp"
)

var (
	stellarAssetAddressRegex       = regexp.MustCompile(`^C[A-Z2-7]{55}$`)
	stellarDestinationAddressRegex = regexp.MustCompile(`^[GCM][A-Z2-7]{55}$`)
)

// IsStellarNetwork reports whether network is a recognized Stellar CAIP-2 id.
func IsStellarNetwork(network string) bool {
	_, ok := NetworkToPassphrase[network]
	return ok
}

// GetNetworkPassphrase returns the signing passphrase for a Stellar network.
func GetNetworkPassphrase(network string) (string, error) {
	passphrase, ok := NetworkToPassphrase[network]
	if !ok {
		return "", fmt.Errorf("stellar: unsupported network %s", network)
	}
	return passphrase, nil
}

// GetRPCURL resolves the Soroban RPC endpoint for a network. Pubnet has no
// default and must be configured explicitly.
func GetRPCURL(network string, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if network == StellarTestnetCAIP2 {
		return DefaultTestnetRPCURL, nil
	}
	return "", fmt.Errorf("stellar: no RPC URL configured for network %s", network)
}

// ValidateStellarAssetAddress reports whether address is a valid Soroban
// contract address (the shape every Stellar SEP-41 asset uses).
func ValidateStellarAssetAddress(address string) bool {
	return stellarAssetAddressRegex.MatchString(address)
}

// ValidateStellarDestinationAddress reports whether address is a valid
// account (G...), contract (C...), or muxed account (M...) address.
func ValidateStellarDestinationAddress(address string) bool {
	return stellarDestinationAddressRegex.MatchString(address)
}

// EstimatedLedgerSeconds returns DefaultEstimatedLedgerSeconds; it does not
// sample ledger close times through the RPC client.
func EstimatedLedgerSeconds(ctx context.Context, client RPCClient) float64 {
	// The RPCClient interface intentionally doesn't expose a ledger-history
	// sampling method; callers driving real RPC should wrap a concrete
	// client that can answer this more precisely. We fall back to the
	// network's documented average here.
	return DefaultEstimatedLedgerSeconds
}

// CalculateMaxLedger returns the ledger sequence beyond which a Soroban
// authorization entry's signature must not expire, given the current
// ledger and the payment's timeout budget.
func CalculateMaxLedger(currentLedger uint32, maxTimeoutSeconds int, estimatedLedgerSeconds float64) uint32 {
	if estimatedLedgerSeconds <= 0 {
		estimatedLedgerSeconds = DefaultEstimatedLedgerSeconds
	}
	extra := uint32(math.Ceil(float64(maxTimeoutSeconds) / estimatedLedgerSeconds))
	return currentLedger + extra
}
