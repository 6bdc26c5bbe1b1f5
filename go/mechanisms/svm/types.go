// Package svm holds the types, signer interfaces and helpers shared by every
// Solana (SVM) scheme implementation.
package svm

import (
	"context"
	"encoding/json"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// ExactSvmPayload is the wire payload for the exact scheme on Solana: a
// base64-encoded, partially signed transaction.
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ToMap converts the payload to the map[string]interface{} form the core
// client and facilitator types carry on the wire.
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap round-trips a generic payload map into an ExactSvmPayload.
func PayloadFromMap(data map[string]interface{}) (*ExactSvmPayload, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload data: %w", err)
	}

	var payload ExactSvmPayload
	if err := json.Unmarshal(jsonBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payload.Transaction == "" {
		return nil, fmt.Errorf("missing transaction field in payload")
	}

	return &payload, nil
}

// ClientSvmSigner is what a payer needs to build and partially sign a
// Solana payment transaction.
type ClientSvmSigner interface {
	Address() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// FacilitatorSvmSigner is what a facilitator needs to co-sign as fee payer,
// simulate and broadcast. Multiple addresses let a facilitator load-balance
// and rotate keys across networks.
type FacilitatorSvmSigner interface {
	GetAddresses(ctx context.Context, network string) []solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction, feePayer solana.PublicKey, network string) error
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, network string) error
	SendTransaction(ctx context.Context, tx *solana.Transaction, network string) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, signature solana.Signature, network string) error

	// GetLatestBlockhash fetches a fresh blockhash for building a new
	// transaction, as split settlement does for each recipient payout.
	GetLatestBlockhash(ctx context.Context, network string) (solana.Hash, error)
}

// AssetInfo describes an SPL token mint.
type AssetInfo struct {
	Address  string
	Symbol   string
	Decimals int
}

// NetworkConfig is a Solana cluster's RPC endpoint and default stablecoin.
type NetworkConfig struct {
	Name         string
	CAIP2        string
	RPCURL       string
	DefaultAsset AssetInfo
}

// ClientConfig lets a caller override the RPC endpoint a client scheme uses.
type ClientConfig struct {
	RPCURL string
}

// IsValidNetwork reports whether network is a known Solana CAIP-2 id.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}
