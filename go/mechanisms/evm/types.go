package evm

import (
	"context"
	"math/big"
)

// ExactEIP3009Authorization is the EIP-3009 TransferWithAuthorization message
// a client signs to authorize a single-recipient transfer.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEIP3009Payload is the exact-scheme payload body carried in
// PaymentPayload.Payload for every EVM network.
type ExactEIP3009Payload struct {
	Signature     string                    `json:"signature,omitempty"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// ToMap converts the payload to the map[string]interface{} shape the core
// PaymentPayload.Payload field expects on the wire.
func (p *ExactEIP3009Payload) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
	if p.Signature != "" {
		result["signature"] = p.Signature
	}
	return result
}

// PayloadFromMap reconstructs an ExactEIP3009Payload from the decoded wire map.
func PayloadFromMap(data map[string]interface{}) (*ExactEIP3009Payload, error) {
	payload := &ExactEIP3009Payload{}

	if sig, ok := data["signature"].(string); ok {
		payload.Signature = sig
	}

	if auth, ok := data["authorization"].(map[string]interface{}); ok {
		if from, ok := auth["from"].(string); ok {
			payload.Authorization.From = from
		}
		if to, ok := auth["to"].(string); ok {
			payload.Authorization.To = to
		}
		if value, ok := auth["value"].(string); ok {
			payload.Authorization.Value = value
		}
		if validAfter, ok := auth["validAfter"].(string); ok {
			payload.Authorization.ValidAfter = validAfter
		}
		if validBefore, ok := auth["validBefore"].(string); ok {
			payload.Authorization.ValidBefore = validBefore
		}
		if nonce, ok := auth["nonce"].(string); ok {
			payload.Authorization.Nonce = nonce
		}
	}

	return payload, nil
}

// ContractReader is the minimal read-only contract-call capability a client
// signer needs, independent of any particular RPC client implementation.
type ContractReader interface {
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
}

// ClientEvmSigner is implemented by whatever holds the payer's key: a local
// hot wallet, a KMS-backed signer, or a browser wallet bridge.
type ClientEvmSigner interface {
	Address() string
	SignTypedData(ctx context.Context, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) ([]byte, error)
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
}

// FacilitatorEvmSigner is implemented by the facilitator's chain client. It
// exposes addresses plural so a deployment can rotate or load-balance across
// multiple settlement keys.
type FacilitatorEvmSigner interface {
	GetAddresses() []string
	ReadContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (interface{}, error)
	VerifyTypedData(ctx context.Context, address string, domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}, signature []byte) (bool, error)
	WriteContract(ctx context.Context, address string, abi []byte, functionName string, args ...interface{}) (string, error)
	SendTransaction(ctx context.Context, to string, data []byte) (string, error)
	WaitForTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error)
	GetBalance(ctx context.Context, address string, tokenAddress string) (*big.Int, error)
	GetChainID(ctx context.Context) (*big.Int, error)
	// GetCode returns the bytecode at an address, empty for an EOA or an
	// undeployed counterfactual wallet.
	GetCode(ctx context.Context, address string) ([]byte, error)
}

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// TypedDataField names one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TransactionReceipt is the subset of an on-chain receipt settlement cares about.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
}

// AssetInfo describes an ERC-20 asset this module can price and settle.
type AssetInfo struct {
	Address         string
	Name            string
	Version         string
	Decimals        int
	SupportsEIP3009 bool
}

// NetworkConfig is the per-network asset table keyed by CAIP-2 network id.
type NetworkConfig struct {
	ChainID         *big.Int
	DefaultAsset    AssetInfo
	SupportedAssets map[string]AssetInfo
}

// IsValidNetwork reports whether network is one this module has a table for.
func IsValidNetwork(network string) bool {
	_, ok := NetworkConfigs[network]
	return ok
}

// ERC6492SignatureData holds the parsed components of an ERC-6492-wrapped
// signature: the counterfactual wallet's deployment factory plus the inner
// EOA or EIP-1271 signature it wraps.
type ERC6492SignatureData struct {
	Factory         [20]byte
	FactoryCalldata []byte
	InnerSignature  []byte
}
