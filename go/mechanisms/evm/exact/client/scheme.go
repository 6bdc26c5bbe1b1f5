// Package client implements the EVM exact-scheme client half: building and
// signing an EIP-3009 transferWithAuthorization payload.
package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/evm"
)

// ExactEvmScheme implements x402.SchemeNetworkClient for EVM exact payments.
type ExactEvmScheme struct {
	signer evm.ClientEvmSigner
}

// NewExactEvmScheme creates a new ExactEvmScheme for the given signer.
func NewExactEvmScheme(signer evm.ClientEvmSigner) *ExactEvmScheme {
	return &ExactEvmScheme{signer: signer}
}

func (c *ExactEvmScheme) Scheme() string {
	return x402.SchemeExact
}

// CreatePaymentPayload builds and signs an EIP-3009 authorization covering
// the requested amount, payable to requirements.PayTo.
func (c *ExactEvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirementsView,
) (map[string]interface{}, error) {
	network := requirements.GetNetwork()
	if !evm.IsValidNetwork(network) {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	config, err := evm.GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}

	assetInfo, err := evm.GetAssetInfo(network, requirements.GetAsset())
	if err != nil {
		return nil, err
	}

	value, ok := new(big.Int).SetString(requirements.GetAmount(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", requirements.GetAmount())
	}

	nonce, err := evm.CreateNonce()
	if err != nil {
		return nil, err
	}

	validity := time.Hour
	if timeout := requirements.GetMaxTimeoutSeconds(); timeout > 0 {
		validity = time.Duration(timeout) * time.Second
	}
	validAfter, validBefore := evm.CreateValidityWindow(validity)

	tokenName := assetInfo.Name
	tokenVersion := assetInfo.Version
	if extra := requirements.GetExtra(); extra != nil {
		if name, ok := extra["name"].(string); ok {
			tokenName = name
		}
		if ver, ok := extra["version"].(string); ok {
			tokenVersion = ver
		}
	}

	authorization := evm.ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.GetPayTo(),
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := c.signAuthorization(ctx, authorization, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	evmPayload := &evm.ExactEIP3009Payload{
		Signature:     evm.BytesToHex(signature),
		Authorization: authorization,
	}

	return evmPayload.ToMap(), nil
}

func (c *ExactEvmScheme) signAuthorization(
	ctx context.Context,
	authorization evm.ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	domain := evm.TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

	types := map[string][]evm.TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}

	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, _ := evm.HexToBytes(authorization.Nonce)

	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	return c.signer.SignTypedData(ctx, domain, types, "TransferWithAuthorization", message)
}
