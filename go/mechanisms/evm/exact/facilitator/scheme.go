// Package facilitator implements the EVM exact-scheme facilitator half:
// verifying an EIP-3009 authorization and settling it via
// transferWithAuthorization.
package facilitator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/evm"
)

// ExactEvmSchemeConfig configures optional behavior of ExactEvmScheme.
type ExactEvmSchemeConfig struct {
	// DeployERC4337WithEIP6492 lets settlement deploy an undeployed smart
	// wallet via its ERC-6492 factory calldata before calling the token.
	DeployERC4337WithEIP6492 bool
}

// ExactEvmScheme implements x402.SchemeNetworkFacilitator for EVM exact payments.
type ExactEvmScheme struct {
	signer evm.FacilitatorEvmSigner
	config ExactEvmSchemeConfig
}

// NewExactEvmScheme creates a new ExactEvmScheme. A nil config uses defaults.
func NewExactEvmScheme(signer evm.FacilitatorEvmSigner, config *ExactEvmSchemeConfig) *ExactEvmScheme {
	cfg := ExactEvmSchemeConfig{}
	if config != nil {
		cfg = *config
	}
	return &ExactEvmScheme{signer: signer, config: cfg}
}

func (f *ExactEvmScheme) Scheme() string {
	return x402.SchemeExact
}

func (f *ExactEvmScheme) CaipFamily() string {
	return "eip155:*"
}

func (f *ExactEvmScheme) GetExtra(_ x402.Network) (map[string]interface{}, error) {
	return nil, nil
}

func (f *ExactEvmScheme) GetSigners() []string {
	return f.signer.GetAddresses()
}

// Verify checks that the authorization's recipient, amount, nonce and
// signature all line up with requirements before any chain write happens.
// An authorization value greater than the required amount is accepted; the
// excess is the payer's to lose, not a reason to reject.
func (f *ExactEvmScheme) Verify(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.VerifyResponse, error) {
	network := requirements.GetNetwork()

	if payload.GetScheme() != requirements.GetScheme() {
		return nil, x402.NewVerifyError("invalid_scheme", "", network, nil)
	}
	if payload.GetNetwork() != requirements.GetNetwork() {
		return nil, x402.NewVerifyError("network_mismatch", "", network, nil)
	}

	evmPayload, err := evm.PayloadFromMap(payload.GetPayload())
	if err != nil {
		return nil, x402.NewVerifyError("invalid_payload", "", network, err)
	}
	if evmPayload.Signature == "" {
		return nil, x402.NewVerifyError("missing_signature", "", network, nil)
	}

	networkStr := requirements.GetNetwork()
	config, err := evm.GetNetworkConfig(networkStr)
	if err != nil {
		return nil, x402.NewVerifyError("failed_to_get_network_config", "", network, err)
	}

	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.GetAsset())
	if err != nil {
		return nil, x402.NewVerifyError("failed_to_get_asset_info", "", network, err)
	}

	if !strings.EqualFold(evmPayload.Authorization.To, requirements.GetPayTo()) {
		return nil, x402.NewVerifyError("recipient_mismatch", "", network, nil)
	}

	authValue, ok := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	if !ok {
		return nil, x402.NewVerifyError("invalid_authorization_value", "", network, nil)
	}

	requiredValue, ok := new(big.Int).SetString(requirements.GetAmount(), 10)
	if !ok {
		return nil, x402.NewVerifyError("invalid_required_amount", "", network, fmt.Errorf("invalid amount: %s", requirements.GetAmount()))
	}

	if authValue.Cmp(requiredValue) < 0 {
		return nil, x402.NewVerifyError("insufficient_amount", evmPayload.Authorization.From, network, nil)
	}

	nonceUsed, err := f.checkNonceUsed(ctx, evmPayload.Authorization.From, evmPayload.Authorization.Nonce, assetInfo.Address)
	if err != nil {
		return nil, x402.NewVerifyError("failed_to_check_nonce", evmPayload.Authorization.From, network, err)
	}
	if nonceUsed {
		return nil, x402.NewVerifyError("nonce_already_used", evmPayload.Authorization.From, network, nil)
	}

	balance, err := f.signer.GetBalance(ctx, evmPayload.Authorization.From, assetInfo.Address)
	if err != nil {
		return nil, x402.NewVerifyError("failed_to_get_balance", evmPayload.Authorization.From, network, err)
	}
	if balance.Cmp(authValue) < 0 {
		return nil, x402.NewVerifyError("insufficient_balance", evmPayload.Authorization.From, network, nil)
	}

	tokenName := assetInfo.Name
	tokenVersion := assetInfo.Version
	if extra := requirements.GetExtra(); extra != nil {
		if name, ok := extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_signature_format", evmPayload.Authorization.From, network, err)
	}

	valid, err := f.verifySignature(ctx, evmPayload.Authorization, signatureBytes, config.ChainID, assetInfo.Address, tokenName, tokenVersion)
	if err != nil {
		return nil, x402.NewVerifyError("failed_to_verify_signature", evmPayload.Authorization.From, network, err)
	}
	if !valid {
		return nil, x402.NewVerifyError(evm.ErrInvalidSignature, evmPayload.Authorization.From, network, nil)
	}

	return &x402.VerifyResponse{IsValid: true, Payer: evmPayload.Authorization.From}, nil
}

// Settle re-verifies, deploys an undeployed smart wallet if configured to,
// and calls transferWithAuthorization on the token contract.
func (f *ExactEvmScheme) Settle(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.SettleResponse, error) {
	network := payload.GetNetwork()

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		var ve *x402.VerifyError
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.Reason, ve.Payer, ve.Network, "", ve.Err)
		}
		return nil, x402.NewSettleError("verification_failed", "", network, "", err)
	}

	evmPayload, err := evm.PayloadFromMap(payload.GetPayload())
	if err != nil {
		return nil, x402.NewSettleError("invalid_payload", verifyResp.Payer, network, "", err)
	}

	networkStr := requirements.GetNetwork()
	assetInfo, err := evm.GetAssetInfo(networkStr, requirements.GetAsset())
	if err != nil {
		return nil, x402.NewSettleError("failed_to_get_asset_info", verifyResp.Payer, network, "", err)
	}

	signatureBytes, err := evm.HexToBytes(evmPayload.Signature)
	if err != nil {
		return nil, x402.NewSettleError("invalid_signature_format", verifyResp.Payer, network, "", err)
	}

	sigData, err := evm.ParseERC6492Signature(signatureBytes)
	if err != nil {
		return nil, x402.NewSettleError("failed_to_parse_signature", verifyResp.Payer, network, "", err)
	}

	zeroFactory := [20]byte{}
	if sigData.Factory != zeroFactory && len(sigData.FactoryCalldata) > 0 {
		code, err := f.signer.GetCode(ctx, evmPayload.Authorization.From)
		if err != nil {
			return nil, x402.NewSettleError("failed_to_check_deployment", verifyResp.Payer, network, "", err)
		}
		if len(code) == 0 {
			if f.config.DeployERC4337WithEIP6492 {
				if err := f.deploySmartWallet(ctx, sigData); err != nil {
					return nil, x402.NewSettleError(evm.ErrSmartWalletDeploymentFailed, verifyResp.Payer, network, "", err)
				}
			} else {
				return nil, x402.NewSettleError(evm.ErrUndeployedSmartWallet, verifyResp.Payer, network, "", nil)
			}
		}
	}

	signatureBytes = sigData.InnerSignature

	value, _ := new(big.Int).SetString(evmPayload.Authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(evmPayload.Authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(evmPayload.Authorization.ValidBefore, 10)
	nonceBytes, _ := evm.HexToBytes(evmPayload.Authorization.Nonce)

	isECDSA := len(signatureBytes) == 65

	var txHash string
	if isECDSA {
		r := signatureBytes[0:32]
		s := signatureBytes[32:64]
		v := signatureBytes[64]

		txHash, err = f.signer.WriteContract(
			ctx, assetInfo.Address, evm.TransferWithAuthorizationVRSABI, evm.FunctionTransferWithAuthorization,
			common.HexToAddress(evmPayload.Authorization.From),
			common.HexToAddress(evmPayload.Authorization.To),
			value, validAfter, validBefore, [32]byte(nonceBytes), v, [32]byte(r), [32]byte(s),
		)
	} else {
		txHash, err = f.signer.WriteContract(
			ctx, assetInfo.Address, evm.TransferWithAuthorizationBytesABI, evm.FunctionTransferWithAuthorization,
			common.HexToAddress(evmPayload.Authorization.From),
			common.HexToAddress(evmPayload.Authorization.To),
			value, validAfter, validBefore, [32]byte(nonceBytes), signatureBytes,
		)
	}
	if err != nil {
		return nil, x402.NewSettleError("failed_to_execute_transfer", verifyResp.Payer, network, "", err)
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, x402.NewSettleError("failed_to_get_receipt", verifyResp.Payer, network, txHash, err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return nil, x402.NewSettleError("transaction_failed", verifyResp.Payer, network, txHash, nil)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: txHash,
		Network:     x402.Network(network),
		Payer:       verifyResp.Payer,
	}, nil
}

func (f *ExactEvmScheme) deploySmartWallet(ctx context.Context, sigData *evm.ERC6492SignatureData) error {
	factoryAddr := common.BytesToAddress(sigData.Factory[:])

	txHash, err := f.signer.SendTransaction(ctx, factoryAddr.Hex(), sigData.FactoryCalldata)
	if err != nil {
		return fmt.Errorf("factory deployment transaction failed: %w", err)
	}

	receipt, err := f.signer.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("failed to wait for deployment: %w", err)
	}
	if receipt.Status != evm.TxStatusSuccess {
		return fmt.Errorf("deployment transaction reverted")
	}
	return nil
}

func (f *ExactEvmScheme) checkNonceUsed(ctx context.Context, from string, nonce string, tokenAddress string) (bool, error) {
	nonceBytes, err := evm.HexToBytes(nonce)
	if err != nil {
		return false, err
	}

	result, err := f.signer.ReadContract(
		ctx, tokenAddress, evm.AuthorizationStateABI, evm.FunctionAuthorizationState,
		common.HexToAddress(from), [32]byte(nonceBytes),
	)
	if err != nil {
		return false, err
	}

	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from authorizationState")
	}
	return used, nil
}

func (f *ExactEvmScheme) verifySignature(
	ctx context.Context,
	authorization evm.ExactEIP3009Authorization,
	signature []byte,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) (bool, error) {
	hash, err := evm.HashEIP3009Authorization(authorization, chainID, verifyingContract, tokenName, tokenVersion)
	if err != nil {
		return false, err
	}

	var hash32 [32]byte
	copy(hash32[:], hash)

	valid, _, err := evm.VerifyUniversalSignature(ctx, f.signer, authorization.From, hash32, signature, true)
	return valid, err
}
