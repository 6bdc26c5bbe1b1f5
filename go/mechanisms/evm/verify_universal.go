package evm

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// VerifyUniversalSignature verifies an authorization signature that may come
// from an EOA, a deployed smart-contract wallet (EIP-1271), or an undeployed
// counterfactual wallet wrapped per ERC-6492.
//
// A 65-byte inner signature with no ERC-6492 factory is treated as an EOA
// signature and verified by recovery, skipping the GetCode round trip.
// Anything else is checked for deployment: deployed wallets go through
// EIP-1271, undeployed wallets with deployment info are accepted only if
// allowUndeployed is set (actual deployment happens at settlement), and
// undeployed wallets without deployment info fall back to EOA verification.
func VerifyUniversalSignature(
	ctx context.Context,
	facilitatorSigner FacilitatorEvmSigner,
	signerAddress string,
	hash [32]byte,
	signature []byte,
	allowUndeployed bool,
) (bool, *ERC6492SignatureData, error) {
	sigData, err := ParseERC6492Signature(signature)
	if err != nil {
		return false, nil, err
	}

	zeroFactory := [20]byte{}
	isEOASignature := len(sigData.InnerSignature) == 65 && sigData.Factory == zeroFactory

	if isEOASignature {
		signerAddr := common.HexToAddress(signerAddress)
		valid, err := VerifyEOASignature(hash[:], sigData.InnerSignature, signerAddr)
		return valid, sigData, err
	}

	code, err := facilitatorSigner.GetCode(ctx, signerAddress)
	if err != nil {
		return false, nil, err
	}
	isDeployed := len(code) > 0

	if !isDeployed {
		hasDeploymentInfo := sigData.Factory != zeroFactory && len(sigData.FactoryCalldata) > 0
		if hasDeploymentInfo {
			if !allowUndeployed {
				return false, nil, errors.New(ErrUndeployedSmartWallet + ": undeployed not allowed")
			}
			return true, sigData, nil
		}
		signerAddr := common.HexToAddress(signerAddress)
		valid, err := VerifyEOASignature(hash[:], sigData.InnerSignature, signerAddr)
		return valid, sigData, err
	}

	valid, err := VerifyEIP1271Signature(ctx, facilitatorSigner, signerAddress, hash, sigData.InnerSignature)
	return valid, sigData, err
}
