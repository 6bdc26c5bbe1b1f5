package evm

import (
	"context"
	"errors"
)

const eip1271ABI = `[{
	"inputs": [
		{"type": "bytes32", "name": "hash"},
		{"type": "bytes", "name": "signature"}
	],
	"name": "isValidSignature",
	"outputs": [{"type": "bytes4", "name": "magicValue"}],
	"stateMutability": "view",
	"type": "function"
}]`

// eip1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)")).
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// VerifyEIP1271Signature calls isValidSignature(bytes32,bytes) on a deployed
// smart-contract wallet and checks the EIP-1271 magic value comes back.
func VerifyEIP1271Signature(
	ctx context.Context,
	signer FacilitatorEvmSigner,
	wallet string,
	hash [32]byte,
	signature []byte,
) (bool, error) {
	result, err := signer.ReadContract(ctx, wallet, []byte(eip1271ABI), "isValidSignature", hash, signature)
	if err != nil {
		return false, err
	}

	resultBytes, ok := result.([]byte)
	if !ok {
		if resultArray, ok := result.([4]byte); ok {
			resultBytes = resultArray[:]
		} else {
			return false, errors.New("invalid return type from isValidSignature: expected bytes4")
		}
	}
	if len(resultBytes) < 4 {
		return false, errors.New("invalid return value from isValidSignature: too short")
	}

	var returnedMagic [4]byte
	copy(returnedMagic[:], resultBytes[:4])
	return returnedMagic == eip1271MagicValue, nil
}
