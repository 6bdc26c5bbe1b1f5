package evm

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyEOASignature verifies a 65-byte ECDSA signature from an externally
// owned account against hash, recovering the signer and comparing it to
// expectedAddress.
func VerifyEOASignature(
	hash []byte,
	signature []byte,
	expectedAddress common.Address,
) (bool, error) {
	if len(signature) != 65 {
		return false, errors.New("invalid EOA signature length: expected 65 bytes")
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if v := sig[64]; v >= 27 {
		sig[64] = v - 27
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false, err
	}
	return crypto.PubkeyToAddress(*pubKey) == expectedAddress, nil
}
