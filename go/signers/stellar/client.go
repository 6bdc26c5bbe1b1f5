// Package stellar provides keypair-backed implementations of the Stellar
// mechanism's client and facilitator signer interfaces.
package stellar

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/xdr"

	x402stellar "github.com/x402-go/x402/go/mechanisms/stellar"
)

// ClientSigner implements x402stellar.ClientStellarSigner using an Ed25519
// Stellar keypair. It signs the single Soroban authorization entry
// attributed to this address within a prepared transaction envelope.
type ClientSigner struct {
	kp *keypair.Full
}

// NewClientSignerFromSeed creates a client signer from a Stellar secret seed
// ("S..." strkey).
func NewClientSignerFromSeed(secretSeed string) (x402stellar.ClientStellarSigner, error) {
	kp, err := keypair.ParseFull(secretSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid stellar secret seed: %w", err)
	}
	return &ClientSigner{kp: kp}, nil
}

// Address returns the signer's Stellar account address ("G..." strkey).
func (s *ClientSigner) Address() string {
	return s.kp.Address()
}

// SignAuthEntry locates the caller's Soroban authorization entry within
// envXDR, signs its payload hash, and returns the updated envelope as
// base64 XDR.
func (s *ClientSigner) SignAuthEntry(ctx context.Context, envXDR string, networkPassphrase string) (string, error) {
	envBytes, err := base64.StdEncoding.DecodeString(envXDR)
	if err != nil {
		return "", fmt.Errorf("invalid envelope xdr: %w", err)
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshal(envBytes, &env); err != nil {
		return "", fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.V1 == nil || len(env.V1.Tx.Operations) != 1 {
		return "", fmt.Errorf("expected exactly 1 operation in envelope")
	}
	invoke, ok := env.V1.Tx.Operations[0].Body.GetInvokeHostFunctionOp()
	if !ok {
		return "", fmt.Errorf("expected an InvokeHostFunction operation")
	}

	for i := range invoke.Auth {
		entry := &invoke.Auth[i]
		if entry.Credentials.Type != xdr.SorobanCredentialsTypeSorobanCredentialsAddress || entry.Credentials.Address == nil {
			continue
		}
		addr, err := addressFromSCAddress(entry.Credentials.Address.Address)
		if err != nil || addr != s.Address() {
			continue
		}

		payloadHash, err := authEntryPayloadHash(entry, networkPassphrase)
		if err != nil {
			return "", err
		}
		signature, err := s.kp.Sign(payloadHash)
		if err != nil {
			return "", fmt.Errorf("failed to sign auth entry: %w", err)
		}

		entry.Credentials.Address.Signature = xdr.ScVal{
			Type: xdr.ScValTypeScvBytes,
			Bytes: (*xdr.ScBytes)(&signature),
		}
	}

	env.V1.Tx.Operations[0].Body.InvokeHostFunctionOp = &invoke

	out, err := env.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to re-encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// FacilitatorSigner implements x402stellar.FacilitatorStellarSigner using an
// Ed25519 Stellar keypair that signs the full transaction envelope as its
// source account.
type FacilitatorSigner struct {
	kp *keypair.Full
}

// NewFacilitatorSignerFromSeed creates a facilitator signer from a Stellar
// secret seed.
func NewFacilitatorSignerFromSeed(secretSeed string) (x402stellar.FacilitatorStellarSigner, error) {
	kp, err := keypair.ParseFull(secretSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid stellar secret seed: %w", err)
	}
	return &FacilitatorSigner{kp: kp}, nil
}

func (s *FacilitatorSigner) Address() string {
	return s.kp.Address()
}

// SignTransaction signs envXDR's transaction hash with the facilitator's
// key and returns the envelope with the new decorated signature appended.
func (s *FacilitatorSigner) SignTransaction(ctx context.Context, envXDR string, networkPassphrase string) (string, error) {
	envBytes, err := base64.StdEncoding.DecodeString(envXDR)
	if err != nil {
		return "", fmt.Errorf("invalid envelope xdr: %w", err)
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshal(envBytes, &env); err != nil {
		return "", fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.V1 == nil {
		return "", fmt.Errorf("expected a v1 transaction envelope")
	}

	txHash, err := transactionHash(&env.V1.Tx, networkPassphrase)
	if err != nil {
		return "", err
	}
	signature, err := s.kp.Sign(txHash)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	hint := xdr.SignatureHint{}
	copy(hint[:], s.kp.Hint()[:])
	env.V1.Signatures = append(env.V1.Signatures, xdr.DecoratedSignature{
		Hint:      hint,
		Signature: xdr.Signature(signature),
	})

	out, err := env.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to re-encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func addressFromSCAddress(addr xdr.ScAddress) (string, error) {
	if addr.Type != xdr.ScAddressTypeScAddressTypeAccount || addr.AccountId == nil {
		return "", fmt.Errorf("expected an account ScAddress")
	}
	return addr.AccountId.Address(), nil
}

// authEntryPayloadHash computes the hash a Soroban authorization entry's
// signature is produced over, per CAP-46: the network id, the entry's
// nonce and expiration ledger, and its invocation tree.
func authEntryPayloadHash(entry *xdr.SorobanAuthorizationEntry, networkPassphrase string) ([]byte, error) {
	creds := entry.Credentials.Address
	var networkID xdr.Hash
	copy(networkID[:], sha256Sum([]byte(networkPassphrase)))
	preimage := xdr.HashIdPreimage{
		Type: xdr.EnvelopeTypeEnvelopeTypeSorobanAuthorization,
		SorobanAuthorization: &xdr.HashIdPreimageSorobanAuthorization{
			NetworkId:                 networkID,
			Nonce:                     creds.Nonce,
			SignatureExpirationLedger: creds.SignatureExpirationLedger,
			Invocation:                entry.RootInvocation,
		},
	}
	raw, err := preimage.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth preimage: %w", err)
	}
	return sha256Sum(raw), nil
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// transactionHash computes the signature base of a Stellar transaction:
// SHA-256 of the network id followed by a TransactionSignaturePayload
// (envelope type ENVELOPE_TYPE_TX + the transaction body), per SEP-0002.
func transactionHash(tx *xdr.Transaction, networkPassphrase string) ([]byte, error) {
	var networkID xdr.Hash
	copy(networkID[:], sha256Sum([]byte(networkPassphrase)))

	payload := xdr.TransactionSignaturePayload{
		NetworkId: networkID,
		TaggedTransaction: xdr.TransactionSignaturePayloadTaggedTransaction{
			Type: xdr.EnvelopeTypeEnvelopeTypeTx,
			Tx:   tx,
		},
	}
	raw, err := payload.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signature payload: %w", err)
	}
	return sha256Sum(raw), nil
}
