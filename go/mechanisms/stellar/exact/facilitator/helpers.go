package facilitator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
)

func stellarContractStrkey(contractID []byte) (string, error) {
	return strkey.Encode(strkey.VersionByteContract, contractID)
}

// envelopeFee returns the max fee (in stroops) the transaction's source
// account is willing to pay, as set by the client.
func envelopeFee(env *xdr.TransactionEnvelope) int64 {
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return 0
		}
		return int64(env.V1.Tx.Fee)
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return 0
		}
		return int64(env.V0.Tx.Fee)
	default:
		return 0
	}
}

type contractSigners struct {
	alreadySigned    []string
	pendingSignature []string
}

func gatherAuthSignatureStatus(op *xdr.InvokeHostFunctionOp) (*contractSigners, error) {
	signers := &contractSigners{}
	seenSigned := map[string]bool{}
	seenPending := map[string]bool{}

	for _, entry := range op.Auth {
		if entry.Credentials.Type != xdr.SorobanCredentialsTypeSorobanCredentialsAddress {
			continue
		}
		creds := entry.Credentials.Address
		if creds == nil {
			continue
		}
		address, err := addressFromSCAddress(creds.Address)
		if err != nil {
			return nil, err
		}
		if creds.Signature.Type != xdr.ScValTypeScvVoid {
			if !seenSigned[address] {
				seenSigned[address] = true
				signers.alreadySigned = append(signers.alreadySigned, address)
			}
		} else {
			if !seenPending[address] {
				seenPending[address] = true
				signers.pendingSignature = append(signers.pendingSignature, address)
			}
		}
	}
	return signers, nil
}

func containsAddress(list []string, addr string) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func validateAuthExpiration(op *xdr.InvokeHostFunctionOp, maxLedger uint32) error {
	for _, entry := range op.Auth {
		if entry.Credentials.Type != xdr.SorobanCredentialsTypeSorobanCredentialsAddress {
			continue
		}
		creds := entry.Credentials.Address
		if creds == nil {
			continue
		}
		if uint32(creds.SignatureExpirationLedger) > maxLedger {
			return fmt.Errorf("authorization expires at ledger %d, beyond allowed %d", creds.SignatureExpirationLedger, maxLedger)
		}
	}
	return nil
}

func asVerifyError(err error, target **x402.VerifyError) bool {
	return errors.As(err, target)
}

// rebuildAsFacilitatorSource re-serializes the envelope with the
// facilitator as the transaction source account and fee, preserving the
// single InvokeHostFunction operation (and its authorization entries)
// verbatim.
func rebuildAsFacilitatorSource(env *xdr.TransactionEnvelope, facilitatorAddress string, fee int64) (string, error) {
	var ops []xdr.Operation
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return "", fmt.Errorf("malformed v1 envelope")
		}
		ops = env.V1.Tx.Operations
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return "", fmt.Errorf("malformed v0 envelope")
		}
		ops = env.V0.Tx.Operations
	default:
		return "", fmt.Errorf("unsupported envelope type %v", env.Type)
	}
	if len(ops) != 1 {
		return "", fmt.Errorf("expected exactly 1 operation, got %d", len(ops))
	}

	facilitatorAccountID, err := xdr.AddressToAccountId(facilitatorAddress)
	if err != nil {
		return "", fmt.Errorf("invalid facilitator address: %w", err)
	}

	var seqNum xdr.SequenceNumber
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		seqNum = env.V1.Tx.SeqNum
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		seqNum = env.V0.Tx.SeqNum
	}

	newTx := xdr.Transaction{
		SourceAccount: facilitatorAccountID.ToMuxedAccount(),
		Fee:           xdr.Uint32(fee),
		SeqNum:        seqNum,
		Operations:    ops,
		Memo:          xdr.Memo{Type: xdr.MemoTypeMemoNone},
	}

	newEnv := xdr.TransactionEnvelope{
		Type: xdr.EnvelopeTypeEnvelopeTypeTx,
		V1: &xdr.TransactionV1Envelope{
			Tx: newTx,
		},
	}

	data, err := newEnv.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize rebuilt envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func pollTransaction(ctx context.Context, rpc stellar.RPCClient, hash string) (*stellar.TransactionStatus, error) {
	ticker := time.NewTicker(stellar.SettleConfirmPollInterval)
	defer ticker.Stop()

	for {
		status, err := rpc.GetTransaction(ctx, hash)
		if err == nil && status.Status != "NOT_FOUND" {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
