package stellar

import (
	"errors"
	"fmt"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

var errMissingTransaction = errors.New("stellar: payload is missing a transaction field")

// ContractSigners splits the addresses named in a transaction's Soroban
// authorization entries into those that have already produced a signature
// and those still pending one.
type ContractSigners struct {
	AlreadySigned    []string
	PendingSignature []string
}

// stellarAddressFromSCAddress renders an xdr.ScAddress as a G-address
// (account) or C-address (contract) strkey string.
func stellarAddressFromSCAddress(addr xdr.ScAddress) (string, error) {
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil {
			return "", fmt.Errorf("stellar: ScAddress account id is nil")
		}
		return addr.AccountId.Address(), nil
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return "", fmt.Errorf("stellar: ScAddress contract id is nil")
		}
		return strkey.Encode(strkey.VersionByteContract, addr.ContractId[:])
	default:
		return "", fmt.Errorf("stellar: unsupported ScAddress type %v", addr.Type)
	}
}

// gatherAuthEntrySignatureStatus walks every Soroban authorization entry
// attached to the envelope's single invoke-host-function operation and
// reports, per credential address, whether it has already been signed.
// Entries using SOURCE_ACCOUNT credentials (no explicit signature required,
// authorized implicitly by the transaction source) are skipped.
func gatherAuthEntrySignatureStatus(env *xdr.TransactionEnvelope) (*ContractSigners, error) {
	op, err := singleInvokeHostFunctionOp(env)
	if err != nil {
		return nil, err
	}

	signers := &ContractSigners{}
	seenSigned := map[string]bool{}
	seenPending := map[string]bool{}

	for _, entry := range op.Auth {
		if entry.Credentials.Type != xdr.SorobanCredentialsTypeSorobanCredentialsAddress {
			continue
		}
		addrCreds := entry.Credentials.Address
		if addrCreds == nil {
			continue
		}
		address, err := stellarAddressFromSCAddress(addrCreds.Address)
		if err != nil {
			return nil, err
		}

		isSigned := addrCreds.Signature.Type != xdr.ScValTypeScvVoid

		if isSigned {
			if !seenSigned[address] {
				seenSigned[address] = true
				signers.AlreadySigned = append(signers.AlreadySigned, address)
			}
		} else {
			if !seenPending[address] {
				seenPending[address] = true
				signers.PendingSignature = append(signers.PendingSignature, address)
			}
		}
	}

	return signers, nil
}

// singleInvokeHostFunctionOp returns the envelope's sole operation as an
// InvokeHostFunctionOp, erroring if the envelope does not have exactly one
// operation of that type.
func singleInvokeHostFunctionOp(env *xdr.TransactionEnvelope) (*xdr.InvokeHostFunctionOp, error) {
	ops := envelopeOperations(env)
	if len(ops) != 1 {
		return nil, fmt.Errorf("stellar: expected exactly 1 operation, got %d", len(ops))
	}
	op := ops[0]
	if op.Body.Type != xdr.OperationTypeInvokeHostFunction {
		return nil, fmt.Errorf("stellar: expected InvokeHostFunction operation, got %v", op.Body.Type)
	}
	invoke, ok := op.Body.GetInvokeHostFunctionOp()
	if !ok {
		return nil, fmt.Errorf("stellar: malformed InvokeHostFunction operation")
	}
	return &invoke, nil
}

func envelopeOperations(env *xdr.TransactionEnvelope) []xdr.Operation {
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return nil
		}
		return env.V1.Tx.Operations
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return nil
		}
		return env.V0.Tx.Operations
	default:
		return nil
	}
}

// envelopeSourceAccount returns the transaction-level source account's
// address string.
func envelopeSourceAccount(env *xdr.TransactionEnvelope) (string, error) {
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return "", fmt.Errorf("stellar: malformed v1 envelope")
		}
		return env.V1.Tx.SourceAccount.ToAccountId().Address(), nil
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return "", fmt.Errorf("stellar: malformed v0 envelope")
		}
		return env.V0.Tx.SourceAccountEd25519.Address(), nil
	default:
		return "", fmt.Errorf("stellar: unsupported envelope type %v", env.Type)
	}
}

// operationSourceAccount returns the operation-level source account
// override, if any, or "" when the operation inherits the tx source.
func operationSourceAccount(op *xdr.InvokeHostFunctionOp, opSourceAccount *xdr.MuxedAccount) (string, error) {
	if opSourceAccount == nil {
		return "", nil
	}
	return opSourceAccount.ToAccountId().Address(), nil
}

// scValToAddress decodes an xdr.ScVal of type Address into its strkey
// string representation.
func scValToAddress(val xdr.ScVal) (string, error) {
	if val.Type != xdr.ScValTypeScvAddress || val.Address == nil {
		return "", fmt.Errorf("stellar: expected ScVal address, got %v", val.Type)
	}
	return stellarAddressFromSCAddress(*val.Address)
}

// scValToI128 decodes an xdr.ScVal of type I128 into a decimal string. Only
// the low 64 bits are decoded: a value with a nonzero high word is rejected
// with an error.
func scValToI128(val xdr.ScVal) (string, error) {
	if val.Type != xdr.ScValTypeScvI128 || val.I128 == nil {
		return "", fmt.Errorf("stellar: expected ScVal i128, got %v", val.Type)
	}
	hi := int64(val.I128.Hi)
	lo := uint64(val.I128.Lo)
	if hi != 0 {
		return "", fmt.Errorf("stellar: amount exceeds 64-bit range")
	}
	return fmt.Sprintf("%d", lo), nil
}
