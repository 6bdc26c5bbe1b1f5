// Package client implements the Stellar exact-scheme client half: building
// a Soroban transfer(from,to,amount) invocation against a SEP-41 asset
// contract and signing its authorization entries.
package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
)

const defaultBaseFee = 10_000

// ExactStellarScheme implements x402.SchemeNetworkClient for Stellar exact
// payments.
type ExactStellarScheme struct {
	signer stellar.ClientStellarSigner
	rpc    stellar.RPCClient
}

// NewExactStellarScheme creates a new ExactStellarScheme.
func NewExactStellarScheme(signer stellar.ClientStellarSigner, rpc stellar.RPCClient) *ExactStellarScheme {
	return &ExactStellarScheme{signer: signer, rpc: rpc}
}

func (c *ExactStellarScheme) Scheme() string {
	return stellar.SchemeExact
}

// CreatePaymentPayload builds and signs a transfer invocation paying
// requirements.PayTo out of the client's address. The exact scheme
// requires the facilitator to sponsor the transaction fee, advertised via
// requirements.extra.areFeesSponsored.
func (c *ExactStellarScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirementsView,
) (map[string]interface{}, error) {
	network := requirements.GetNetwork()
	if !stellar.IsStellarNetwork(network) {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
	if !stellar.ValidateStellarAssetAddress(requirements.GetAsset()) {
		return nil, fmt.Errorf("invalid asset contract address: %s", requirements.GetAsset())
	}
	if !stellar.ValidateStellarDestinationAddress(requirements.GetPayTo()) {
		return nil, fmt.Errorf("invalid payTo address: %s", requirements.GetPayTo())
	}

	extra := requirements.GetExtra()
	sponsored, _ := extra["areFeesSponsored"].(bool)
	if !sponsored {
		return nil, fmt.Errorf("exact scheme requires areFeesSponsored to be true")
	}

	passphrase, err := stellar.GetNetworkPassphrase(network)
	if err != nil {
		return nil, err
	}

	seq, err := c.rpc.GetAccountSequence(ctx, c.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to load source account: %w", err)
	}

	currentLedger, err := c.rpc.GetLatestLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest ledger: %w", err)
	}
	maxLedger := stellar.CalculateMaxLedger(currentLedger, requirements.GetMaxTimeoutSeconds(), stellar.DefaultEstimatedLedgerSeconds)

	amount, ok := new(big.Int).SetString(requirements.GetAmount(), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", requirements.GetAmount())
	}

	fromAddr, err := scAddressFromString(c.signer.Address())
	if err != nil {
		return nil, err
	}
	toAddr, err := scAddressFromString(requirements.GetPayTo())
	if err != nil {
		return nil, err
	}
	contractAddr, err := scAddressFromString(requirements.GetAsset())
	if err != nil {
		return nil, err
	}

	invokeOp := &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contractAddr,
				FunctionName:    "transfer",
				Args: []xdr.ScVal{
					{Type: xdr.ScValTypeScvAddress, Address: &fromAddr},
					{Type: xdr.ScValTypeScvAddress, Address: &toAddr},
					i128ScVal(amount),
				},
			},
		},
		SourceAccount: c.signer.Address(),
	}

	sourceAccount := &txnbuild.SimpleAccount{AccountID: c.signer.Address(), Sequence: seq}

	txTimeout := int64(requirements.GetMaxTimeoutSeconds())
	if txTimeout <= 0 {
		txTimeout = stellar.DefaultTimeoutSeconds
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        sourceAccount,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{invokeOp},
		BaseFee:              defaultBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(txTimeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	unsignedXDR, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	sim, err := c.rpc.SimulateTransaction(ctx, unsignedXDR)
	if err != nil || sim.Error != "" {
		return nil, fmt.Errorf("simulation failed: %v %s", err, sim.Error)
	}

	preparedXDR, err := applySimulationToAuth(unsignedXDR, sim, maxLedger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare transaction: %w", err)
	}

	signedXDR, err := c.signer.SignAuthEntry(ctx, preparedXDR, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	svmPayload := &stellar.ExactStellarPayload{Transaction: signedXDR}
	return svmPayload.ToMap(), nil
}

func scAddressFromString(address string) (xdr.ScAddress, error) {
	if len(address) == 0 {
		return xdr.ScAddress{}, fmt.Errorf("empty address")
	}
	switch address[0] {
	case 'G':
		accountID, err := xdr.AddressToAccountId(address)
		if err != nil {
			return xdr.ScAddress{}, err
		}
		return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &accountID}, nil
	case 'C':
		raw, err := strkey.Decode(strkey.VersionByteContract, address)
		if err != nil {
			return xdr.ScAddress{}, err
		}
		var contractID xdr.ContractId
		copy(contractID[:], raw)
		return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &contractID}, nil
	default:
		return xdr.ScAddress{}, fmt.Errorf("unsupported address prefix for %s", address)
	}
}

func i128ScVal(amount *big.Int) xdr.ScVal {
	mask64 := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(amount, mask64).Uint64()
	hi := new(big.Int).Rsh(amount, 64).Int64()
	val := &xdr.Int128Parts{Hi: xdr.Int64(hi), Lo: xdr.Uint64(lo)}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: val}
}

// applySimulationToAuth merges the simulated resource footprint and
// auto-generated authorization entries back into the envelope, encoding
// maxLedger as each entry's signature expiration.
func applySimulationToAuth(txXDR string, sim *stellar.SimulateResult, maxLedger uint32) (string, error) {
	envBytes, err := base64.StdEncoding.DecodeString(txXDR)
	if err != nil {
		return "", err
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshal(envBytes, &env); err != nil {
		return "", err
	}
	if env.V1 == nil || len(env.V1.Tx.Operations) != 1 {
		return "", fmt.Errorf("expected exactly 1 operation")
	}
	invoke, ok := env.V1.Tx.Operations[0].Body.GetInvokeHostFunctionOp()
	if !ok {
		return "", fmt.Errorf("not an InvokeHostFunction operation")
	}

	var authEntries []xdr.SorobanAuthorizationEntry
	for _, entryXDR := range sim.AuthXDR {
		raw, err := base64.StdEncoding.DecodeString(entryXDR)
		if err != nil {
			return "", err
		}
		var entry xdr.SorobanAuthorizationEntry
		if err := xdr.SafeUnmarshal(raw, &entry); err != nil {
			return "", err
		}
		if entry.Credentials.Type == xdr.SorobanCredentialsTypeSorobanCredentialsAddress && entry.Credentials.Address != nil {
			entry.Credentials.Address.SignatureExpirationLedger = xdr.Uint32(maxLedger)
		}
		authEntries = append(authEntries, entry)
	}
	invoke.Auth = authEntries
	env.V1.Tx.Operations[0].Body.InvokeHostFunctionOp = &invoke

	if sim.TransactionDataXDR != "" {
		var sorobanData xdr.SorobanTransactionData
		raw, err := base64.StdEncoding.DecodeString(sim.TransactionDataXDR)
		if err == nil && xdr.SafeUnmarshal(raw, &sorobanData) == nil {
			env.V1.Tx.Ext = xdr.TransactionExt{V: 1, SorobanData: &sorobanData}
		}
	}

	out, err := env.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
