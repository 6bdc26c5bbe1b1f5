// Package facilitator implements the Stellar exact-scheme facilitator half:
// on-chain verification and settlement of a Soroban transfer(from,to,amount)
// invocation against a SEP-41 asset contract.
package facilitator

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/stellar/go/xdr"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
)

// ExactStellarScheme implements x402.SchemeNetworkFacilitator for Stellar
// exact payments.
type ExactStellarScheme struct {
	signer          stellar.FacilitatorStellarSigner
	rpc             stellar.RPCClient
	areFeesSponsored bool
	maxFeeStroops   int64
}

// NewExactStellarScheme creates a new ExactStellarScheme. rpc drives the
// Soroban JSON-RPC calls (simulate, send, poll) the scheme needs; signer
// produces the facilitator's signature over the final envelope.
func NewExactStellarScheme(signer stellar.FacilitatorStellarSigner, rpc stellar.RPCClient) *ExactStellarScheme {
	return &ExactStellarScheme{
		signer:           signer,
		rpc:              rpc,
		areFeesSponsored: true,
		maxFeeStroops:    stellar.DefaultMaxFeeStroops,
	}
}

// WithMaxFeeStroops overrides the default fee ceiling the facilitator will
// accept sponsoring.
func (f *ExactStellarScheme) WithMaxFeeStroops(stroops int64) *ExactStellarScheme {
	f.maxFeeStroops = stroops
	return f
}

func (f *ExactStellarScheme) Scheme() string {
	return stellar.SchemeExact
}

func (f *ExactStellarScheme) CaipFamily() string {
	return "stellar:*"
}

func (f *ExactStellarScheme) GetExtra(network x402.Network) (map[string]interface{}, error) {
	return map[string]interface{}{"areFeesSponsored": f.areFeesSponsored}, nil
}

func (f *ExactStellarScheme) GetSigners() []string {
	return []string{f.signer.Address()}
}

// parsedPayload bundles the decoded envelope state the verify sequence
// threads through its checks.
type parsedPayload struct {
	envelope   *xdr.TransactionEnvelope
	txSource   string
	opSource   string
	invoke     *xdr.InvokeHostFunctionOp
	from       string
	to         string
	amount     string
}

func (f *ExactStellarScheme) parsePayload(rawXDR string) (*parsedPayload, error) {
	envBytes, err := base64.StdEncoding.DecodeString(rawXDR)
	if err != nil {
		return nil, fmt.Errorf("invalid_stellar_payload_malformed: %w", err)
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshal(envBytes, &env); err != nil {
		return nil, fmt.Errorf("invalid_stellar_payload_malformed: %w", err)
	}

	ops := envelopeOperations(&env)
	if len(ops) != 1 {
		return nil, fmt.Errorf("invalid_stellar_payload_wrong_operation: expected 1 operation, got %d", len(ops))
	}
	op := ops[0]
	if op.Body.Type != xdr.OperationTypeInvokeHostFunction {
		return nil, fmt.Errorf("invalid_stellar_payload_wrong_operation: not an InvokeHostFunction operation")
	}
	invoke, ok := op.Body.GetInvokeHostFunctionOp()
	if !ok {
		return nil, fmt.Errorf("invalid_stellar_payload_wrong_operation: malformed InvokeHostFunction operation")
	}

	txSource, err := txSourceAddress(&env)
	if err != nil {
		return nil, fmt.Errorf("invalid_stellar_payload_malformed: %w", err)
	}
	opSource := ""
	if op.SourceAccount != nil {
		opSource = op.SourceAccount.ToAccountId().Address()
	}

	return &parsedPayload{envelope: &env, txSource: txSource, opSource: opSource, invoke: &invoke}, nil
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

func txSourceAddress(env *xdr.TransactionEnvelope) (string, error) {
	switch env.Type {
	case xdr.EnvelopeTypeEnvelopeTypeTx:
		if env.V1 == nil {
			return "", fmt.Errorf("malformed v1 envelope")
		}
		return env.V1.Tx.SourceAccount.ToAccountId().Address(), nil
	case xdr.EnvelopeTypeEnvelopeTypeTxV0:
		if env.V0 == nil {
			return "", fmt.Errorf("malformed v0 envelope")
		}
		return env.V0.Tx.SourceAccountEd25519.Address(), nil
	default:
		return "", fmt.Errorf("unsupported envelope type %v", env.Type)
	}
}

func scValToAddress(val xdr.ScVal) (string, error) {
	if val.Type != xdr.ScValTypeScvAddress || val.Address == nil {
		return "", fmt.Errorf("expected address arg, got %v", val.Type)
	}
	return addressFromSCAddress(*val.Address)
}

func addressFromSCAddress(addr xdr.ScAddress) (string, error) {
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil {
			return "", fmt.Errorf("nil account id")
		}
		return addr.AccountId.Address(), nil
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return "", fmt.Errorf("nil contract id")
		}
		return stellarContractStrkey(addr.ContractId[:])
	default:
		return "", fmt.Errorf("unsupported ScAddress type %v", addr.Type)
	}
}

func scValToAmount(val xdr.ScVal) (string, error) {
	if val.Type != xdr.ScValTypeScvI128 || val.I128 == nil {
		return "", fmt.Errorf("expected i128 amount arg, got %v", val.Type)
	}
	hi := big.NewInt(int64(val.I128.Hi))
	lo := new(big.Int).SetUint64(uint64(val.I128.Lo))
	total := new(big.Int).Lsh(hi, 64)
	total.Add(total, lo)
	return total.String(), nil
}

// Verify runs the full, order-dependent on-chain verification sequence for
// a Stellar exact payment.
func (f *ExactStellarScheme) Verify(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.VerifyResponse, error) {
	network := requirements.GetNetwork()

	// 1. scheme/network match — compared against each other rather than a
	// hardcoded literal so a split scheme can delegate here with scheme=="split"
	// on both sides.
	if payload.GetScheme() != requirements.GetScheme() {
		return nil, x402.NewVerifyError("unsupported_scheme", "", network, nil)
	}
	if !stellar.IsStellarNetwork(network) || payload.GetNetwork() != network {
		return nil, x402.NewVerifyError("invalid_network", "", network, nil)
	}

	svmPayload, err := stellar.PayloadFromMap(payload.GetPayload())
	if err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_malformed", "", network, err)
	}

	// 2. decode envelope, exactly 1 InvokeHostFunction operation
	parsed, err := f.parsePayload(svmPayload.Transaction)
	if err != nil {
		reason := err.Error()
		if i := strings.Index(reason, ":"); i >= 0 {
			reason = reason[:i]
		}
		return nil, x402.NewVerifyError(reason, "", network, err)
	}

	// 3. facilitator safety: neither tx source nor op source is us
	facilitatorAddr := f.signer.Address()
	if parsed.txSource == facilitatorAddr {
		return nil, x402.NewVerifyError("invalid_stellar_payload_unsafe_tx_source", "", network, nil)
	}
	if parsed.opSource == facilitatorAddr {
		return nil, x402.NewVerifyError("invalid_stellar_payload_unsafe_op_source", "", network, nil)
	}

	// 4. contract/function/arity
	hostFn := parsed.invoke.HostFunction
	if hostFn.Type != xdr.HostFunctionTypeHostFunctionTypeInvokeContract || hostFn.InvokeContract == nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_wrong_function", "", network, nil)
	}
	invokeArgs := hostFn.InvokeContract
	contractAddr, err := addressFromSCAddress(invokeArgs.ContractAddress)
	if err != nil || contractAddr != requirements.GetAsset() {
		return nil, x402.NewVerifyError("invalid_stellar_payload_wrong_asset", "", network, err)
	}
	if string(invokeArgs.FunctionName) != "transfer" {
		return nil, x402.NewVerifyError("invalid_stellar_payload_wrong_function", "", network, nil)
	}
	if len(invokeArgs.Args) != 3 {
		return nil, x402.NewVerifyError("invalid_stellar_payload_bad_args", "", network, nil)
	}

	// 5. decode (from,to,amount), check payer/payee/amount
	from, err := scValToAddress(invokeArgs.Args[0])
	if err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_bad_args", "", network, err)
	}
	to, err := scValToAddress(invokeArgs.Args[1])
	if err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_bad_args", "", network, err)
	}
	amount, err := scValToAmount(invokeArgs.Args[2])
	if err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_bad_args", "", network, err)
	}
	parsed.from, parsed.to, parsed.amount = from, to, amount

	if from == facilitatorAddr {
		return nil, x402.NewVerifyError("invalid_stellar_payload_facilitator_is_payer", "", network, nil)
	}
	if to != requirements.GetPayTo() {
		return nil, x402.NewVerifyError("invalid_stellar_payload_wrong_recipient", "", network, nil)
	}
	if amount != requirements.GetAmount() {
		return nil, x402.NewVerifyError("invalid_stellar_payload_wrong_amount", "", network, nil)
	}

	// 6. re-simulate against current ledger state
	rawXDR := svmPayload.Transaction
	sim, err := f.rpc.SimulateTransaction(ctx, rawXDR)
	if err != nil || sim.Error != "" {
		return nil, x402.NewVerifyError("invalid_stellar_payload_simulation_failed", from, network, err)
	}

	// 7. fee bounds
	clientFee := envelopeFee(parsed.envelope)
	if clientFee < sim.MinResourceFee {
		return nil, x402.NewVerifyError("invalid_stellar_payload_fee_below_minimum", from, network, nil)
	}
	if clientFee > f.maxFeeStroops {
		return nil, x402.NewVerifyError("invalid_stellar_payload_fee_exceeds_maximum", from, network, nil)
	}

	// 8. auth entries: payer already signed, facilitator absent, nothing pending
	signers, err := gatherAuthSignatureStatus(parsed.invoke)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_malformed", from, network, err)
	}
	if containsAddress(signers.alreadySigned, facilitatorAddr) || containsAddress(signers.pendingSignature, facilitatorAddr) {
		return nil, x402.NewVerifyError("invalid_stellar_payload_facilitator_in_auth", from, network, nil)
	}
	if !containsAddress(signers.alreadySigned, from) {
		return nil, x402.NewVerifyError("invalid_stellar_payload_missing_signature", from, network, nil)
	}
	if len(signers.pendingSignature) > 0 {
		return nil, x402.NewVerifyError("invalid_stellar_payload_missing_signatures", from, network, nil)
	}

	// 9. auth entry expiration vs timeout budget
	currentLedger, err := f.rpc.GetLatestLedger(ctx)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_simulation_failed", from, network, err)
	}
	maxLedger := stellar.CalculateMaxLedger(currentLedger, requirements.GetMaxTimeoutSeconds(), stellar.DefaultEstimatedLedgerSeconds)
	if err := validateAuthExpiration(parsed.invoke, maxLedger); err != nil {
		return nil, x402.NewVerifyError("invalid_stellar_payload_auth_expired", from, network, err)
	}

	return &x402.VerifyResponse{IsValid: true, Payer: from}, nil
}

// Settle re-verifies, rebuilds the envelope with the facilitator as the fee
// source, signs, submits, and polls for the transaction result.
func (f *ExactStellarScheme) Settle(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.SettleResponse, error) {
	network := requirements.GetNetwork()

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		var verifyErr *x402.VerifyError
		if ok := asVerifyError(err, &verifyErr); ok {
			return nil, x402.NewSettleError(verifyErr.Reason, verifyErr.Payer, network, "", verifyErr.Err)
		}
		return nil, x402.NewSettleError("verification_failed", "", network, "", err)
	}

	svmPayload, _ := stellar.PayloadFromMap(payload.GetPayload())
	parsed, err := f.parsePayload(svmPayload.Transaction)
	if err != nil {
		return nil, x402.NewSettleError(err.Error(), verifyResp.Payer, network, "", err)
	}

	passphrase, err := stellar.GetNetworkPassphrase(network)
	if err != nil {
		return nil, x402.NewSettleError("invalid_network", verifyResp.Payer, network, "", err)
	}

	clientFee := envelopeFee(parsed.envelope)
	fee := clientFee
	if f.maxFeeStroops < fee {
		fee = f.maxFeeStroops
	}

	rebuiltXDR, err := rebuildAsFacilitatorSource(parsed.envelope, f.signer.Address(), fee)
	if err != nil {
		return nil, x402.NewSettleError("settlement_failed", verifyResp.Payer, network, "", err)
	}

	sim, err := f.rpc.SimulateTransaction(ctx, rebuiltXDR)
	if err != nil || sim.Error != "" {
		return nil, x402.NewSettleError("invalid_stellar_payload_simulation_failed", verifyResp.Payer, network, "", err)
	}

	signedXDR, err := f.signer.SignTransaction(ctx, rebuiltXDR, passphrase)
	if err != nil {
		return nil, x402.NewSettleError("settlement_failed", verifyResp.Payer, network, "", err)
	}

	hash, err := f.rpc.SendTransaction(ctx, signedXDR)
	if err != nil {
		return nil, x402.NewSettleError("settlement_failed", verifyResp.Payer, network, "", err)
	}

	pollBudget := requirements.GetMaxTimeoutSeconds()
	if pollBudget <= 0 {
		pollBudget = stellar.DefaultTimeoutSeconds
	}
	pollCtx, cancel := context.WithTimeout(ctx, time.Duration(pollBudget)*time.Second)
	defer cancel()
	status, err := pollTransaction(pollCtx, f.rpc, hash)
	if err != nil {
		return nil, x402.NewSettleError("settlement_timeout", verifyResp.Payer, network, hash, err)
	}
	if status.Status != "SUCCESS" {
		return nil, x402.NewSettleError("settlement_failed", verifyResp.Payer, network, hash, fmt.Errorf("transaction status %s", status.Status))
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: hash,
		Network:     x402.Network(network),
		Payer:       verifyResp.Payer,
	}, nil
}
