// Package facilitator implements the SVM exact-scheme facilitator half:
// verifying a client-built transfer transaction, co-signing as fee payer,
// and broadcasting it.
package facilitator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/svm"
)

// ExactSvmScheme implements x402.SchemeNetworkFacilitator for Solana exact
// payments.
type ExactSvmScheme struct {
	signer svm.FacilitatorSvmSigner
}

// NewExactSvmScheme creates a new ExactSvmScheme.
func NewExactSvmScheme(signer svm.FacilitatorSvmSigner) *ExactSvmScheme {
	return &ExactSvmScheme{signer: signer}
}

func (f *ExactSvmScheme) Scheme() string {
	return svm.SchemeExact
}

func (f *ExactSvmScheme) CaipFamily() string {
	return "solana:*"
}

// GetExtra returns a randomly selected fee payer address, distributing load
// across whatever signers are configured for the network.
func (f *ExactSvmScheme) GetExtra(network x402.Network) (map[string]interface{}, error) {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no fee payer addresses configured for network %s", network)
	}
	chosen := addresses[rand.Intn(len(addresses))]
	return map[string]interface{}{"feePayer": chosen.String()}, nil
}

// GetSigners returns every fee payer address this facilitator can use,
// across all networks it's configured for.
func (f *ExactSvmScheme) GetSigners() []string {
	addresses := f.signer.GetAddresses(context.Background(), "")
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}

// Verify checks that the client's transaction pays the right mint, amount
// and recipient, uses a fee payer this facilitator manages, and would
// actually succeed on submission.
func (f *ExactSvmScheme) Verify(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.VerifyResponse, error) {
	network := requirements.GetNetwork()

	if payload.GetScheme() != requirements.GetScheme() {
		return nil, x402.NewVerifyError("unsupported_scheme", "", network, nil)
	}
	if payload.GetNetwork() != requirements.GetNetwork() {
		return nil, x402.NewVerifyError("network_mismatch", "", network, nil)
	}

	extra := requirements.GetExtra()
	feePayerStr, ok := extraStringField(extra, "feePayer")
	if !ok {
		return nil, x402.NewVerifyError("invalid_exact_solana_payload_missing_fee_payer", "", network, nil)
	}

	signerAddresses := f.signer.GetAddresses(ctx, network)
	signerAddressStrs := make([]string, len(signerAddresses))
	for i, addr := range signerAddresses {
		signerAddressStrs[i] = addr.String()
	}

	feePayerManaged := false
	for _, addr := range signerAddressStrs {
		if addr == feePayerStr {
			feePayerManaged = true
			break
		}
	}
	if !feePayerManaged {
		return nil, x402.NewVerifyError("fee_payer_not_managed_by_facilitator", "", network, nil)
	}

	solanaPayload, err := svm.PayloadFromMap(payload.GetPayload())
	if err != nil {
		return nil, x402.NewVerifyError("invalid_exact_solana_payload_transaction", "", network, err)
	}

	tx, err := svm.DecodeTransaction(solanaPayload.Transaction)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_exact_solana_payload_transaction_could_not_be_decoded", "", network, err)
	}

	if len(tx.Message.Instructions) != 3 {
		return nil, x402.NewVerifyError("invalid_exact_solana_payload_transaction_instructions_length", "", network, nil)
	}

	if err := f.verifyComputeLimitInstruction(tx, tx.Message.Instructions[0]); err != nil {
		return nil, x402.NewVerifyError(err.Error(), "", network, err)
	}
	if err := f.verifyComputePriceInstruction(tx, tx.Message.Instructions[1]); err != nil {
		return nil, x402.NewVerifyError(err.Error(), "", network, err)
	}

	payer, err := svm.GetTokenPayerFromTransaction(tx)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_exact_solana_payload_no_transfer_instruction", payer, network, err)
	}

	if err := f.verifyTransferInstruction(tx, tx.Message.Instructions[2], requirements, signerAddressStrs); err != nil {
		return nil, x402.NewVerifyError(err.Error(), payer, network, err)
	}

	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_fee_payer", payer, network, err)
	}

	if err := f.signer.SignTransaction(ctx, tx, feePayer, network); err != nil {
		return nil, x402.NewVerifyError("transaction_signing_failed", payer, network, err)
	}

	// Simulation proves the transaction will succeed before it's ever
	// submitted, catching insufficient balance or a stale blockhash.
	if err := f.signer.SimulateTransaction(ctx, tx, network); err != nil {
		return nil, x402.NewVerifyError("transaction_simulation_failed", payer, network, err)
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle re-verifies, co-signs as fee payer, submits and waits for
// confirmation.
func (f *ExactSvmScheme) Settle(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.SettleResponse, error) {
	network := requirements.GetNetwork()

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		ve := &x402.VerifyError{}
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.Reason, ve.Payer, ve.Network, "", ve.Err)
		}
		return nil, x402.NewSettleError("verification_failed", "", network, "", err)
	}

	solanaPayload, err := svm.PayloadFromMap(payload.GetPayload())
	if err != nil {
		return nil, x402.NewSettleError("invalid_exact_solana_payload_transaction", verifyResp.Payer, network, "", err)
	}

	tx, err := svm.DecodeTransaction(solanaPayload.Transaction)
	if err != nil {
		return nil, x402.NewSettleError("invalid_exact_solana_payload_transaction", verifyResp.Payer, network, "", err)
	}

	feePayerStr, ok := extraStringField(requirements.GetExtra(), "feePayer")
	if !ok {
		return nil, x402.NewSettleError("missing_fee_payer", verifyResp.Payer, network, "", nil)
	}

	expectedFeePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, x402.NewSettleError("invalid_fee_payer", verifyResp.Payer, network, "", err)
	}

	actualFeePayer := tx.Message.AccountKeys[0]
	if actualFeePayer != expectedFeePayer {
		return nil, x402.NewSettleError("fee_payer_mismatch", verifyResp.Payer, network, "",
			fmt.Errorf("expected %s, got %s", expectedFeePayer, actualFeePayer))
	}

	if err := f.signer.SignTransaction(ctx, tx, expectedFeePayer, network); err != nil {
		return nil, x402.NewSettleError("transaction_failed", verifyResp.Payer, network, "", err)
	}

	signature, err := f.signer.SendTransaction(ctx, tx, network)
	if err != nil {
		return nil, x402.NewSettleError("transaction_failed", verifyResp.Payer, network, "", err)
	}

	if err := f.signer.ConfirmTransaction(ctx, signature, network); err != nil {
		return nil, x402.NewSettleError("transaction_confirmation_failed", verifyResp.Payer, network, signature.String(), err)
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: signature.String(),
		Network:     x402.Network(network),
		Payer:       verifyResp.Payer,
	}, nil
}

func (f *ExactSvmScheme) verifyComputeLimitInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 2 {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if _, err := computebudget.DecodeInstruction(accounts, inst.Data); err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	return nil
}

func (f *ExactSvmScheme) verifyComputePriceInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 3 {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}

	priceInst, ok := decoded.Impl.(*computebudget.SetComputeUnitPrice)
	if !ok {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if priceInst.MicroLamports > uint64(svm.MaxComputeUnitPriceMicrolamports) {
		return fmt.Errorf("invalid_exact_solana_payload_transaction_instructions_compute_price_instruction_too_high")
	}
	return nil
}

func (f *ExactSvmScheme) verifyTransferInstruction(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirementsView,
	signerAddresses []string,
) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}
	if len(accounts) < 4 {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return fmt.Errorf("invalid_exact_solana_payload_no_transfer_instruction")
	}

	// A facilitator signer must never be the token authority: it would be
	// signing away its own funds instead of sponsoring the transaction fee.
	authorityAddr := accounts[3].PublicKey.String()
	for _, signerAddr := range signerAddresses {
		if authorityAddr == signerAddr {
			return fmt.Errorf("invalid_exact_solana_payload_transaction_fee_payer_transferring_funds")
		}
	}

	mintAddr := accounts[1].PublicKey.String()
	if mintAddr != requirements.GetAsset() {
		return fmt.Errorf("invalid_exact_solana_payload_mint_mismatch")
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.GetPayTo())
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_recipient_mismatch")
	}
	mintPubkey, err := solana.PublicKeyFromBase58(requirements.GetAsset())
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_mint_mismatch")
	}

	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_recipient_mismatch")
	}
	destATA := transferChecked.GetDestinationAccount().PublicKey
	if destATA.String() != expectedDestATA.String() {
		return fmt.Errorf("invalid_exact_solana_payload_recipient_mismatch")
	}

	requiredAmount, err := strconv.ParseUint(requirements.GetAmount(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid_exact_solana_payload_amount_insufficient")
	}
	if *transferChecked.Amount < requiredAmount {
		return fmt.Errorf("invalid_exact_solana_payload_amount_insufficient")
	}

	return nil
}

func extraStringField(extra map[string]interface{}, key string) (string, bool) {
	if extra == nil {
		return "", false
	}
	val, ok := extra[key].(string)
	return val, ok && val != ""
}
