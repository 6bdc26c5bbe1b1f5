// Package facilitator implements the SVM split-scheme facilitator half.
// Unlike EVM and Stellar split, Solana split does not settle as a single
// escrow transfer plus internal bookkeeping: the client's transaction pays
// into the facilitator's own associated token account, and settlement then
// issues one additional TransferChecked instruction per recipient, each
// submitted and confirmed on-chain individually.
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
	"github.com/x402-go/x402/go/mechanisms/svm/split"
)

// SplitSvmScheme implements x402.SchemeNetworkFacilitator for Solana split
// payments.
type SplitSvmScheme struct {
	signer svm.FacilitatorSvmSigner
}

// NewSplitSvmScheme creates a new SplitSvmScheme.
func NewSplitSvmScheme(signer svm.FacilitatorSvmSigner) *SplitSvmScheme {
	return &SplitSvmScheme{signer: signer}
}

func (f *SplitSvmScheme) Scheme() string {
	return svm.SchemeSplit
}

func (f *SplitSvmScheme) CaipFamily() string {
	return "solana:*"
}

// GetExtra returns a randomly selected fee payer address, which doubles as
// the escrow account split payments accumulate into.
func (f *SplitSvmScheme) GetExtra(network x402.Network) (map[string]interface{}, error) {
	addresses := f.signer.GetAddresses(context.Background(), string(network))
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no fee payer addresses configured for network %s", network)
	}
	chosen := addresses[rand.Intn(len(addresses))]
	return map[string]interface{}{"feePayer": chosen.String()}, nil
}

func (f *SplitSvmScheme) GetSigners() []string {
	addresses := f.signer.GetAddresses(context.Background(), "")
	result := make([]string, len(addresses))
	for i, addr := range addresses {
		result[i] = addr.String()
	}
	return result
}

// Verify checks the recipient configuration and that the client's
// transaction escrows funds into the facilitator's own token account,
// rather than requirements.payTo — the facilitator distributes onward
// itself during Settle.
func (f *SplitSvmScheme) Verify(
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

	config, err := split.ParseConfig(requirements.GetExtra())
	if err != nil {
		return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
	}
	if err := config.Validate(); err != nil {
		return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
	}
	for _, r := range config.Recipients {
		if _, err := solana.PublicKeyFromBase58(r.Address); err != nil {
			return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
		}
	}

	extra := requirements.GetExtra()
	feePayerStr, ok := extraStringField(extra, "feePayer")
	if !ok {
		return nil, x402.NewVerifyError("invalid_split_solana_payload_missing_fee_payer", "", network, nil)
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
		return nil, x402.NewVerifyError("invalid_split_solana_payload_transaction", "", network, err)
	}

	tx, err := svm.DecodeTransaction(solanaPayload.Transaction)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_split_solana_payload_transaction_could_not_be_decoded", "", network, err)
	}

	if len(tx.Message.Instructions) != 3 {
		return nil, x402.NewVerifyError("invalid_split_solana_payload_transaction_instructions_length", "", network, nil)
	}

	if err := f.verifyComputeLimitInstruction(tx, tx.Message.Instructions[0]); err != nil {
		return nil, x402.NewVerifyError(err.Error(), "", network, err)
	}
	if err := f.verifyComputePriceInstruction(tx, tx.Message.Instructions[1]); err != nil {
		return nil, x402.NewVerifyError(err.Error(), "", network, err)
	}

	payer, err := svm.GetTokenPayerFromTransaction(tx)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_split_solana_payload_no_transfer_instruction", payer, network, err)
	}

	if err := f.verifyEscrowTransferInstruction(tx, tx.Message.Instructions[2], requirements, feePayerStr, signerAddressStrs); err != nil {
		return nil, x402.NewVerifyError(err.Error(), payer, network, err)
	}

	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, x402.NewVerifyError("invalid_fee_payer", payer, network, err)
	}

	if err := f.signer.SignTransaction(ctx, tx, feePayer, network); err != nil {
		return nil, x402.NewVerifyError("transaction_signing_failed", payer, network, err)
	}
	if err := f.signer.SimulateTransaction(ctx, tx, network); err != nil {
		return nil, x402.NewVerifyError("transaction_simulation_failed", payer, network, err)
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payer}, nil
}

// Settle re-verifies, submits the client's escrow transaction and waits for
// confirmation, then issues one TransferChecked per recipient out of the
// facilitator's own token account, signing, submitting and confirming each
// individually.
func (f *SplitSvmScheme) Settle(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.SettleResponse, error) {
	network := requirements.GetNetwork()

	verifyResp, err := f.Verify(ctx, payload, requirements)
	if err != nil {
		var ve *x402.VerifyError
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.Reason, ve.Payer, ve.Network, "", ve.Err)
		}
		return nil, x402.NewSettleError("verification_failed", "", network, "", err)
	}

	solanaPayload, err := svm.PayloadFromMap(payload.GetPayload())
	if err != nil {
		return nil, x402.NewSettleError("invalid_split_solana_payload_transaction", verifyResp.Payer, network, "", err)
	}
	tx, err := svm.DecodeTransaction(solanaPayload.Transaction)
	if err != nil {
		return nil, x402.NewSettleError("invalid_split_solana_payload_transaction", verifyResp.Payer, network, "", err)
	}

	feePayerStr, ok := extraStringField(requirements.GetExtra(), "feePayer")
	if !ok {
		return nil, x402.NewSettleError("missing_fee_payer", verifyResp.Payer, network, "", nil)
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, x402.NewSettleError("invalid_fee_payer", verifyResp.Payer, network, "", err)
	}

	actualFeePayer := tx.Message.AccountKeys[0]
	if actualFeePayer != feePayer {
		return nil, x402.NewSettleError("fee_payer_mismatch", verifyResp.Payer, network, "",
			fmt.Errorf("expected %s, got %s", feePayer, actualFeePayer))
	}

	if err := f.signer.SignTransaction(ctx, tx, feePayer, network); err != nil {
		return nil, x402.NewSettleError("transaction_failed", verifyResp.Payer, network, "", err)
	}
	escrowSig, err := f.signer.SendTransaction(ctx, tx, network)
	if err != nil {
		return nil, x402.NewSettleError("transaction_failed", verifyResp.Payer, network, "", err)
	}
	if err := f.signer.ConfirmTransaction(ctx, escrowSig, network); err != nil {
		return nil, x402.NewSettleError("transaction_confirmation_failed", verifyResp.Payer, network, escrowSig.String(), err)
	}

	config, err := split.ParseConfig(requirements.GetExtra())
	if err != nil {
		return nil, x402.NewSettleError("invalid_split_config", verifyResp.Payer, network, escrowSig.String(), err)
	}
	amounts, err := split.CalculateSplitAmounts(requirements.GetAmount(), config.Recipients)
	if err != nil {
		return nil, x402.NewSettleError("invalid_split_config", verifyResp.Payer, network, escrowSig.String(), err)
	}

	mintPubkey, err := solana.PublicKeyFromBase58(requirements.GetAsset())
	if err != nil {
		return nil, x402.NewSettleError("invalid_mint", verifyResp.Payer, network, escrowSig.String(), err)
	}
	sourceATA, _, err := solana.FindAssociatedTokenAddress(feePayer, mintPubkey)
	if err != nil {
		return nil, x402.NewSettleError("invalid_mint", verifyResp.Payer, network, escrowSig.String(), err)
	}

	decimals := uint8(svm.DefaultDecimals)
	if extra := requirements.GetExtra(); extra != nil {
		switch v := extra["decimals"].(type) {
		case int:
			decimals = uint8(v)
		case float64:
			decimals = uint8(v)
		}
	}

	distributions := make([]map[string]interface{}, 0, len(amounts))
	for _, amount := range amounts {
		recipientPubkey, err := solana.PublicKeyFromBase58(amount.Address)
		if err != nil {
			return nil, x402.NewSettleError("invalid_recipient", verifyResp.Payer, network, escrowSig.String(), err)
		}
		destATA, _, err := solana.FindAssociatedTokenAddress(recipientPubkey, mintPubkey)
		if err != nil {
			return nil, x402.NewSettleError("invalid_recipient", verifyResp.Payer, network, escrowSig.String(), err)
		}

		distTx, err := f.buildDistributionTransaction(ctx, feePayer, sourceATA, destATA, mintPubkey, amount.Amount, decimals, network)
		if err != nil {
			return nil, x402.NewSettleError("distribution_build_failed", verifyResp.Payer, network, escrowSig.String(), err)
		}
		if err := f.signer.SignTransaction(ctx, distTx, feePayer, network); err != nil {
			return nil, x402.NewSettleError("distribution_failed", verifyResp.Payer, network, escrowSig.String(), err)
		}
		distSig, err := f.signer.SendTransaction(ctx, distTx, network)
		if err != nil {
			return nil, x402.NewSettleError("distribution_failed", verifyResp.Payer, network, escrowSig.String(), err)
		}
		if err := f.signer.ConfirmTransaction(ctx, distSig, network); err != nil {
			return nil, x402.NewSettleError("distribution_confirmation_failed", verifyResp.Payer, network, distSig.String(), err)
		}

		distributions = append(distributions, map[string]interface{}{
			"address":     amount.Address,
			"amount":      split.FormatAmount(amount.Amount),
			"transaction": distSig.String(),
		})
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: escrowSig.String(),
		Network:     x402.Network(network),
		Payer:       verifyResp.Payer,
		Extra: map[string]interface{}{
			"escrow_hash":   escrowSig.String(),
			"distributions": distributions,
		},
	}, nil
}

func (f *SplitSvmScheme) buildDistributionTransaction(
	ctx context.Context,
	feePayer solana.PublicKey,
	sourceATA, destATA, mint solana.PublicKey,
	amount uint64,
	decimals uint8,
	network string,
) (*solana.Transaction, error) {
	blockhash, err := f.signer.GetLatestBlockhash(ctx, network)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blockhash: %w", err)
	}

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(svm.DistributionComputeUnitLimit).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute unit limit instruction: %w", err)
	}

	cuPrice, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
		SetMicroLamports(svm.DefaultComputeUnitPriceMicrolamports).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build compute unit price instruction: %w", err)
	}

	transferIx, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(decimals).
		SetSourceAccount(sourceATA).
		SetMintAccount(mint).
		SetDestinationAccount(destATA).
		SetOwnerAccount(feePayer).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice).
		AddInstruction(transferIx).
		SetRecentBlockHash(blockhash).
		SetFeePayer(feePayer).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

func (f *SplitSvmScheme) verifyComputeLimitInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 2 {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	if _, err := computebudget.DecodeInstruction(accounts, inst.Data); err != nil {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_limit_instruction")
	}
	return nil
}

func (f *SplitSvmScheme) verifyComputePriceInstruction(tx *solana.Transaction, inst solana.CompiledInstruction) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if !progID.Equals(solana.ComputeBudget) {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if len(inst.Data) < 1 || inst.Data[0] != 3 {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_price_instruction")
	}
	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_price_instruction")
	}
	decoded, err := computebudget.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_price_instruction")
	}
	priceInst, ok := decoded.Impl.(*computebudget.SetComputeUnitPrice)
	if !ok {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_price_instruction")
	}
	if priceInst.MicroLamports > uint64(svm.MaxComputeUnitPriceMicrolamports) {
		return fmt.Errorf("invalid_split_solana_payload_transaction_instructions_compute_price_instruction_too_high")
	}
	return nil
}

// verifyEscrowTransferInstruction checks the client's transfer pays into the
// facilitator's own associated token account for the fee payer it named,
// not requirements.payTo — payTo plays no escrow role in SVM split.
func (f *SplitSvmScheme) verifyEscrowTransferInstruction(
	tx *solana.Transaction,
	inst solana.CompiledInstruction,
	requirements x402.PaymentRequirementsView,
	feePayerStr string,
	signerAddresses []string,
) error {
	progID := tx.Message.AccountKeys[inst.ProgramIDIndex]
	if progID != solana.TokenProgramID && progID != solana.Token2022ProgramID {
		return fmt.Errorf("invalid_split_solana_payload_no_transfer_instruction")
	}

	accounts, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_no_transfer_instruction")
	}
	if len(accounts) < 4 {
		return fmt.Errorf("invalid_split_solana_payload_no_transfer_instruction")
	}

	decoded, err := token.DecodeInstruction(accounts, inst.Data)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_no_transfer_instruction")
	}
	transferChecked, ok := decoded.Impl.(*token.TransferChecked)
	if !ok {
		return fmt.Errorf("invalid_split_solana_payload_no_transfer_instruction")
	}

	authorityAddr := accounts[3].PublicKey.String()
	for _, signerAddr := range signerAddresses {
		if authorityAddr == signerAddr {
			return fmt.Errorf("invalid_split_solana_payload_transaction_fee_payer_transferring_funds")
		}
	}

	mintAddr := accounts[1].PublicKey.String()
	if mintAddr != requirements.GetAsset() {
		return fmt.Errorf("invalid_split_solana_payload_mint_mismatch")
	}

	facilitatorPubkey, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_recipient_mismatch")
	}
	mintPubkey, err := solana.PublicKeyFromBase58(requirements.GetAsset())
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_mint_mismatch")
	}

	expectedDestATA, _, err := solana.FindAssociatedTokenAddress(facilitatorPubkey, mintPubkey)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_recipient_mismatch")
	}
	destATA := transferChecked.GetDestinationAccount().PublicKey
	if destATA.String() != expectedDestATA.String() {
		return fmt.Errorf("invalid_split_solana_payload_recipient_mismatch")
	}

	requiredAmount, err := strconv.ParseUint(requirements.GetAmount(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid_split_solana_payload_amount_insufficient")
	}
	if *transferChecked.Amount < requiredAmount {
		return fmt.Errorf("invalid_split_solana_payload_amount_insufficient")
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
