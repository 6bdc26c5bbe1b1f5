// Package client implements the SVM exact-scheme client half: building a
// fee-payer-sponsored SPL TransferChecked transaction and partially signing
// it as the token owner.
package client

import (
	"context"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/svm"
)

// ExactSvmScheme implements x402.SchemeNetworkClient for Solana exact
// payments.
type ExactSvmScheme struct {
	signer svm.ClientSvmSigner
	config svm.ClientConfig
}

// NewExactSvmScheme creates a new ExactSvmScheme for the given signer. A
// zero-value config uses the network's default RPC URL.
func NewExactSvmScheme(signer svm.ClientSvmSigner, config svm.ClientConfig) *ExactSvmScheme {
	return &ExactSvmScheme{signer: signer, config: config}
}

func (c *ExactSvmScheme) Scheme() string {
	return svm.SchemeExact
}

// CreatePaymentPayload builds a TransferChecked transaction paying
// requirements.PayTo, sponsored by the facilitator's feePayer, and
// partially signs it as the token owner.
func (c *ExactSvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirementsView,
) (map[string]interface{}, error) {
	networkStr := requirements.GetNetwork()
	if !svm.IsValidNetwork(networkStr) {
		return nil, fmt.Errorf("unsupported network: %s", networkStr)
	}

	netConfig, err := svm.GetNetworkConfig(networkStr)
	if err != nil {
		return nil, err
	}

	rpcURL := netConfig.RPCURL
	if c.config.RPCURL != "" {
		rpcURL = c.config.RPCURL
	}
	rpcClient := rpc.New(rpcURL)

	mintPubkey, err := solana.PublicKeyFromBase58(requirements.GetAsset())
	if err != nil {
		return nil, fmt.Errorf("invalid asset mint address: %w", err)
	}

	mintAccount, err := rpcClient.GetAccountInfo(ctx, mintPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mint account: %w", err)
	}
	if mintAccount.Value.Owner != solana.TokenProgramID && mintAccount.Value.Owner != solana.Token2022ProgramID {
		return nil, fmt.Errorf("asset %s is not an SPL token mint", requirements.GetAsset())
	}

	var mintData token.Mint
	if err := bin.NewBinDecoder(mintAccount.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return nil, fmt.Errorf("failed to decode mint account: %w", err)
	}

	payToPubkey, err := solana.PublicKeyFromBase58(requirements.GetPayTo())
	if err != nil {
		return nil, fmt.Errorf("invalid payTo address: %w", err)
	}

	sourceATA, _, err := solana.FindAssociatedTokenAddress(c.signer.Address(), mintPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source ATA: %w", err)
	}

	destinationATA, _, err := solana.FindAssociatedTokenAddress(payToPubkey, mintPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive destination ATA: %w", err)
	}

	amount, err := strconv.ParseUint(requirements.GetAmount(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %s", requirements.GetAmount())
	}

	extra := requirements.GetExtra()
	if extra == nil {
		return nil, fmt.Errorf("feePayer is required in paymentRequirements.extra for Solana transactions")
	}
	feePayerStr, ok := extra["feePayer"].(string)
	if !ok || feePayerStr == "" {
		return nil, fmt.Errorf("feePayer is required in paymentRequirements.extra for Solana transactions")
	}
	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, fmt.Errorf("invalid feePayer address: %w", err)
	}

	recent, err := rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent blockhash: %w", err)
	}

	cuLimit, err := computebudget.NewSetComputeUnitLimitInstructionBuilder().
		SetUnits(svm.DefaultComputeUnitLimit).ValidateAndBuild()
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
		SetDecimals(mintData.Decimals).
		SetSourceAccount(sourceATA).
		SetMintAccount(mintPubkey).
		SetDestinationAccount(destinationATA).
		SetOwnerAccount(c.signer.Address()).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}

	tx, err := solana.NewTransactionBuilder().
		AddInstruction(cuLimit).
		AddInstruction(cuPrice).
		AddInstruction(transferIx).
		SetRecentBlockHash(recent.Value.Blockhash).
		SetFeePayer(feePayer).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	encoded, err := svm.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}

	svmPayload := &svm.ExactSvmPayload{Transaction: encoded}
	return svmPayload.ToMap(), nil
}
