// Package facilitator implements the Stellar split-scheme facilitator half.
// The on-chain wire transaction is identical in shape to the exact scheme's
// escrow transfer — the same transfer(from,to,amount) invocation, with
// requirements.payTo treated as an escrow address rather than a final
// recipient — so verification is delegated to an embedded exact scheme and
// the split distribution is computed and recorded purely as bookkeeping
// after settlement succeeds.
package facilitator

import (
	"context"
	"fmt"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
	exactfacilitator "github.com/x402-go/x402/go/mechanisms/stellar/exact/facilitator"
	"github.com/x402-go/x402/go/mechanisms/stellar/split"
)

// SplitStellarScheme implements x402.SchemeNetworkFacilitator for Stellar
// split payments.
type SplitStellarScheme struct {
	exact  *exactfacilitator.ExactStellarScheme
	signer stellar.FacilitatorStellarSigner
}

// NewSplitStellarScheme creates a new SplitStellarScheme.
func NewSplitStellarScheme(signer stellar.FacilitatorStellarSigner, rpc stellar.RPCClient) *SplitStellarScheme {
	return &SplitStellarScheme{
		exact:  exactfacilitator.NewExactStellarScheme(signer, rpc),
		signer: signer,
	}
}

func (f *SplitStellarScheme) Scheme() string {
	return stellar.SchemeSplit
}

func (f *SplitStellarScheme) CaipFamily() string {
	return "stellar:*"
}

func (f *SplitStellarScheme) GetExtra(network x402.Network) (map[string]interface{}, error) {
	return f.exact.GetExtra(network)
}

func (f *SplitStellarScheme) GetSigners() []string {
	return f.exact.GetSigners()
}

// Verify validates the recipient configuration in requirements.extra, then
// runs the exact scheme's full on-chain verification sequence treating
// payTo as the escrow destination.
func (f *SplitStellarScheme) Verify(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.VerifyResponse, error) {
	network := requirements.GetNetwork()

	if payload.GetScheme() != f.Scheme() || requirements.GetScheme() != f.Scheme() {
		return nil, x402.NewVerifyError("unsupported_scheme", "", network, nil)
	}

	config, err := split.ParseConfig(requirements.GetExtra())
	if err != nil {
		return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
	}
	if err := config.Validate(); err != nil {
		return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
	}
	for _, r := range config.Recipients {
		if !stellar.ValidateStellarDestinationAddress(r.Address) {
			return nil, x402.NewVerifyError("invalid_split_recipient_address", "", network, fmt.Errorf("invalid address %s", r.Address))
		}
	}

	return f.exact.Verify(ctx, payload, requirements)
}

// Settle re-verifies and settles the single escrow transfer exactly like
// the exact scheme, then computes each recipient's share and records it as
// internal accounting — Soroban has no native multi-recipient transfer
// primitive, so there is no further on-chain distribution.
func (f *SplitStellarScheme) Settle(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.SettleResponse, error) {
	network := requirements.GetNetwork()

	if _, err := f.Verify(ctx, payload, requirements); err != nil {
		return nil, err
	}

	result, err := f.exact.Settle(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}

	config, err := split.ParseConfig(requirements.GetExtra())
	if err != nil {
		return nil, x402.NewSettleError("invalid_split_config", result.Payer, network, result.Transaction, err)
	}

	amounts, err := split.CalculateSplitAmounts(requirements.GetAmount(), config.Recipients)
	if err != nil {
		return nil, x402.NewSettleError("invalid_split_config", result.Payer, network, result.Transaction, err)
	}

	splits := make([]map[string]interface{}, len(amounts))
	for i, a := range amounts {
		splits[i] = map[string]interface{}{
			"address": a.Address,
			"amount":  a.Amount,
			"method":  "internal",
		}
	}

	result.Extra = map[string]interface{}{"splits": splits}
	return result, nil
}
