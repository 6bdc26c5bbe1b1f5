// Package facilitator implements the EVM split-scheme facilitator half. The
// on-chain settlement — an EIP-3009 transferWithAuthorization to the escrow
// payTo — is identical to the exact scheme's, so verification and
// settlement delegate to an embedded exact scheme; this package adds the
// recipient-configuration checks and the post-settlement split bookkeeping.
package facilitator

import (
	"context"
	"errors"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/evm"
	exactfacilitator "github.com/x402-go/x402/go/mechanisms/evm/exact/facilitator"
	"github.com/x402-go/x402/go/mechanisms/evm/split"
)

// SplitEvmScheme implements x402.SchemeNetworkFacilitator for EVM split
// payments.
type SplitEvmScheme struct {
	exact *exactfacilitator.ExactEvmScheme
}

// NewSplitEvmScheme creates a new SplitEvmScheme.
func NewSplitEvmScheme(signer evm.FacilitatorEvmSigner) *SplitEvmScheme {
	return &SplitEvmScheme{exact: exactfacilitator.NewExactEvmScheme(signer, nil)}
}

func (f *SplitEvmScheme) Scheme() string {
	return x402.SchemeSplit
}

func (f *SplitEvmScheme) CaipFamily() string {
	return "eip155:*"
}

func (f *SplitEvmScheme) GetExtra(network x402.Network) (map[string]interface{}, error) {
	return f.exact.GetExtra(network)
}

func (f *SplitEvmScheme) GetSigners() []string {
	return f.exact.GetSigners()
}

// Verify validates the recipient configuration, then delegates the
// signature/amount/escrow-recipient checks to the exact scheme — an
// authorization paying more than required is accepted, same as exact.
func (f *SplitEvmScheme) Verify(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.VerifyResponse, error) {
	network := requirements.GetNetwork()

	if payload.GetScheme() != x402.SchemeSplit || requirements.GetScheme() != x402.SchemeSplit {
		return nil, x402.NewVerifyError("unsupported_scheme", "", network, nil)
	}

	if extra := requirements.GetExtra(); extra != nil {
		if _, hasRecipients := extra["recipients"]; hasRecipients {
			config, err := split.ParseConfig(extra)
			if err != nil {
				return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
			}
			if err := config.Validate(); err != nil {
				return nil, x402.NewVerifyError("invalid_split_config", "", network, err)
			}
		}
	}

	return f.exact.Verify(ctx, payload, requirements)
}

// Settle re-verifies, executes the single escrow transfer exactly like the
// exact scheme, then computes each recipient's share and records it as
// internal accounting.
func (f *SplitEvmScheme) Settle(
	ctx context.Context,
	payload x402.PaymentPayloadView,
	requirements x402.PaymentRequirementsView,
) (*x402.SettleResponse, error) {
	network := requirements.GetNetwork()

	if _, err := f.Verify(ctx, payload, requirements); err != nil {
		var ve *x402.VerifyError
		if errors.As(err, &ve) {
			return nil, x402.NewSettleError(ve.Reason, ve.Payer, ve.Network, "", ve.Err)
		}
		return nil, x402.NewSettleError("verification_failed", "", network, "", err)
	}

	result, err := f.exact.Settle(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}

	extra := requirements.GetExtra()
	hasRecipients := false
	if extra != nil {
		_, hasRecipients = extra["recipients"]
	}
	if !hasRecipients {
		// No recipients configured: the whole payment stayed at payTo, so
		// report it as a single onchain split entry rather than omitting
		// split bookkeeping entirely.
		result.Extra = map[string]interface{}{
			"splits": []map[string]interface{}{
				{"address": requirements.GetPayTo(), "amount": requirements.GetAmount(), "method": "onchain"},
			},
		}
		return result, nil
	}

	config, err := split.ParseConfig(extra)
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
			"label":   a.Label,
		}
	}

	result.Extra = map[string]interface{}{"splits": splits}
	return result, nil
}
