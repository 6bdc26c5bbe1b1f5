// Package client implements the SVM split-scheme client half. The client
// builds the same fee-payer-sponsored TransferChecked escrow transfer as
// the exact scheme, paying requirements.PayTo's token account, and is
// otherwise unaware of the split. The split facilitator accepts the
// transfer only when that account is the token account of the fee payer
// named in requirements.extra.feePayer, and then distributes the funds
// on-chain.
package client

import (
	"context"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/svm"
	exactclient "github.com/x402-go/x402/go/mechanisms/svm/exact/client"
)

// SplitSvmScheme implements x402.SchemeNetworkClient for Solana split
// payments by delegating payload construction to an embedded exact scheme.
type SplitSvmScheme struct {
	exact *exactclient.ExactSvmScheme
}

// NewSplitSvmScheme creates a new SplitSvmScheme for the given signer. A
// zero-value config uses the network's default RPC URL.
func NewSplitSvmScheme(signer svm.ClientSvmSigner, config svm.ClientConfig) *SplitSvmScheme {
	return &SplitSvmScheme{exact: exactclient.NewExactSvmScheme(signer, config)}
}

func (c *SplitSvmScheme) Scheme() string {
	return x402.SchemeSplit
}

// CreatePaymentPayload delegates to the exact scheme unchanged.
func (c *SplitSvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirementsView,
) (map[string]interface{}, error) {
	return c.exact.CreatePaymentPayload(ctx, requirements)
}
