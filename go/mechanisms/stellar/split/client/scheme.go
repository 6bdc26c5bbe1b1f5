// Package client implements the Stellar split-scheme client half. The
// client signs the same fee-sponsored transfer(from,to,amount) invocation
// as the exact scheme, paying the whole amount to requirements.PayTo (the
// escrow address), and is otherwise unaware of the split. The facilitator
// records the per-recipient shares as internal accounting only; no further
// on-chain transfers are made.
package client

import (
	"context"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
	exactclient "github.com/x402-go/x402/go/mechanisms/stellar/exact/client"
)

// SplitStellarScheme implements x402.SchemeNetworkClient for Stellar split
// payments by delegating payload construction to an embedded exact scheme.
type SplitStellarScheme struct {
	exact *exactclient.ExactStellarScheme
}

// NewSplitStellarScheme creates a new SplitStellarScheme.
func NewSplitStellarScheme(signer stellar.ClientStellarSigner, rpc stellar.RPCClient) *SplitStellarScheme {
	return &SplitStellarScheme{exact: exactclient.NewExactStellarScheme(signer, rpc)}
}

func (c *SplitStellarScheme) Scheme() string {
	return x402.SchemeSplit
}

// CreatePaymentPayload delegates to the exact scheme unchanged.
func (c *SplitStellarScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirementsView,
) (map[string]interface{}, error) {
	return c.exact.CreatePaymentPayload(ctx, requirements)
}
