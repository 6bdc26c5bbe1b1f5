// Package client implements the EVM split-scheme client half. From the
// client's perspective a split payment is identical to an exact payment —
// it signs a single EIP-3009 authorization to the escrow address in
// requirements.payTo. The facilitator handles distribution after
// settlement, transparently to the signer.
package client

import (
	"context"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/evm"
	exactclient "github.com/x402-go/x402/go/mechanisms/evm/exact/client"
)

// SplitEvmScheme implements x402.SchemeNetworkClient for EVM split
// payments by delegating payload construction to an embedded exact scheme.
type SplitEvmScheme struct {
	exact *exactclient.ExactEvmScheme
}

// NewSplitEvmScheme creates a new SplitEvmScheme.
func NewSplitEvmScheme(signer evm.ClientEvmSigner) *SplitEvmScheme {
	return &SplitEvmScheme{exact: exactclient.NewExactEvmScheme(signer)}
}

func (c *SplitEvmScheme) Scheme() string {
	return x402.SchemeSplit
}

// CreatePaymentPayload delegates to the exact scheme unchanged.
func (c *SplitEvmScheme) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirementsView,
) (map[string]interface{}, error) {
	return c.exact.CreatePaymentPayload(ctx, requirements)
}
