package x402

import "context"

// SchemeNetworkClient is the client half of a (scheme, network) mechanism:
// it turns a selected PaymentRequirements into a signed PaymentPayload.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, requirements PaymentRequirementsView) (map[string]interface{}, error)
}

// SchemeNetworkServer is the resource-server half: it expands a ResourceConfig
// price into concrete PaymentRequirements, and may enrich requirements with
// scheme-specific extras (e.g. split recipients) before they go out on the wire.
type SchemeNetworkServer interface {
	Scheme() string
	ParsePrice(price Price, network Network) (AssetAmount, error)
	EnhancePaymentRequirements(ctx context.Context, requirements PaymentRequirements, supportedKind SupportedKind, extensions []string) (PaymentRequirements, error)
}

// SchemeNetworkFacilitator is the facilitator half: it verifies a payload
// against its requirements and, once valid, settles it on-chain.
type SchemeNetworkFacilitator interface {
	Scheme() string
	CaipFamily() string
	GetExtra(network Network) (map[string]interface{}, error)
	GetSigners() []string
	Verify(ctx context.Context, payload PaymentPayloadView, requirements PaymentRequirementsView) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayloadView, requirements PaymentRequirementsView) (*SettleResponse, error)
}

// FacilitatorClient is what a resource server uses to reach a facilitator,
// whether in-process or over HTTP. It works in raw bytes so the same
// interface serves both transports without forcing either side to share
// Go types.
type FacilitatorClient interface {
	Verify(ctx context.Context, payloadBytes, requirementsBytes []byte) (*VerifyResponse, error)
	Settle(ctx context.Context, payloadBytes, requirementsBytes []byte) (*SettleResponse, error)
	GetSupported(ctx context.Context) (*SupportedResponse, error)
}
