package x402

import (
	"fmt"
	"strings"

	"github.com/x402-go/x402/go/types"
)

// Network is a blockchain network identifier in CAIP-2 format:
// "namespace:reference", e.g. "eip155:1", "solana:<genesis>", "stellar:pubnet".
type Network string

// Parse splits the network into its namespace and reference components.
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.SplitN(string(n), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match reports whether n matches pattern, where either side may carry a
// trailing ":*" wildcard over the namespace.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}
	nStr, patternStr := string(n), string(pattern)
	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}
	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}
	return false
}

// Price is a human-readable price in whatever shape a ServerHalf understands:
// a dollar string ("$0.001"), a float64, or an already-atomic AssetAmount.
type Price interface{}

// AssetAmount is an amount of a specific asset in atomic units.
type AssetAmount struct {
	Asset  string                 `json:"asset"`
	Amount string                 `json:"amount"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// ResourceConfig describes the payment a resource server demands for one
// protected resource, before it has been expanded into full
// PaymentRequirements by a ServerHalf.
type ResourceConfig struct {
	Scheme            string  `json:"scheme"`
	PayTo             string  `json:"payTo"`
	Price             Price   `json:"price"`
	Network           Network `json:"network"`
	MaxTimeoutSeconds int     `json:"maxTimeoutSeconds,omitempty"`
}

// VerifyResponse is the result of verifying a PaymentPayload against
// PaymentRequirements.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the result of broadcasting a verified payment.
type SettleResponse struct {
	Success     bool                   `json:"success"`
	ErrorReason string                 `json:"errorReason,omitempty"`
	Payer       string                 `json:"payer,omitempty"`
	Transaction string                 `json:"transaction"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// Re-exported wire types, kept at package scope for convenience so callers
// do not need to import the types subpackage directly for the common path.
type (
	PaymentRequirements = types.PaymentRequirements
	PaymentPayload      = types.PaymentPayload
	PaymentRequired     = types.PaymentRequired
	ResourceInfo         = types.ResourceInfo
	SupportedKind        = types.SupportedKind
	SupportedResponse    = types.SupportedResponse
)

// Client and ResourceServer are the exported names callers outside this
// package use to hold a reference returned by NewClient/NewResourceServer.
type (
	Client         = x402Client
	ResourceServer = x402ResourceServer
	Facilitator    = x402Facilitator
)

// ============================================================================
// View interfaces for selectors, policies, and hooks
// ============================================================================

// PaymentRequirementsView is a read-only view over PaymentRequirements used
// by selectors, policies, and hooks so those stay decoupled from the
// concrete wire struct.
type PaymentRequirementsView interface {
	GetScheme() string
	GetNetwork() string
	GetAsset() string
	GetAmount() string
	GetPayTo() string
	GetMaxTimeoutSeconds() int
	GetExtra() map[string]interface{}
}

// PaymentPayloadView is a read-only view over PaymentPayload.
type PaymentPayloadView interface {
	GetVersion() int
	GetScheme() string
	GetNetwork() string
	GetPayload() map[string]interface{}
}

// PaymentRequirementsSelector chooses one of several accepted payment options.
type PaymentRequirementsSelector func(requirements []PaymentRequirementsView) PaymentRequirementsView

// PaymentPolicy filters or reorders the accepted payment options before
// selection, e.g. to prefer a cheaper network or exclude an unsupported one.
type PaymentPolicy func(requirements []PaymentRequirementsView) []PaymentRequirementsView

// DefaultPaymentSelector picks the first available option.
func DefaultPaymentSelector(requirements []PaymentRequirementsView) PaymentRequirementsView {
	if len(requirements) == 0 {
		panic("no payment requirements available")
	}
	return requirements[0]
}

// ============================================================================
// Network helpers
// ============================================================================

// ParseNetwork wraps a string as a Network.
func ParseNetwork(s string) Network { return Network(s) }

// IsWildcardNetwork reports whether network ends in a ":*" wildcard.
func IsWildcardNetwork(network Network) bool {
	return strings.HasSuffix(string(network), ":*")
}

// MatchesNetwork reports whether network satisfies pattern.
func MatchesNetwork(pattern Network, network Network) bool {
	if pattern == network {
		return true
	}
	if IsWildcardNetwork(pattern) {
		prefix := strings.TrimSuffix(string(pattern), "*")
		return strings.HasPrefix(string(network), prefix)
	}
	return false
}

func toViews[T PaymentRequirementsView](reqs []T) []PaymentRequirementsView {
	views := make([]PaymentRequirementsView, len(reqs))
	for i, req := range reqs {
		views[i] = req
	}
	return views
}

func fromView[T PaymentRequirementsView](view PaymentRequirementsView) T {
	return view.(T)
}
