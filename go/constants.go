package x402

// ProtocolVersion is the x402 wire-protocol version this module implements.
// Every PaymentPayload.X402Version and PaymentRequired.X402Version must equal this.
const ProtocolVersion = 2

// Scheme identifiers.
const (
	SchemeExact = "exact"
	SchemeSplit = "split"
)

// Header names X-PAYMENT / X-PAYMENT-RESPONSE for the three-message protocol.
// The go/http binding does not use these constants: it reads PAYMENT-SIGNATURE
// and writes PAYMENT-REQUIRED and PAYMENT-RESPONSE.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

// MCP tool-call metadata keys for the non-HTTP transport binding.
const (
	MetaKeyPaymentRequiredPayment = "x402/payment-required-payment"
	MetaKeyPaymentResponse        = "x402/payment-response"
)

// Split scheme basis-point bounds. 10000 bps == 100%.
const (
	MinBps   = 1
	MaxBps   = 10000
	TotalBps = 10000
)
