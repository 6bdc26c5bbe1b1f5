// Package types holds the wire-level JSON shapes of the x402 protocol:
// PaymentRequirements, PaymentPayload, PaymentRequired, and the facilitator's
// SupportedResponse. These are plain data structs with explicit JSON tags;
// business logic (building, verifying, settling) lives one layer up in the
// mechanism packages and the x402 package's role cores.
package types

import "encoding/json"

// PaymentRequirements is the server's demand for payment on a single
// (scheme, network) option.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

func (r PaymentRequirements) GetScheme() string                { return r.Scheme }
func (r PaymentRequirements) GetNetwork() string                { return r.Network }
func (r PaymentRequirements) GetAsset() string                  { return r.Asset }
func (r PaymentRequirements) GetAmount() string                 { return r.Amount }
func (r PaymentRequirements) GetPayTo() string                  { return r.PayTo }
func (r PaymentRequirements) GetMaxTimeoutSeconds() int         { return r.MaxTimeoutSeconds }
func (r PaymentRequirements) GetExtra() map[string]interface{}  { return r.Extra }

// PaymentPayload is the client's signed authorization, wrapped with the
// PaymentRequirements option it was built against.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

func (p PaymentPayload) GetVersion() int                    { return p.X402Version }
func (p PaymentPayload) GetScheme() string                  { return p.Accepted.Scheme }
func (p PaymentPayload) GetNetwork() string                 { return p.Accepted.Network }
func (p PaymentPayload) GetPayload() map[string]interface{} { return p.Payload }

// PartialPaymentPayload is used to peek at the protocol version field before
// committing to unmarshaling the rest of the payload.
type PartialPaymentPayload struct {
	X402Version int `json:"x402Version"`
}

// ResourceInfo describes the resource being accessed.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the envelope returned when payment is missing or invalid.
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// SupportedKind describes one (scheme, network) combination a facilitator
// can verify and settle.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the facilitator's answer to GET /supported.
type SupportedResponse struct {
	Kinds      []SupportedKind     `json:"kinds"`
	Extensions []string            `json:"extensions"`
	Signers    map[string][]string `json:"signers"`
}

// ToPaymentPayload unmarshals bytes into a PaymentPayload.
func ToPaymentPayload(data []byte) (*PaymentPayload, error) {
	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ToPaymentRequirements unmarshals bytes into a PaymentRequirements.
func ToPaymentRequirements(data []byte) (*PaymentRequirements, error) {
	var requirements PaymentRequirements
	if err := json.Unmarshal(data, &requirements); err != nil {
		return nil, err
	}
	return &requirements, nil
}

// ToPaymentRequired unmarshals bytes into a PaymentRequired.
func ToPaymentRequired(data []byte) (*PaymentRequired, error) {
	var required PaymentRequired
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, err
	}
	return &required, nil
}
