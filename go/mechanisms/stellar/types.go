// Package stellar holds the types, signer interfaces, and helpers shared by
// every Stellar (Soroban) scheme implementation.
package stellar

import "context"

// ExactStellarPayload is the wire payload for Stellar exact (and split,
// which reuses the same shape) payments: a single base64-encoded
// TransactionEnvelope XDR.
type ExactStellarPayload struct {
	Transaction string `json:"transaction"`
}

func (p *ExactStellarPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{"transaction": p.Transaction}
}

func PayloadFromMap(m map[string]interface{}) (*ExactStellarPayload, error) {
	txVal, ok := m["transaction"].(string)
	if !ok || txVal == "" {
		return nil, errMissingTransaction
	}
	return &ExactStellarPayload{Transaction: txVal}, nil
}

// ClientStellarSigner signs the payer's Soroban authorization entry inside a
// prepared transaction envelope. It is kept deliberately thin — envelope
// XDR in, envelope XDR with the signed entry out — since all RPC plumbing
// (loading the account, simulating, assembling resource footprints) lives
// in the scheme implementations themselves.
type ClientStellarSigner interface {
	Address() string
	SignAuthEntry(ctx context.Context, envXDR string, networkPassphrase string) (string, error)
}

// FacilitatorStellarSigner signs a full transaction envelope as the
// facilitator, which acts as the fee-sponsoring source account.
type FacilitatorStellarSigner interface {
	Address() string
	SignTransaction(ctx context.Context, txXDR string, networkPassphrase string) (string, error)
}

// RPCClient is the minimal Soroban RPC surface the exact and split schemes
// drive directly, mirroring the original's use of a raw SorobanServer
// instance rather than hiding RPC behind the signer.
type RPCClient interface {
	GetLatestLedger(ctx context.Context) (uint32, error)
	GetAccountSequence(ctx context.Context, address string) (int64, error)
	SimulateTransaction(ctx context.Context, txXDR string) (*SimulateResult, error)
	SendTransaction(ctx context.Context, txXDR string) (string, error)
	GetTransaction(ctx context.Context, hash string) (*TransactionStatus, error)
}

// SimulateResult carries back the fields the schemes need from a Soroban
// simulateTransaction RPC call: the resource fee floor and the
// transaction data/auth needed to prepare the final envelope.
type SimulateResult struct {
	Error              string
	MinResourceFee     int64
	TransactionDataXDR string
	AuthXDR            []string
	Results            []string
}

// TransactionStatus is the polled result of getTransaction.
type TransactionStatus struct {
	Status       string // "SUCCESS", "FAILED", "NOT_FOUND"
	ResultXDR    string
	LatestLedger uint32
}
