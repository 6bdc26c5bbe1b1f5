package facilitator

import (
	"context"
	"testing"

	x402 "github.com/x402-go/x402/go"
	"github.com/x402-go/x402/go/mechanisms/stellar"
	"github.com/x402-go/x402/go/types"
)

type stubSigner struct{ address string }

func (s stubSigner) Address() string { return s.address }
func (s stubSigner) SignTransaction(ctx context.Context, txXDR string, networkPassphrase string) (string, error) {
	return txXDR, nil
}

type stubRPC struct{}

func (stubRPC) GetLatestLedger(ctx context.Context) (uint32, error) { return 1000, nil }
func (stubRPC) GetAccountSequence(ctx context.Context, address string) (int64, error) {
	return 1, nil
}
func (stubRPC) SimulateTransaction(ctx context.Context, txXDR string) (*stellar.SimulateResult, error) {
	return &stellar.SimulateResult{MinResourceFee: 100}, nil
}
func (stubRPC) SendTransaction(ctx context.Context, txXDR string) (string, error) {
	return "deadbeef", nil
}
func (stubRPC) GetTransaction(ctx context.Context, hash string) (*stellar.TransactionStatus, error) {
	return &stellar.TransactionStatus{Status: "SUCCESS"}, nil
}

func newTestScheme() *ExactStellarScheme {
	signer := stubSigner{address: "GFACILITATORFACILITATORFACILITATORFACILITATORFACILIT0"}
	return NewExactStellarScheme(signer, stubRPC{})
}

func TestExactStellarSchemeVerifyRejectsSchemeMismatch(t *testing.T) {
	scheme := newTestScheme()
	payload := types.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     map[string]interface{}{"transaction": "irrelevant"},
		Accepted:    types.PaymentRequirements{Scheme: "exact", Network: stellar.StellarTestnetCAIP2},
	}
	requirements := types.PaymentRequirements{
		Scheme:  "split",
		Network: stellar.StellarTestnetCAIP2,
	}

	_, err := scheme.Verify(context.Background(), payload, requirements)
	if err == nil {
		t.Fatal("expected Verify to reject a scheme mismatch")
	}
	verifyErr, ok := err.(*x402.VerifyError)
	if !ok {
		t.Fatalf("expected *x402.VerifyError, got %T: %v", err, err)
	}
	if verifyErr.Reason != "unsupported_scheme" {
		t.Fatalf("expected reason unsupported_scheme, got %q", verifyErr.Reason)
	}
}

func TestExactStellarSchemeVerifyRejectsUnknownNetwork(t *testing.T) {
	scheme := newTestScheme()
	payload := types.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     map[string]interface{}{"transaction": "irrelevant"},
		Accepted:    types.PaymentRequirements{Scheme: stellar.SchemeExact, Network: "eip155:1"},
	}
	requirements := types.PaymentRequirements{
		Scheme:  stellar.SchemeExact,
		Network: "eip155:1",
	}

	_, err := scheme.Verify(context.Background(), payload, requirements)
	if err == nil {
		t.Fatal("expected Verify to reject a non-Stellar network")
	}
	verifyErr, ok := err.(*x402.VerifyError)
	if !ok {
		t.Fatalf("expected *x402.VerifyError, got %T: %v", err, err)
	}
	if verifyErr.Reason != "invalid_network" {
		t.Fatalf("expected reason invalid_network, got %q", verifyErr.Reason)
	}
}

func TestExactStellarSchemeVerifyRejectsMalformedTransaction(t *testing.T) {
	scheme := newTestScheme()
	payload := types.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     map[string]interface{}{"transaction": "not-valid-base64-xdr!!!"},
		Accepted:    types.PaymentRequirements{Scheme: stellar.SchemeExact, Network: stellar.StellarTestnetCAIP2},
	}
	requirements := types.PaymentRequirements{
		Scheme:  stellar.SchemeExact,
		Network: stellar.StellarTestnetCAIP2,
	}

	_, err := scheme.Verify(context.Background(), payload, requirements)
	if err == nil {
		t.Fatal("expected Verify to reject a malformed transaction envelope")
	}
	verifyErr, ok := err.(*x402.VerifyError)
	if !ok {
		t.Fatalf("expected *x402.VerifyError, got %T: %v", err, err)
	}
	if verifyErr.Reason != "invalid_stellar_payload_malformed" {
		t.Fatalf("expected reason invalid_stellar_payload_malformed, got %q", verifyErr.Reason)
	}
}

func TestExactStellarSchemeVerifyRejectsMissingTransactionField(t *testing.T) {
	scheme := newTestScheme()
	payload := types.PaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     map[string]interface{}{},
		Accepted:    types.PaymentRequirements{Scheme: stellar.SchemeExact, Network: stellar.StellarTestnetCAIP2},
	}
	requirements := types.PaymentRequirements{
		Scheme:  stellar.SchemeExact,
		Network: stellar.StellarTestnetCAIP2,
	}

	_, err := scheme.Verify(context.Background(), payload, requirements)
	if err == nil {
		t.Fatal("expected Verify to reject a payload with no transaction field")
	}
	verifyErr, ok := err.(*x402.VerifyError)
	if !ok {
		t.Fatalf("expected *x402.VerifyError, got %T: %v", err, err)
	}
	if verifyErr.Reason != "invalid_stellar_payload_malformed" {
		t.Fatalf("expected reason invalid_stellar_payload_malformed, got %q", verifyErr.Reason)
	}
}

func TestExactStellarSchemeGetSignersReturnsSignerAddress(t *testing.T) {
	scheme := newTestScheme()
	signers := scheme.GetSigners()
	if len(signers) != 1 || signers[0] != "GFACILITATORFACILITATORFACILITATORFACILITATORFACILIT0" {
		t.Fatalf("expected signer address to be reported, got %v", signers)
	}
}
