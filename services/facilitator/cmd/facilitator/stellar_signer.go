package main

import (
	"fmt"

	x402stellar "github.com/x402-go/x402/go/mechanisms/stellar"
	stellarsigner "github.com/x402-go/x402/go/signers/stellar"
)

// newFacilitatorStellarSigner builds the facilitator's Stellar signer from a
// secret seed, reusing the keypair-backed implementation the client and
// facilitator mechanisms share.
func newFacilitatorStellarSigner(secretSeed string) (x402stellar.FacilitatorStellarSigner, error) {
	if secretSeed == "" {
		return nil, fmt.Errorf("secret seed is required")
	}
	return stellarsigner.NewFacilitatorSignerFromSeed(secretSeed)
}

// newSorobanRPCClient builds a Soroban JSON-RPC client bound to a single
// network's endpoint.
func newSorobanRPCClient(endpoint string) *stellarsigner.SorobanRPCClient {
	return stellarsigner.NewSorobanRPCClient(endpoint)
}
