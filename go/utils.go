package x402

import "fmt"

// ValidatePaymentPayload checks the structural invariants a PaymentPayload
// must satisfy before any scheme-specific logic runs.
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version != ProtocolVersion {
		return fmt.Errorf("%w: got version %d, want %d", ErrProtocolMismatch, p.X402Version, ProtocolVersion)
	}
	if p.Accepted.Scheme == "" {
		return fmt.Errorf("%w: accepted.scheme is required", ErrPayloadMalformed)
	}
	if p.Accepted.Network == "" {
		return fmt.Errorf("%w: accepted.network is required", ErrPayloadMalformed)
	}
	if p.Payload == nil {
		return fmt.Errorf("%w: payload body is required", ErrPayloadMalformed)
	}
	return nil
}

// ValidatePaymentRequirements checks the structural invariants a
// PaymentRequirements must satisfy before it is offered to a client.
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("%w: scheme is required", ErrPayloadMalformed)
	}
	if r.Network == "" {
		return fmt.Errorf("%w: network is required", ErrPayloadMalformed)
	}
	if r.Asset == "" {
		return fmt.Errorf("%w: asset is required", ErrPayloadMalformed)
	}
	if r.Amount == "" {
		return fmt.Errorf("%w: amount is required", ErrPayloadMalformed)
	}
	if r.PayTo == "" {
		return fmt.Errorf("%w: payTo is required", ErrPayloadMalformed)
	}
	if r.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: maxTimeoutSeconds must be positive", ErrPayloadMalformed)
	}
	return nil
}

// findByNetworkAndScheme finds the mechanism half registered for a given
// (network, scheme) pair, falling back from an exact network match to
// wildcard CAIP-2 pattern matching in either direction.
func findByNetworkAndScheme[T any](networkMap map[Network]map[string]T, scheme string, network Network) T {
	var zero T

	if schemeMap, exists := networkMap[network]; exists {
		if impl, exists := schemeMap[scheme]; exists {
			return impl
		}
	}

	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			if impl, exists := schemeMap[scheme]; exists {
				return impl
			}
		}
	}

	return zero
}

// findSchemesByNetwork returns every scheme registered for a network,
// across exact and wildcard matches.
func findSchemesByNetwork[T any](networkMap map[Network]map[string]T, network Network) map[string]T {
	if schemeMap, exists := networkMap[network]; exists {
		return schemeMap
	}

	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			return schemeMap
		}
	}

	return nil
}
