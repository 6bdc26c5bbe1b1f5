package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/x402-go/x402/go/types"
)

// schemeData pairs a registered facilitator half with the networks it was
// registered for and the wildcard pattern derived from them.
type schemeData struct {
	facilitator SchemeNetworkFacilitator
	networks    map[Network]bool
	pattern     Network
}

// x402Facilitator manages payment verification and settlement across every
// registered (scheme, network) mechanism.
type x402Facilitator struct {
	mu sync.RWMutex

	schemes    []*schemeData
	extensions []string

	beforeVerifyHooks    []FacilitatorBeforeVerifyHook
	afterVerifyHooks     []FacilitatorAfterVerifyHook
	onVerifyFailureHooks []FacilitatorOnVerifyFailureHook
	beforeSettleHooks    []FacilitatorBeforeSettleHook
	afterSettleHooks     []FacilitatorAfterSettleHook
	onSettleFailureHooks []FacilitatorOnSettleFailureHook
}

// FacilitatorOption configures the facilitator.
type FacilitatorOption func(*x402Facilitator)

// NewFacilitator creates a new x402 facilitator.
func NewFacilitator(opts ...FacilitatorOption) *x402Facilitator {
	f := &x402Facilitator{
		schemes:    []*schemeData{},
		extensions: []string{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register registers a facilitator mechanism for a set of networks. Networks
// are stored and later reported via GetSupported.
func (f *x402Facilitator) Register(networks []Network, facilitator SchemeNetworkFacilitator) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	networkSet := make(map[Network]bool)
	for _, network := range networks {
		networkSet[network] = true
	}

	f.schemes = append(f.schemes, &schemeData{
		facilitator: facilitator,
		networks:    networkSet,
		pattern:     derivePattern(networks),
	})

	return f
}

// RegisterExtension registers a protocol extension name reported in GetSupported.
func (f *x402Facilitator) RegisterExtension(extension string) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ext := range f.extensions {
		if ext == extension {
			return f
		}
	}
	f.extensions = append(f.extensions, extension)
	return f
}

// ============================================================================
// Hook Registration Methods
// ============================================================================

func (f *x402Facilitator) OnBeforeVerify(hook FacilitatorBeforeVerifyHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	return f
}

func (f *x402Facilitator) OnAfterVerify(hook FacilitatorAfterVerifyHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	return f
}

func (f *x402Facilitator) OnVerifyFailure(hook FacilitatorOnVerifyFailureHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	return f
}

func (f *x402Facilitator) OnBeforeSettle(hook FacilitatorBeforeSettleHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	return f
}

func (f *x402Facilitator) OnAfterSettle(hook FacilitatorAfterSettleHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterSettleHooks = append(f.afterSettleHooks, hook)
	return f
}

func (f *x402Facilitator) OnSettleFailure(hook FacilitatorOnSettleFailureHook) *x402Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	return f
}

// ============================================================================
// Core Payment Methods (network boundary: bytes in, typed dispatch internally)
// ============================================================================

// Verify verifies a payment payload against its requirements, both supplied
// as raw wire bytes so this method serves both in-process and HTTP callers
// identically.
func (f *x402Facilitator) Verify(ctx context.Context, payloadBytes, requirementsBytes []byte) (*VerifyResponse, error) {
	var partial types.PartialPaymentPayload
	if err := json.Unmarshal(payloadBytes, &partial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if partial.X402Version != ProtocolVersion {
		return nil, NewVerifyError("protocol_version_mismatch", "", "", fmt.Errorf("%w: got %d, want %d", ErrProtocolMismatch, partial.X402Version, ProtocolVersion))
	}

	payload, err := types.ToPaymentPayload(payloadBytes)
	if err != nil {
		return nil, NewVerifyError("invalid_payload", "", "", fmt.Errorf("%w: %v", ErrPayloadMalformed, err))
	}
	requirements, err := types.ToPaymentRequirements(requirementsBytes)
	if err != nil {
		return nil, NewVerifyError("invalid_requirements", "", "", fmt.Errorf("%w: %v", ErrPayloadMalformed, err))
	}

	hookCtx := FacilitatorVerifyContext{
		Ctx:               ctx,
		Payload:           *payload,
		Requirements:      *requirements,
		PayloadBytes:      payloadBytes,
		RequirementsBytes: requirementsBytes,
	}
	for _, hook := range f.beforeVerifyHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewVerifyError(result.Reason, "", "", nil)
		}
	}

	verifyResult, verifyErr := f.verify(ctx, *payload, *requirements)

	if verifyErr != nil {
		failureCtx := FacilitatorVerifyFailureContext{FacilitatorVerifyContext: hookCtx, Error: verifyErr}
		for _, hook := range f.onVerifyFailureHooks {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		return nil, verifyErr
	}

	resultCtx := FacilitatorVerifyResultContext{FacilitatorVerifyContext: hookCtx, Result: verifyResult}
	for _, hook := range f.afterVerifyHooks {
		_ = hook(resultCtx)
	}

	return verifyResult, nil
}

// Settle settles an already-verified payment payload.
func (f *x402Facilitator) Settle(ctx context.Context, payloadBytes, requirementsBytes []byte) (*SettleResponse, error) {
	var partial types.PartialPaymentPayload
	if err := json.Unmarshal(payloadBytes, &partial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}
	if partial.X402Version != ProtocolVersion {
		return nil, NewSettleError("protocol_version_mismatch", "", "", "", fmt.Errorf("%w: got %d, want %d", ErrProtocolMismatch, partial.X402Version, ProtocolVersion))
	}

	payload, err := types.ToPaymentPayload(payloadBytes)
	if err != nil {
		return nil, NewSettleError("invalid_payload", "", "", "", fmt.Errorf("%w: %v", ErrPayloadMalformed, err))
	}
	requirements, err := types.ToPaymentRequirements(requirementsBytes)
	if err != nil {
		return nil, NewSettleError("invalid_requirements", "", "", "", fmt.Errorf("%w: %v", ErrPayloadMalformed, err))
	}

	hookCtx := FacilitatorSettleContext{
		Ctx:               ctx,
		Payload:           *payload,
		Requirements:      *requirements,
		PayloadBytes:      payloadBytes,
		RequirementsBytes: requirementsBytes,
	}
	for _, hook := range f.beforeSettleHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewSettleError(result.Reason, "", "", "", nil)
		}
	}

	settleResult, settleErr := f.settle(ctx, *payload, *requirements)

	if settleErr != nil {
		failureCtx := FacilitatorSettleFailureContext{FacilitatorSettleContext: hookCtx, Error: settleErr}
		for _, hook := range f.onSettleFailureHooks {
			result, _ := hook(failureCtx)
			if result != nil && result.Recovered {
				return result.Result, nil
			}
		}
		return nil, settleErr
	}

	resultCtx := FacilitatorSettleResultContext{FacilitatorSettleContext: hookCtx, Result: settleResult}
	for _, hook := range f.afterSettleHooks {
		_ = hook(resultCtx)
	}

	return settleResult, nil
}

func (f *x402Facilitator) verify(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*VerifyResponse, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	scheme := requirements.Scheme
	network := Network(requirements.Network)

	for _, data := range f.schemes {
		if data.facilitator.Scheme() != scheme {
			continue
		}
		if matchesSchemeData(data, network) {
			return data.facilitator.Verify(ctx, payload, requirements)
		}
	}

	return nil, NewVerifyError("no_facilitator_for_network", "", string(network), fmt.Errorf("no facilitator for scheme %s on network %s", scheme, network))
}

func (f *x402Facilitator) settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*SettleResponse, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	scheme := requirements.Scheme
	network := Network(requirements.Network)

	for _, data := range f.schemes {
		if data.facilitator.Scheme() != scheme {
			continue
		}
		if matchesSchemeData(data, network) {
			return data.facilitator.Settle(ctx, payload, requirements)
		}
	}

	return nil, NewSettleError("no_facilitator_for_network", "", string(network), "", fmt.Errorf("no facilitator for scheme %s on network %s", scheme, network))
}

// GetSupported reports every (scheme, network) combination registered with
// this facilitator, along with the signer addresses available per CAIP family.
func (f *x402Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := []SupportedKind{}
	signersByFamily := make(map[string]map[string]bool)

	for _, data := range f.schemes {
		facilitator := data.facilitator
		scheme := facilitator.Scheme()

		for network := range data.networks {
			extra, err := facilitator.GetExtra(network)
			kind := SupportedKind{
				X402Version: ProtocolVersion,
				Scheme:      scheme,
				Network:     string(network),
			}
			if err == nil && extra != nil {
				kind.Extra = extra
			}
			kinds = append(kinds, kind)

			family := facilitator.CaipFamily()
			if signersByFamily[family] == nil {
				signersByFamily[family] = make(map[string]bool)
			}
			for _, signer := range facilitator.GetSigners() {
				signersByFamily[family][signer] = true
			}
		}
	}

	signers := make(map[string][]string)
	for family, signerSet := range signersByFamily {
		signerList := make([]string, 0, len(signerSet))
		for signer := range signerSet {
			signerList = append(signerList, signer)
		}
		signers[family] = signerList
	}

	return SupportedResponse{
		Kinds:      kinds,
		Extensions: f.extensions,
		Signers:    signers,
	}
}

// derivePattern derives a wildcard CAIP-2 pattern from a set of networks that
// share a namespace, or falls back to the first network for exact matching.
func derivePattern(networks []Network) Network {
	if len(networks) == 0 {
		return ""
	}
	if len(networks) == 1 {
		return networks[0]
	}

	namespaces := make(map[string]bool)
	for _, network := range networks {
		parts := strings.SplitN(string(network), ":", 2)
		if len(parts) == 2 {
			namespaces[parts[0]] = true
		}
	}

	if len(namespaces) == 1 {
		for namespace := range namespaces {
			return Network(namespace + ":*")
		}
	}

	return networks[0]
}

// matchesSchemeData reports whether network is covered by data's registered
// networks or derived wildcard pattern.
func matchesSchemeData(data *schemeData, network Network) bool {
	if data.networks[network] {
		return true
	}
	return network.Match(data.pattern) || data.pattern.Match(network)
}
