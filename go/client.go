package x402

import (
	"context"
	"fmt"
	"sync"
)

// x402Client manages payment mechanisms and creates payment payloads. This is
// used by applications that need to make payments (have wallets/signers).
type x402Client struct {
	mu sync.RWMutex

	schemes map[Network]map[string]SchemeNetworkClient

	requirementsSelector PaymentRequirementsSelector
	policies             []PaymentPolicy

	beforePaymentCreationHooks    []BeforePaymentCreationHook
	afterPaymentCreationHooks     []AfterPaymentCreationHook
	onPaymentCreationFailureHooks []OnPaymentCreationFailureHook
}

// ClientOption configures the client.
type ClientOption func(*x402Client)

// WithPaymentSelector sets a custom payment requirements selector.
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *x402Client) {
		c.requirementsSelector = selector
	}
}

// WithPolicy registers a payment policy at creation time.
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *x402Client) {
		c.policies = append(c.policies, policy)
	}
}

// NewClient creates a new x402 client.
func NewClient(opts ...ClientOption) *x402Client {
	c := &x402Client{
		schemes:              make(map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: DefaultPaymentSelector,
		policies:             []PaymentPolicy{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Register registers a payment mechanism for a network.
func (c *x402Client) Register(network Network, client SchemeNetworkClient) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[network] == nil {
		c.schemes[network] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[network][client.Scheme()] = client
	return c
}

// RegisterPolicy registers a policy to filter or transform payment requirements.
func (c *x402Client) RegisterPolicy(policy PaymentPolicy) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies = append(c.policies, policy)
	return c
}

// OnBeforePaymentCreation registers a hook to run before payment payload creation.
func (c *x402Client) OnBeforePaymentCreation(hook BeforePaymentCreationHook) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforePaymentCreationHooks = append(c.beforePaymentCreationHooks, hook)
	return c
}

// OnAfterPaymentCreation registers a hook to run after successful payment payload creation.
func (c *x402Client) OnAfterPaymentCreation(hook AfterPaymentCreationHook) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterPaymentCreationHooks = append(c.afterPaymentCreationHooks, hook)
	return c
}

// OnPaymentCreationFailure registers a hook to run when payment payload creation fails.
func (c *x402Client) OnPaymentCreationFailure(hook OnPaymentCreationFailureHook) *x402Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPaymentCreationFailureHooks = append(c.onPaymentCreationFailureHooks, hook)
	return c
}

// SelectPaymentRequirements chooses a requirement from the server's list of
// accepted options, restricted to schemes this client has registered,
// filtered through the registered policies, and resolved by the selector.
func (c *x402Client) SelectPaymentRequirements(requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var supported []PaymentRequirements
	for _, req := range requirements {
		network := Network(req.Network)
		schemes := findSchemesByNetwork(c.schemes, network)
		if schemes != nil {
			if _, ok := schemes[req.Scheme]; ok {
				supported = append(supported, req)
			}
		}
	}

	if len(supported) == 0 {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: "no supported payment schemes available",
		}
	}

	views := toViews(supported)

	filtered := views
	for _, policy := range c.policies {
		filtered = policy(filtered)
		if len(filtered) == 0 {
			return PaymentRequirements{}, &PaymentError{
				Code:    ErrCodeUnsupportedScheme,
				Message: "all payment requirements were filtered out by policies",
			}
		}
	}

	selected := c.requirementsSelector(filtered)
	return fromView[PaymentRequirements](selected), nil
}

// CreatePaymentPayload builds a signed PaymentPayload for the given
// requirements by delegating to the registered mechanism, then wraps it with
// the accepted requirements, resource metadata, and extensions.
func (c *x402Client) CreatePaymentPayload(
	ctx context.Context,
	requirements PaymentRequirements,
	resource *ResourceInfo,
	extensions map[string]interface{},
) (PaymentPayload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scheme := requirements.Scheme
	network := Network(requirements.Network)

	var view PaymentRequirementsView = requirements

	schemes := findSchemesByNetwork(c.schemes, network)
	if schemes == nil {
		err := &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no client registered for network %s", network),
		}
		return c.runCreationFailureHooks(ctx, view, err)
	}

	client := schemes[scheme]
	if client == nil {
		err := &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no client registered for scheme %s on network %s", scheme, network),
		}
		return c.runCreationFailureHooks(ctx, view, err)
	}

	for _, hook := range c.beforePaymentCreationHooks {
		result, err := hook(PaymentCreationContext{Ctx: ctx, SelectedRequirements: view})
		if err != nil {
			return c.runCreationFailureHooks(ctx, view, err)
		}
		if result != nil && result.Abort {
			err := &PaymentError{Code: ErrCodeInvalidRequirements, Message: result.Reason}
			return c.runCreationFailureHooks(ctx, view, err)
		}
	}

	rawPayload, err := client.CreatePaymentPayload(ctx, view)
	if err != nil {
		return c.runCreationFailureHooks(ctx, view, err)
	}

	payload := PaymentPayload{
		X402Version: ProtocolVersion,
		Payload:     rawPayload,
		Accepted:    requirements,
		Resource:    resource,
		Extensions:  extensions,
	}

	for _, hook := range c.afterPaymentCreationHooks {
		_ = hook(PaymentCreatedContext{
			PaymentCreationContext: PaymentCreationContext{Ctx: ctx, SelectedRequirements: view},
			Payload:                payload,
		})
	}

	return payload, nil
}

func (c *x402Client) runCreationFailureHooks(ctx context.Context, view PaymentRequirementsView, creationErr error) (PaymentPayload, error) {
	failCtx := PaymentCreationFailureContext{
		PaymentCreationContext: PaymentCreationContext{Ctx: ctx, SelectedRequirements: view},
		Error:                  creationErr,
	}
	for _, hook := range c.onPaymentCreationFailureHooks {
		result, err := hook(failCtx)
		if err != nil {
			return PaymentPayload{}, err
		}
		if result != nil && result.Recovered {
			if payload, ok := result.Payload.(PaymentPayload); ok {
				return payload, nil
			}
		}
	}
	return PaymentPayload{}, creationErr
}

// GetRegisteredSchemes returns every registered (network, scheme) pair, for debugging.
func (c *x402Client) GetRegisteredSchemes() []struct {
	Network Network
	Scheme  string
} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []struct {
		Network Network
		Scheme  string
	}
	for network, schemeMap := range c.schemes {
		for scheme := range schemeMap {
			result = append(result, struct {
				Network Network
				Scheme  string
			}{Network: network, Scheme: scheme})
		}
	}
	return result
}
