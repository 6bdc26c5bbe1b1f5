package x402

import (
	"context"
)

// ============================================================================
// Facilitator Hook Context Types
// ============================================================================

// FacilitatorVerifyContext contains information passed to facilitator verify hooks.
type FacilitatorVerifyContext struct {
	Ctx               context.Context
	Payload           PaymentPayloadView
	Requirements      PaymentRequirementsView
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// FacilitatorVerifyResultContext contains facilitator verify result and context.
type FacilitatorVerifyResultContext struct {
	FacilitatorVerifyContext
	Result *VerifyResponse
}

// FacilitatorVerifyFailureContext contains facilitator verify failure and context.
type FacilitatorVerifyFailureContext struct {
	FacilitatorVerifyContext
	Error error
}

// FacilitatorSettleContext contains information passed to facilitator settle hooks.
type FacilitatorSettleContext struct {
	Ctx               context.Context
	Payload           PaymentPayloadView
	Requirements      PaymentRequirementsView
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// FacilitatorSettleResultContext contains facilitator settle result and context.
type FacilitatorSettleResultContext struct {
	FacilitatorSettleContext
	Result *SettleResponse
}

// FacilitatorSettleFailureContext contains facilitator settle failure and context.
type FacilitatorSettleFailureContext struct {
	FacilitatorSettleContext
	Error error
}

// ============================================================================
// Facilitator Hook Result Types
// ============================================================================

// FacilitatorBeforeHookResult represents the result of a facilitator "before" hook.
type FacilitatorBeforeHookResult struct {
	Abort  bool
	Reason string
}

// FacilitatorVerifyFailureHookResult represents the result of a facilitator verify failure hook.
type FacilitatorVerifyFailureHookResult struct {
	Recovered bool
	Result    *VerifyResponse
}

// FacilitatorSettleFailureHookResult represents the result of a facilitator settle failure hook.
type FacilitatorSettleFailureHookResult struct {
	Recovered bool
	Result    *SettleResponse
}

// ============================================================================
// Facilitator Hook Function Types
// ============================================================================

// FacilitatorBeforeVerifyHook runs before facilitator payment verification.
type FacilitatorBeforeVerifyHook func(FacilitatorVerifyContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterVerifyHook runs after successful facilitator payment verification.
type FacilitatorAfterVerifyHook func(FacilitatorVerifyResultContext) error

// FacilitatorOnVerifyFailureHook runs when facilitator payment verification fails.
type FacilitatorOnVerifyFailureHook func(FacilitatorVerifyFailureContext) (*FacilitatorVerifyFailureHookResult, error)

// FacilitatorBeforeSettleHook runs before facilitator payment settlement.
type FacilitatorBeforeSettleHook func(FacilitatorSettleContext) (*FacilitatorBeforeHookResult, error)

// FacilitatorAfterSettleHook runs after successful facilitator payment settlement.
type FacilitatorAfterSettleHook func(FacilitatorSettleResultContext) error

// FacilitatorOnSettleFailureHook runs when facilitator payment settlement fails.
type FacilitatorOnSettleFailureHook func(FacilitatorSettleFailureContext) (*FacilitatorSettleFailureHookResult, error)

// ============================================================================
// Facilitator Hook Registration Options
// ============================================================================

// WithFacilitatorBeforeVerifyHook registers a hook to run before facilitator verification.
func WithFacilitatorBeforeVerifyHook(hook FacilitatorBeforeVerifyHook) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.beforeVerifyHooks = append(f.beforeVerifyHooks, hook)
	}
}

// WithFacilitatorAfterVerifyHook registers a hook to run after successful facilitator verification.
func WithFacilitatorAfterVerifyHook(hook FacilitatorAfterVerifyHook) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.afterVerifyHooks = append(f.afterVerifyHooks, hook)
	}
}

// WithFacilitatorOnVerifyFailureHook registers a hook to run when facilitator verification fails.
func WithFacilitatorOnVerifyFailureHook(hook FacilitatorOnVerifyFailureHook) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.onVerifyFailureHooks = append(f.onVerifyFailureHooks, hook)
	}
}

// WithFacilitatorBeforeSettleHook registers a hook to run before facilitator settlement.
func WithFacilitatorBeforeSettleHook(hook FacilitatorBeforeSettleHook) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.beforeSettleHooks = append(f.beforeSettleHooks, hook)
	}
}

// WithFacilitatorAfterSettleHook registers a hook to run after successful facilitator settlement.
func WithFacilitatorAfterSettleHook(hook FacilitatorAfterSettleHook) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.afterSettleHooks = append(f.afterSettleHooks, hook)
	}
}

// WithFacilitatorOnSettleFailureHook registers a hook to run when facilitator settlement fails.
func WithFacilitatorOnSettleFailureHook(hook FacilitatorOnSettleFailureHook) FacilitatorOption {
	return func(f *x402Facilitator) {
		f.onSettleFailureHooks = append(f.onSettleFailureHooks, hook)
	}
}
