package x402

import (
	"context"
)

// ============================================================================
// Resource Server Hook Context Types
// ============================================================================

// VerifyContext contains information passed to verify hooks.
// PayloadBytes and RequirementsBytes are an escape hatch for extensions
// needing the full wire data rather than just the view.
type VerifyContext struct {
	Ctx               context.Context
	Payload           PaymentPayloadView
	Requirements      PaymentRequirementsView
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// VerifyResultContext contains verify operation result and context.
type VerifyResultContext struct {
	VerifyContext
	Result *VerifyResponse
}

// VerifyFailureContext contains verify operation failure and context.
type VerifyFailureContext struct {
	VerifyContext
	Error error
}

// SettleContext contains information passed to settle hooks.
type SettleContext struct {
	Ctx               context.Context
	Payload           PaymentPayloadView
	Requirements      PaymentRequirementsView
	PayloadBytes      []byte
	RequirementsBytes []byte
}

// SettleResultContext contains settle operation result and context.
type SettleResultContext struct {
	SettleContext
	Result *SettleResponse
}

// SettleFailureContext contains settle operation failure and context.
type SettleFailureContext struct {
	SettleContext
	Error error
}

// ============================================================================
// Resource Server Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook. If Abort is
// true, the operation is aborted with Reason.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// VerifyFailureHookResult represents the result of a verify failure hook.
type VerifyFailureHookResult struct {
	Recovered bool
	Result    *VerifyResponse
}

// SettleFailureHookResult represents the result of a settle failure hook.
type SettleFailureHookResult struct {
	Recovered bool
	Result    *SettleResponse
}

// ============================================================================
// Resource Server Hook Function Types
// ============================================================================

// BeforeVerifyHook runs before payment verification.
type BeforeVerifyHook func(VerifyContext) (*BeforeHookResult, error)

// AfterVerifyHook runs after successful payment verification.
type AfterVerifyHook func(VerifyResultContext) error

// OnVerifyFailureHook runs when payment verification fails.
type OnVerifyFailureHook func(VerifyFailureContext) (*VerifyFailureHookResult, error)

// BeforeSettleHook runs before payment settlement.
type BeforeSettleHook func(SettleContext) (*BeforeHookResult, error)

// AfterSettleHook runs after successful payment settlement.
type AfterSettleHook func(SettleResultContext) error

// OnSettleFailureHook runs when payment settlement fails.
type OnSettleFailureHook func(SettleFailureContext) (*SettleFailureHookResult, error)

// ============================================================================
// Resource Server Hook Registration Options
// ============================================================================

// WithBeforeVerifyHook registers a hook to run before payment verification.
func WithBeforeVerifyHook(hook BeforeVerifyHook) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.beforeVerifyHooks = append(s.beforeVerifyHooks, hook)
	}
}

// WithAfterVerifyHook registers a hook to run after successful payment verification.
func WithAfterVerifyHook(hook AfterVerifyHook) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.afterVerifyHooks = append(s.afterVerifyHooks, hook)
	}
}

// WithOnVerifyFailureHook registers a hook to run when payment verification fails.
func WithOnVerifyFailureHook(hook OnVerifyFailureHook) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.onVerifyFailureHooks = append(s.onVerifyFailureHooks, hook)
	}
}

// WithBeforeSettleHook registers a hook to run before payment settlement.
func WithBeforeSettleHook(hook BeforeSettleHook) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.beforeSettleHooks = append(s.beforeSettleHooks, hook)
	}
}

// WithAfterSettleHook registers a hook to run after successful payment settlement.
func WithAfterSettleHook(hook AfterSettleHook) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.afterSettleHooks = append(s.afterSettleHooks, hook)
	}
}

// WithOnSettleFailureHook registers a hook to run when payment settlement fails.
func WithOnSettleFailureHook(hook OnSettleFailureHook) ResourceServerOption {
	return func(s *x402ResourceServer) {
		s.onSettleFailureHooks = append(s.onSettleFailureHooks, hook)
	}
}
