package faucet

import (
	"context"
	"time"
)

// ============================================================================
// Grant Hook Context Types
// ============================================================================

// GrantContext contains information passed to grant hooks
type GrantContext struct {
	Ctx       context.Context
	Request   GrantRequest
	Timestamp time.Time
}

// GrantResultContext contains a completed grant and its context
type GrantResultContext struct {
	GrantContext
	Result   GrantResult
	Duration time.Duration
}

// GrantFailureContext contains a failed grant and its context
type GrantFailureContext struct {
	GrantContext
	Error    error
	Duration time.Duration
}

// ============================================================================
// Grant Hook Result Types
// ============================================================================

// BeforeHookResult represents the result of a "before" hook
// If Abort is true, the grant is refused with the given Reason
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Grant Hook Function Types
// ============================================================================

// BeforeGrantHook is called after validation and before any state is touched
// If it returns a result with Abort=true, nothing is dispatched
type BeforeGrantHook func(GrantContext) (*BeforeHookResult, error)

// AfterGrantHook is called after every attempt that did not fail, including
// attempts rejected by the replay guard
// Any error returned is logged but does not affect the result
type AfterGrantHook func(GrantResultContext) error

// OnGrantFailureHook is called when an attempt fails
// Any error returned is logged but does not affect the result
type OnGrantFailureHook func(GrantFailureContext) error

// ============================================================================
// Grant Hook Registration Options
// ============================================================================

// WithBeforeGrantHook registers a hook to execute before a grant
func WithBeforeGrantHook(hook BeforeGrantHook) ServiceOption {
	return func(s *Service) {
		s.beforeGrantHooks = append(s.beforeGrantHooks, hook)
	}
}

// WithAfterGrantHook registers a hook to execute after a grant attempt completes
func WithAfterGrantHook(hook AfterGrantHook) ServiceOption {
	return func(s *Service) {
		s.afterGrantHooks = append(s.afterGrantHooks, hook)
	}
}

// WithOnGrantFailureHook registers a hook to execute when a grant attempt fails
func WithOnGrantFailureHook(hook OnGrantFailureHook) ServiceOption {
	return func(s *Service) {
		s.onGrantFailureHooks = append(s.onGrantFailureHooks, hook)
	}
}
