package capreg

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these.
var (
	// ErrNotBound is returned when no binding exists for a capability.
	ErrNotBound = errors.New("capability not bound")

	// ErrDuplicateBinding is returned when a capability is registered twice.
	ErrDuplicateBinding = errors.New("duplicate capability binding")

	// ErrSealed is returned when Register is called after bootstrap finished.
	ErrSealed = errors.New("registry binder is sealed")

	// ErrBootstrap is returned by every call once bootstrap has failed.
	ErrBootstrap = errors.New("registry bootstrap failed")

	// ErrConstruction is returned when a provider factory fails.
	ErrConstruction = errors.New("provider construction failed")

	// ErrCycle is returned when a provider factory resolves, directly or
	// transitively, the capability it is constructing.
	ErrCycle = errors.New("provider construction cycle")

	// ErrNoProxy is returned when a lazy proxy is requested for a binding that
	// was generated without one.
	ErrNoProxy = errors.New("capability has no lazy proxy")
)

// NotBoundError reports a capability that the bootstrap routine never
// registered.
type NotBoundError struct {
	Capability string
}

func (e *NotBoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotBound, e.Capability)
}

func (e *NotBoundError) Unwrap() error { return ErrNotBound }

// DuplicateBindingError reports a second provider for a bound capability.
type DuplicateBindingError struct {
	Capability string
	Provider   string
	Existing   string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("%s: %s is provided by both %s and %s",
		ErrDuplicateBinding, e.Capability, e.Existing, e.Provider)
}

func (e *DuplicateBindingError) Unwrap() error { return ErrDuplicateBinding }

// BootstrapError wraps the error returned by the bootstrap routine.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBootstrap, e.Err)
}

func (e *BootstrapError) Unwrap() []error { return []error{ErrBootstrap, e.Err} }

// ConstructionError wraps a provider factory failure. It is memoized: every
// later resolution of the same capability returns the same error.
type ConstructionError struct {
	Capability string
	Provider   string
	Err        error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing %s for %s: %v", e.Provider, e.Capability, e.Err)
}

func (e *ConstructionError) Unwrap() []error { return []error{ErrConstruction, e.Err} }

// NoProxyError reports a lazy proxy request for a capability bound without one.
type NoProxyError struct {
	Capability string
}

func (e *NoProxyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNoProxy, e.Capability)
}

func (e *NoProxyError) Unwrap() error { return ErrNoProxy }
