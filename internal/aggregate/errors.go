package aggregate

import (
	"fmt"
	"strings"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// DuplicateBindingError reports a capability bound by two distinct providers.
type DuplicateBindingError struct {
	Capability string
	Provider   string
	Existing   string
}

func (e *DuplicateBindingError) Error() string {
	return fmt.Sprintf("duplicate binding for capability %s: provider %s conflicts with already bound provider %s",
		e.Capability, e.Provider, e.Existing)
}

func (e *DuplicateBindingError) Unwrap() error { return oerrors.ErrConfiguration }

// BindingError reports a binding or wired variable that does not check out
// against the universe.
type BindingError struct {
	Capability string
	Provider   string
	Reason     string
}

func (e *BindingError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("capability %s: %s", e.Capability, e.Reason)
	}
	return fmt.Sprintf("binding %s -> %s: %s", e.Capability, e.Provider, e.Reason)
}

func (e *BindingError) Unwrap() error { return oerrors.ErrValidation }

// ImportCycleError reports a provider package that reaches a package whose
// initialization depends on the registry.
type ImportCycleError struct {
	Provider string

	// Path lists import paths from the provider's package to the offending
	// package.
	Path []string
}

func (e *ImportCycleError) Error() string {
	return fmt.Sprintf("provider %s would create an import cycle through the registry: %s",
		e.Provider, strings.Join(e.Path, " -> "))
}

func (e *ImportCycleError) Unwrap() error { return oerrors.ErrValidation }
