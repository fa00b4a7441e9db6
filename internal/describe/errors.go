package describe

import (
	"fmt"
	"go/token"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// DescriptorError reports a provider directive that cannot be turned into a
// register descriptor.
type DescriptorError struct {
	// Decl is the name of the marked declaration.
	Decl     string
	Position token.Position
	Reason   string
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("%s: provider %s: %s", e.Position, e.Decl, e.Reason)
}

func (e *DescriptorError) Unwrap() error { return oerrors.ErrValidation }

// ModuleRootError reports a describe target that is not the root directory of
// a Go module.
type ModuleRootError struct {
	Dir    string
	Reason string
}

func (e *ModuleRootError) Error() string {
	return fmt.Sprintf("describing %s: %s", e.Dir, e.Reason)
}

func (e *ModuleRootError) Unwrap() error { return oerrors.ErrNotFound }
