package codegen

import (
	"fmt"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// CodegenError reports a bootstrap file that cannot be generated.
type CodegenError struct {
	// Capability is empty for errors about the host package.
	Capability string
	Reason     string
}

func (e *CodegenError) Error() string {
	if e.Capability == "" {
		return "generating bootstrap: " + e.Reason
	}
	return fmt.Sprintf("generating bootstrap: capability %s: %s", e.Capability, e.Reason)
}

func (e *CodegenError) Unwrap() error { return oerrors.ErrValidation }
