package rewrite

import (
	"fmt"
	"go/token"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// DanglingCapabilityError reports a wired variable whose type is not a known
// capability.
type DanglingCapabilityError struct {
	Var        string
	Capability string
	Position   token.Position
	Reason     string
}

func (e *DanglingCapabilityError) Error() string {
	return fmt.Sprintf("%s: wired var %s: capability %s %s", e.Position, e.Var, e.Capability, e.Reason)
}

func (e *DanglingCapabilityError) Unwrap() error { return oerrors.ErrConfiguration }
