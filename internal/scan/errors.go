package scan

import (
	"fmt"
	"go/token"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// WiringError reports a wired variable that cannot be rewritten.
type WiringError struct {
	// Var is the binary name of the variable.
	Var      string
	Position token.Position
	Reason   string
}

func (e *WiringError) Error() string {
	return fmt.Sprintf("%s: wired var %s: %s", e.Position, e.Var, e.Reason)
}

func (e *WiringError) Unwrap() error { return oerrors.ErrValidation }
