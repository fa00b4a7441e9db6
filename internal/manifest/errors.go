package manifest

import (
	"fmt"
	"strings"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// InvalidDescriptorError reports a register descriptor that does not decode
// or is missing required metadata.
type InvalidDescriptorError struct {
	// Entry is the unit entry (or file) holding the descriptor.
	Entry string

	// Problems lists every schema violation found.
	Problems []string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid register descriptor %s: %s", e.Entry, strings.Join(e.Problems, "; "))
}

func (e *InvalidDescriptorError) Unwrap() error { return oerrors.ErrValidation }

// PropertiesSyntaxError reports a malformed line in the module-register
// artifact.
type PropertiesSyntaxError struct {
	Path string
	Line int
	Text string
}

func (e *PropertiesSyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: expected key=value, got %q", e.Path, e.Line, e.Text)
}

func (e *PropertiesSyntaxError) Unwrap() error { return oerrors.ErrValidation }
