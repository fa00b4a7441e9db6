package pipeline

import (
	"fmt"

	oerrors "github.com/opmodel/capwire/internal/errors"
)

// OptionsError reports build options that cannot run.
type OptionsError struct {
	Field  string
	Reason string
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid build options: %s: %s", e.Field, e.Reason)
}

func (e *OptionsError) Unwrap() error { return oerrors.ErrConfiguration }
