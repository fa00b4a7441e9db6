// Package cmdtypes provides shared types for the cmd package and its sub-packages.
// It is separate from internal/cmd to avoid import cycles between internal/cmd
// and its sub-packages (internal/cmd/config).
package cmdtypes

import (
	oerrors "github.com/opmodel/capwire/internal/errors"

	"github.com/opmodel/capwire/internal/config"
)

// GlobalConfig holds CLI-wide configuration resolved during PersistentPreRunE.
// It is populated once at startup and passed explicitly into every sub-command
// constructor.
type GlobalConfig struct {
	// Config is the effective configuration: file values with flags, env and
	// defaults applied.
	Config   *config.Config
	Resolved *config.Resolved

	// ConfigPath is the resolved --config path.
	ConfigPath string
	Verbose    bool

	// LoadErr records a config file that failed to load or validate. Commands
	// that need the configuration report it; config init and vet do not.
	LoadErr error
}

// Effective returns the effective configuration, or the error that kept it
// from loading.
func (g *GlobalConfig) Effective() (*config.Config, error) {
	if g.LoadErr != nil {
		return nil, g.LoadErr
	}
	if g.Config == nil {
		return config.DefaultConfig(), nil
	}
	return g.Config, nil
}

// Exit codes, aliased from internal/errors.
const (
	ExitSuccess         = oerrors.ExitSuccess
	ExitGeneralError    = oerrors.ExitGeneralError
	ExitValidationError = oerrors.ExitValidationError
	ExitIOError         = oerrors.ExitIOError
	ExitNotFound        = oerrors.ExitNotFound
)

// ExitError is a type alias to internal/errors.ExitError.
type ExitError = oerrors.ExitError

// NewExitError wraps err with an exit code.
func NewExitError(err error, code int) *ExitError {
	return oerrors.NewExitError(err, code)
}
