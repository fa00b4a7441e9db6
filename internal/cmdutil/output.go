package cmdutil

import (
	"errors"
	"fmt"
	"io"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	oerrors "github.com/opmodel/capwire/internal/errors"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/pipeline"
)

// PrintError logs a command failure. Aggregated errors are listed one per
// line; a DetailError is printed in its multi-line form.
func PrintError(msg string, err error) {
	errs := []error{err}
	var agg utilerrors.Aggregate
	if errors.As(err, &agg) {
		errs = utilerrors.Flatten(agg).Errors()
	}

	if len(errs) == 1 {
		var detail *oerrors.DetailError
		if errors.As(errs[0], &detail) {
			output.Error(msg)
			output.Details(detail.Error())
			return
		}
		output.Error(msg, "error", errs[0])
		return
	}

	output.Error(fmt.Sprintf("%s: %d errors", msg, len(errs)))
	for _, e := range errs {
		var detail *oerrors.DetailError
		if errors.As(e, &detail) {
			output.Details(detail.Error())
			continue
		}
		output.Error(e.Error())
	}
}

// ExitWithError prints err and wraps it in an ExitError carrying the code
// ExitCodeFromError picks for it.
func ExitWithError(msg string, err error) error {
	PrintError(msg, err)
	return &oerrors.ExitError{
		Err:     err,
		Code:    oerrors.ExitCodeFromError(err),
		Printed: true,
	}
}

// PrintUnits writes one status line per unit.
func PrintUnits(w io.Writer, units []pipeline.UnitReport) {
	for _, u := range units {
		fmt.Fprintln(w, output.FormatUnitLine(u.Name, u.Status, unitDetail(u)))
	}
}

func unitDetail(u pipeline.UnitReport) string {
	var parts []string
	if u.Rewritten > 0 {
		noun := "files"
		if u.Rewritten == 1 {
			noun = "file"
		}
		parts = append(parts, fmt.Sprintf("%d %s rewritten", u.Rewritten, noun))
	}
	if u.Output != "" {
		parts = append(parts, "→ "+u.Output)
	}
	return strings.Join(parts, " ")
}
