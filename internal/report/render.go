package report

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/opmodel/capwire/internal/output"
)

// Write renders the lock in format.
func Write(w io.Writer, l *Lock, format output.OutputFormat) error {
	switch format {
	case output.FormatYAML:
		data, err := yaml.Marshal(l)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case output.FormatJSON:
		data, err := json.MarshalIndent(l, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case output.FormatTable:
		_, err := io.WriteString(w, Table(l))
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// Table renders the bindings and wired variables of l as two tables.
func Table(l *Lock) string {
	bindings := output.NewTable("CAPABILITY", "PROVIDER", "MODE", "UNIT")
	for _, b := range l.Bindings {
		bindings.Row(b.Capability, b.Provider, b.Mode(), b.Unit)
	}
	wires := output.NewTable("VAR", "CAPABILITY", "MODE")
	for _, wv := range l.Wires {
		mode := wv.Mode
		if !wv.Explicit {
			mode += " (default)"
		}
		wires.Row(wv.Var, wv.Capability, mode)
	}

	s := fmt.Sprintf("%s %s\n", output.StyleSummary.Render("Registry host:"), output.StyleNoun.Render(l.Host))
	if bindings.Len() == 0 {
		s += "No bindings.\n"
	} else {
		s += bindings.String() + "\n"
	}
	if wires.Len() == 0 {
		s += "No wired variables.\n"
	} else {
		s += wires.String() + "\n"
	}
	return s
}
