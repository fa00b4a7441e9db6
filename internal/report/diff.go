package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gonvenience/ytbx"
	"github.com/homeport/dyff/pkg/dyff"
)

// Diff compares two lock files and renders the differences. It returns ""
// when the locks are equal.
func Diff(oldData, newData []byte, oldName, newName string, useColor bool) (string, error) {
	if len(bytes.TrimSpace(oldData)) == 0 && len(bytes.TrimSpace(newData)) == 0 {
		return "", nil
	}

	from, err := parseYAMLInput(oldName, oldData)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", oldName, err)
	}
	to, err := parseYAMLInput(newName, newData)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", newName, err)
	}

	rep, err := dyff.CompareInputFiles(from, to)
	if err != nil {
		return "", fmt.Errorf("comparing locks: %w", err)
	}
	if len(rep.Diffs) == 0 {
		return "", nil
	}
	return renderReport(rep, useColor)
}

func parseYAMLInput(name string, data []byte) (ytbx.InputFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ytbx.InputFile{Location: name}, nil
	}
	docs, err := ytbx.LoadYAMLDocuments(data)
	if err != nil {
		return ytbx.InputFile{}, err
	}
	return ytbx.InputFile{Location: name, Documents: docs}, nil
}

func renderReport(rep dyff.Report, useColor bool) (string, error) {
	var buf bytes.Buffer
	w := &dyff.HumanReport{
		Report:            rep,
		DoNotInspectCerts: true,
		NoTableStyle:      !useColor,
		OmitHeader:        true,
	}
	if err := w.WriteReport(&buf); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	lines := strings.Split(buf.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
