package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Never use inline lipgloss.Color literals elsewhere.
var (
	// ColorCyan is used for identifiable nouns: capabilities, providers, units.
	ColorCyan = lipgloss.Color("14")

	// ColorGreen is used for the "rewritten" and "generated" unit statuses.
	ColorGreen = lipgloss.Color("82")

	// ColorYellow is used for removed descriptors.
	ColorYellow = lipgloss.Color("220")

	// ColorBoldRed is used for the "failed" unit status.
	ColorBoldRed = lipgloss.Color("204")

	// ColorGreenCheck is used for the completion checkmark.
	ColorGreenCheck = lipgloss.Color("10")

	// ColorDimGray is used for borders and other structural chrome.
	ColorDimGray = lipgloss.Color("240")

	// ColorBlue is used for table headers.
	ColorBlue = lipgloss.Color("12")
)

// Semantic styles.
var (
	// StyleNoun styles identifiable nouns (capabilities, providers, units).
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleAction styles action verbs.
	StyleAction = lipgloss.NewStyle().Bold(true)

	// StyleDim styles structural chrome (scope prefixes, separators).
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleSummary styles completion and summary lines.
	StyleSummary = lipgloss.NewStyle().Bold(true)
)

// Unit status values reported by the repackager.
const (
	StatusCopied    = "copied"
	StatusRewritten = "rewritten"
	StatusGenerated = "generated"
	StatusFailed    = "failed"
)

// Descriptor status values reported by describe.
const (
	StatusWritten   = "written"
	StatusUnchanged = "unchanged"
	StatusRemoved   = "removed"
)

// StatusStyle returns the style for a unit status. Unknown statuses are
// unstyled.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case StatusRewritten, StatusGenerated, StatusWritten:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	case StatusCopied, StatusUnchanged:
		return lipgloss.NewStyle().Faint(true)
	case StatusRemoved:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	case StatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorBoldRed)
	default:
		return lipgloss.NewStyle()
	}
}

// minUnitColumnWidth keeps status words aligned across unit lines.
const minUnitColumnWidth = 48

// FormatUnitLine renders a unit name with a right-aligned status suffix.
//
// Format: u:<name>  <status> [detail]
func FormatUnitLine(name, status, detail string) string {
	padding := minUnitColumnWidth - len(name)
	if padding < 2 {
		padding = 2
	}

	line := StyleDim.Render("u:") + StyleNoun.Render(name) +
		strings.Repeat(" ", padding) + StatusStyle(status).Render(status)
	if detail != "" {
		line += " " + StyleDim.Render(detail)
	}
	return line
}

// FormatBinding renders "capability → provider".
func FormatBinding(capability, provider string) string {
	return fmt.Sprintf("%s %s %s", StyleNoun.Render(capability), StyleDim.Render("→"), provider)
}

// FormatCheckmark renders a green checkmark with a message for stdout output.
func FormatCheckmark(msg string) string {
	check := lipgloss.NewStyle().Foreground(ColorGreenCheck).Render("✔")
	return check + " " + msg
}
