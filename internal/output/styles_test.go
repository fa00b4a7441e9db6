package output

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		wantBold bool
		wantFG   lipgloss.TerminalColor
		wantDim  bool
	}{
		{name: "rewritten returns green", status: StatusRewritten, wantFG: ColorGreen},
		{name: "generated returns green", status: StatusGenerated, wantFG: ColorGreen},
		{name: "copied returns faint", status: StatusCopied, wantDim: true, wantFG: lipgloss.NoColor{}},
		{name: "failed returns bold red", status: StatusFailed, wantBold: true, wantFG: ColorBoldRed},
		{name: "written returns green", status: StatusWritten, wantFG: ColorGreen},
		{name: "unchanged returns faint", status: StatusUnchanged, wantDim: true, wantFG: lipgloss.NoColor{}},
		{name: "removed returns yellow", status: StatusRemoved, wantFG: ColorYellow},
		{name: "unknown is unstyled", status: "other", wantFG: lipgloss.NoColor{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			style := StatusStyle(tt.status)
			assert.Equal(t, tt.wantBold, style.GetBold())
			assert.Equal(t, tt.wantDim, style.GetFaint())
			assert.Equal(t, tt.wantFG, style.GetForeground())
		})
	}
}

func TestFormatUnitLine(t *testing.T) {
	line := FormatUnitLine("app", StatusRewritten, "2 files")
	assert.Contains(t, line, "app")
	assert.Contains(t, line, StatusRewritten)
	assert.Contains(t, line, "2 files")

	long := FormatUnitLine(strings.Repeat("x", 60), StatusCopied, "")
	assert.Contains(t, long, strings.Repeat("x", 60)+"  ")
}

func TestFormatCheckmark(t *testing.T) {
	assert.Contains(t, FormatCheckmark("build complete"), "✔")
	assert.Contains(t, FormatCheckmark("build complete"), "build complete")
}

func TestFormatBinding(t *testing.T) {
	out := FormatBinding("example.com/a/greeter.Greeter", "example.com/b/loud.LoudGreeter")
	assert.Contains(t, out, "Greeter")
	assert.Contains(t, out, "LoudGreeter")
}
