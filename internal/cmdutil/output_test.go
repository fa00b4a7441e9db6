package cmdutil

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	oerrors "github.com/opmodel/capwire/internal/errors"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/pipeline"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	output.SetupLogging(output.LogConfig{Timestamps: output.BoolPtr(false)})
	output.SetLogWriter(&buf)
	t.Cleanup(func() { output.SetupLogging(output.LogConfig{}) })
	return &buf
}

func TestPrintError_Aggregate(t *testing.T) {
	buf := captureLog(t)

	PrintError("build failed", utilerrors.NewAggregate([]error{
		errors.New("first problem"),
		errors.New("second problem"),
	}))

	out := buf.String()
	assert.Contains(t, out, "build failed: 2 errors")
	assert.Contains(t, out, "first problem")
	assert.Contains(t, out, "second problem")
}

func TestPrintError_Single(t *testing.T) {
	buf := captureLog(t)

	PrintError("describe failed", errors.New("no go.mod"))
	assert.Contains(t, buf.String(), "describe failed")
	assert.Contains(t, buf.String(), "no go.mod")
}

func TestExitWithError(t *testing.T) {
	captureLog(t)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: oerrors.Wrap(oerrors.ErrValidation, "bad"), want: oerrors.ExitValidationError},
		{name: "io", err: oerrors.Wrap(oerrors.ErrIO, "disk"), want: oerrors.ExitIOError},
		{name: "aggregate of configuration", err: utilerrors.NewAggregate([]error{oerrors.Wrap(oerrors.ErrConfiguration, "dup")}), want: oerrors.ExitValidationError},
		{name: "plain", err: errors.New("boom"), want: oerrors.ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExitWithError("failed", tt.err)

			var exitErr *oerrors.ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.want, exitErr.Code)
			assert.True(t, exitErr.Printed)
		})
	}
}

func TestPrintUnits(t *testing.T) {
	var buf bytes.Buffer
	PrintUnits(&buf, []pipeline.UnitReport{
		{Name: "app", Status: output.StatusRewritten, Rewritten: 2, Output: "out/0-app"},
		{Name: "lib.zip", Status: output.StatusCopied, Output: "out/1-lib.zip"},
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "2 files rewritten")
	assert.Contains(t, string(lines[0]), "out/0-app")
	assert.Contains(t, string(lines[1]), output.StatusCopied)
	assert.NotContains(t, string(lines[1]), "rewritten")
}
