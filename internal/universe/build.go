package universe

import (
	"bytes"
	"go/build"
	"go/parser"
	"go/token"
	"io"
	"path"
	"strconv"
)

// buildContext decides which files belong to the build. It is the go command's
// default context: the running GOOS and GOARCH, CGO_ENABLED and the release
// and tool tags of this toolchain.
var buildContext = build.Default

// buildable reports whether the file with the given entry name and source is
// part of the build described by ctxt. It applies _GOOS/_GOARCH name suffixes
// and //go:build lines the way the go command does, including implied
// operating systems (android is linux, ios is darwin, illumos is solaris).
// Files importing "C" are dropped when cgo is disabled. Files whose header
// cannot be read are kept so the parser reports them.
func buildable(ctxt build.Context, name string, src []byte) bool {
	ctxt.JoinPath = path.Join
	ctxt.OpenFile = func(string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(src)), nil
	}
	ok, err := ctxt.MatchFile(path.Dir(name), path.Base(name))
	if err != nil {
		return true
	}
	if !ok {
		return false
	}
	return ctxt.CgoEnabled || !importsC(name, src)
}

func importsC(name string, src []byte) bool {
	f, err := parser.ParseFile(token.NewFileSet(), name, src, parser.ImportsOnly)
	if err != nil {
		return false
	}
	for _, imp := range f.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil && p == "C" {
			return true
		}
	}
	return false
}
