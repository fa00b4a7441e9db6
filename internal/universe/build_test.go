package universe

import (
	"go/build"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildable(t *testing.T) {
	ctxtFor := func(goos string, cgo bool) build.Context {
		c := build.Default
		c.GOOS = goos
		c.GOARCH = "arm64"
		c.CgoEnabled = cgo
		return c
	}
	const cgoFile = "package p\n\nimport \"C\"\n"

	tests := []struct {
		name string
		ctxt build.Context
		file string
		src  string
		want bool
	}{
		{name: "untagged", ctxt: ctxtFor("linux", false), file: "p/p.go", src: "package p\n", want: true},
		{name: "ignore tag", ctxt: ctxtFor("linux", false), file: "p/p.go", src: "//go:build ignore\n\npackage p\n"},
		{name: "android implies linux", ctxt: ctxtFor("android", false), file: "p/p.go", src: "//go:build linux\n\npackage p\n", want: true},
		{name: "android implies linux suffix", ctxt: ctxtFor("android", false), file: "p/p_linux.go", src: "package p\n", want: true},
		{name: "ios implies darwin", ctxt: ctxtFor("ios", false), file: "p/p.go", src: "//go:build darwin\n\npackage p\n", want: true},
		{name: "illumos implies solaris", ctxt: ctxtFor("illumos", false), file: "p/p.go", src: "//go:build solaris\n\npackage p\n", want: true},
		{name: "linux is not android", ctxt: ctxtFor("linux", false), file: "p/p_android.go", src: "package p\n"},
		{name: "unix", ctxt: ctxtFor("linux", false), file: "p/p.go", src: "//go:build unix\n\npackage p\n", want: true},
		{name: "cgo tag enabled", ctxt: ctxtFor("linux", true), file: "p/p.go", src: "//go:build cgo\n\npackage p\n", want: true},
		{name: "cgo tag disabled", ctxt: ctxtFor("linux", false), file: "p/p.go", src: "//go:build cgo\n\npackage p\n"},
		{name: "import C enabled", ctxt: ctxtFor("linux", true), file: "p/c.go", src: cgoFile, want: true},
		{name: "import C disabled", ctxt: ctxtFor("linux", false), file: "p/c.go", src: cgoFile},
		{name: "other arch suffix", ctxt: ctxtFor("linux", false), file: "p/p_linux_amd64.go", src: "package p\n"},
		{name: "syntax error is kept", ctxt: ctxtFor("linux", false), file: "p/p.go", src: "pakage p\n", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildable(tt.ctxt, tt.file, []byte(tt.src)))
		})
	}
}
