// Package testutil provides test helpers for building fixture modules and
// units on disk.
package testutil

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

// FixedTime is the modification time stamped on zip entries built by ZipDir,
// so archive bytes are reproducible across runs.
var FixedTime = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// WriteFile creates a file with the given content in the specified directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dirs for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// WriteModule writes a Go module rooted at dir with the given module path and
// files (slash-separated names relative to the module root). It returns dir.
func WriteModule(t *testing.T, dir, modulePath string, files map[string]string) string {
	t.Helper()
	WriteFile(t, dir, "go.mod", "module "+modulePath+"\n\ngo 1.25\n")
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		WriteFile(t, dir, filepath.FromSlash(name), files[name])
	}
	return dir
}

// ZipDir archives the tree under dir into dst. Entry names are prefixed with
// prefix (for example "example.com/a@v1.0.0/"), which may be empty. Entries
// are written in lexical order with FixedTime as their modification time.
func ZipDir(t *testing.T, dir, dst, prefix string) string {
	t.Helper()
	f, err := os.Create(dst)
	if err != nil {
		t.Fatalf("failed to create %s: %v", dst, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr := &zip.FileHeader{
			Name:     prefix + filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: FixedTime,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		t.Fatalf("failed to zip %s: %v", dir, err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip %s: %v", dst, err)
	}
	return dst
}

// ReadZip returns the entry names and contents of the archive at path, in
// central directory order.
func ReadZip(t *testing.T, path string) ([]string, map[string]string) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open zip %s: %v", path, err)
	}
	defer zr.Close()

	var names []string
	contents := make(map[string]string, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("failed to open entry %s: %v", zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read entry %s: %v", zf.Name, err)
		}
		names = append(names, zf.Name)
		contents[zf.Name] = string(data)
	}
	return names, contents
}

// ReadFile returns the contents of path or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// ReadTree returns the contents of every regular file under dir, keyed by
// slash-separated path relative to dir.
func ReadTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree %s: %v", dir, err)
	}
	return out
}

// WriteWorkspace writes a go.work under dir that uses every module directory
// in modules and returns its path.
func WriteWorkspace(t *testing.T, dir string, modules ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("go 1.25.0\n\nuse (\n")
	for _, m := range modules {
		b.WriteString("\t" + strconv.Quote(filepath.ToSlash(m)) + "\n")
	}
	b.WriteString(")\n")
	return WriteFile(t, dir, "go.work", b.String())
}

// GoRun runs `go run .` in dir against the workspace file work and returns
// its combined output. The test is skipped when no go command is on PATH.
func GoRun(t *testing.T, dir, work string) string {
	t.Helper()
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go command not found on PATH")
	}
	cmd := exec.Command(goBin, "run", ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK="+work, "GOFLAGS=", "GOTOOLCHAIN=local")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go run in %s failed: %v\n%s", dir, err, out)
	}
	return string(out)
}
