// Package repackage writes the output unit of every input unit.
//
// Entries that were not modified keep their bytes: archive entries are
// copied raw, directory files keep their mode and modification time. An
// output is written next to its destination and renamed into place.
package repackage

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/opmodel/capwire/internal/fsutil"
	"github.com/opmodel/capwire/internal/output"
	"github.com/opmodel/capwire/internal/unit"
)

// Plan describes the output of one unit.
type Plan struct {
	Unit *unit.Unit

	// Output is the destination file or directory.
	Output string

	// Modified maps existing entry names to new contents.
	Modified map[string][]byte

	// Added maps new entry names to contents.
	Added map[string][]byte
}

// NewPlan returns an empty plan writing u to out.
func NewPlan(u *unit.Unit, out string) *Plan {
	return &Plan{
		Unit:     u,
		Output:   out,
		Modified: make(map[string][]byte),
		Added:    make(map[string][]byte),
	}
}

// Put records data for entry name, as a modification when the unit already
// holds the entry and as an addition otherwise.
func (p *Plan) Put(name string, data []byte, exists bool) {
	if exists {
		p.Modified[name] = data
		return
	}
	p.Added[name] = data
}

// Untouched reports whether the plan copies the unit unchanged.
func (p *Plan) Untouched() bool {
	return len(p.Modified) == 0 && len(p.Added) == 0
}

// Write writes one plan.
func Write(ctx context.Context, p *Plan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.write(); err != nil {
		return &WriteError{Unit: p.Unit.Name(), Output: p.Output, Err: err}
	}
	output.UnitLogger(p.Unit.Name()).Debug("unit written",
		"output", p.Output,
		"modified", len(p.Modified),
		"added", len(p.Added),
	)
	return nil
}

// WriteAll writes plans concurrently. A failing plan does not stop the
// others; every failure is returned in one aggregate.
func WriteAll(ctx context.Context, plans []*Plan, workers int) error {
	errs := make([]error, len(plans))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, p := range plans {
		g.Go(func() error {
			errs[i] = Write(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return utilerrors.NewAggregate(errs)
}

func (p *Plan) write() error {
	dst, err := filepath.Abs(p.Output)
	if err != nil {
		return err
	}
	root := p.Unit.Root
	if dst == root {
		return errors.New("output would overwrite the input unit")
	}
	if !p.Unit.IsArchive() && strings.HasPrefix(dst, root+string(filepath.Separator)) {
		return errors.New("output lies inside the input directory")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	if p.Unit.IsArchive() {
		return p.writeArchive(dst)
	}
	return p.writeDir(dst)
}

func (p *Plan) writeArchive(dst string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if p.Untouched() {
		err = copyFile(tmp, p.Unit.Root)
	} else {
		err = p.rewriteArchive(tmp)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if info, err := os.Stat(p.Unit.Root); err == nil {
		if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return fsutil.ReplacePath(tmpName, dst)
}

func copyFile(w io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// rewriteArchive writes the archive with modified entries re-compressed in
// place and added entries appended.
func (p *Plan) rewriteArchive(w io.Writer) error {
	zr := p.Unit.Archive()
	if zr == nil {
		return errors.New("archive is not open")
	}
	zw := zip.NewWriter(w)

	for _, f := range zr.File {
		data, ok := p.Modified[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("copying %s: %w", f.Name, err)
			}
			continue
		}
		hdr := f.FileHeader
		hdr.CRC32 = 0
		hdr.CompressedSize64 = 0
		hdr.UncompressedSize64 = 0
		hdr.Extra = nil
		if err := writeEntry(zw, &hdr, data); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(p.Added) {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0o644)
		if err := writeEntry(zw, hdr, p.Added[name]); err != nil {
			return err
		}
	}

	if err := zw.SetComment(zr.Comment); err != nil {
		return err
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, hdr *zip.FileHeader, data []byte) error {
	ew, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("writing %s: %w", hdr.Name, err)
	}
	if _, err := ew.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", hdr.Name, err)
	}
	return nil
}

func (p *Plan) writeDir(dst string) error {
	tmp, err := os.MkdirTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	root := p.Unit.Root
	err = filepath.WalkDir(root, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, src)
		if err != nil {
			return err
		}
		target := filepath.Join(tmp, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			if rel == "." {
				return os.Chmod(tmp, info.Mode().Perm())
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(src)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}

		if data, ok := p.Modified[filepath.ToSlash(rel)]; ok {
			if err := os.WriteFile(target, data, info.Mode().Perm()); err != nil {
				return err
			}
			return os.Chmod(target, info.Mode().Perm())
		}
		if err := copyRegular(target, src, info.Mode().Perm()); err != nil {
			return err
		}
		return os.Chtimes(target, info.ModTime(), info.ModTime())
	})
	if err != nil {
		return err
	}

	for _, name := range sortedKeys(p.Added) {
		target := filepath.Join(tmp, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, p.Added[name], 0o644); err != nil {
			return err
		}
	}

	// Directory times change as entries are created, so they are restored
	// after every file is in place.
	if err := restoreDirTimes(root, tmp); err != nil {
		return err
	}
	return fsutil.ReplacePath(tmp, dst)
}

func copyRegular(dst, src string, perm fs.FileMode) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := copyFile(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

func restoreDirTimes(root, tmp string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, src)
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Deepest first, so a parent is stamped after its children.
	for i := len(dirs) - 1; i >= 0; i-- {
		info, err := os.Stat(dirs[i])
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, dirs[i])
		if err != nil {
			return err
		}
		target := filepath.Join(tmp, rel)
		if err := os.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
