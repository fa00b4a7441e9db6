// Package unit opens the units capwire reads and rewrites.
//
// A unit is either a zip archive (typically a Go module zip whose entries
// carry a "module@version/" prefix) or a directory tree of Go source. Units
// are read-only: every build writes a new output unit.
package unit

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

// Kind distinguishes archives from directory trees.
type Kind int

const (
	// KindDirectory is a directory tree.
	KindDirectory Kind = iota
	// KindArchive is a zip archive.
	KindArchive
)

// String returns "directory" or "archive".
func (k Kind) String() string {
	if k == KindArchive {
		return "archive"
	}
	return "directory"
}

// GoSuffix marks the entries capwire parses. Every other entry is copied
// unchanged.
const GoSuffix = ".go"

var zipMagic = []byte("PK\x03\x04")
var emptyZipMagic = []byte("PK\x05\x06")

// Entry is one file inside a unit.
type Entry struct {
	// Name is the entry's path inside the unit, slash-separated. For archives
	// it includes the module zip prefix.
	Name string

	// ModRel is the path relative to the module root, slash-separated.
	ModRel string

	Size     int64
	Mode     fs.FileMode
	Modified time.Time
}

// IsGo reports whether the entry is a Go source file.
func (e Entry) IsGo() bool {
	return strings.HasSuffix(e.Name, GoSuffix)
}

// Dir returns the module-root-relative directory of the entry ("." for the
// module root).
func (e Entry) Dir() string {
	return path.Dir(e.ModRel)
}

// Unit is an opened input unit.
type Unit struct {
	// Index is the unit's position in the caller's input order.
	Index    int
	Location Location
	Kind     Kind

	// Root is the absolute path of the archive file or directory.
	Root string

	// ModulePath is the Go module path the unit's entries belong to.
	ModulePath string

	// prefix is stripped from archive entry names to get ModRel; sub is
	// prepended to directory entry names for the same purpose.
	prefix string
	sub    string

	mu      sync.Mutex
	zr      *zip.ReadCloser
	files   map[string]*zip.File
	entries []Entry
}

// Open opens the unit at loc. index is the unit's input position.
func Open(index int, loc Location) (*Unit, error) {
	root, err := filepath.Abs(loc.Path)
	if err != nil {
		return nil, &OpenError{Path: loc.Path, Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &OpenError{Path: loc.Path, Err: err}
	}

	u := &Unit{Index: index, Location: loc, Root: root}
	if info.IsDir() {
		u.Kind = KindDirectory
		err = u.openDir()
	} else {
		ok, serr := isZip(root)
		if serr != nil {
			return nil, &OpenError{Path: loc.Path, Err: serr}
		}
		if !ok {
			return nil, &OpenError{Path: loc.Path, Err: errors.New("not a directory or zip archive")}
		}
		u.Kind = KindArchive
		err = u.openArchive()
	}
	if err != nil {
		_ = u.Close()
		return nil, err
	}
	return u, nil
}

// Name returns a short display name for the unit.
func (u *Unit) Name() string {
	return filepath.Base(u.Root)
}

// IsArchive reports whether the unit is a zip archive.
func (u *Unit) IsArchive() bool {
	return u.Kind == KindArchive
}

// BaseName returns the archive or directory base name without extension.
// Archive filters match against it.
func (u *Unit) BaseName() string {
	base := filepath.Base(u.Root)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Prefix returns the module zip prefix of an archive ("" for directories).
func (u *Unit) Prefix() string {
	return u.prefix
}

// ImportPath returns the import path of the package containing e.
func (u *Unit) ImportPath(e Entry) string {
	dir := e.Dir()
	if dir == "." {
		return u.ModulePath
	}
	return u.ModulePath + "/" + dir
}

// EntryName maps a module-root-relative path to the entry name used inside
// the unit.
func (u *Unit) EntryName(modRel string) string {
	if u.Kind == KindArchive {
		return u.prefix + modRel
	}
	rel, ok := strings.CutPrefix(modRel, u.sub)
	if !ok {
		return modRel
	}
	return rel
}

// Entries lists the unit's file entries in unit order: central directory
// order for archives, lexical order for directories.
func (u *Unit) Entries() ([]Entry, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.entries != nil {
		return u.entries, nil
	}

	var entries []Entry
	if u.Kind == KindArchive {
		if u.zr == nil {
			return nil, &OpenError{Path: u.Location.Path, Err: fs.ErrClosed}
		}
		for _, f := range u.zr.File {
			if strings.HasSuffix(f.Name, "/") {
				continue
			}
			entries = append(entries, Entry{
				Name:     f.Name,
				ModRel:   strings.TrimPrefix(f.Name, u.prefix),
				Size:     int64(f.UncompressedSize64),
				Mode:     f.Mode(),
				Modified: f.Modified,
			})
		}
	} else {
		err := filepath.WalkDir(u.Root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(u.Root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			entries = append(entries, Entry{
				Name:     rel,
				ModRel:   u.sub + rel,
				Size:     info.Size(),
				Mode:     info.Mode(),
				Modified: info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, &OpenError{Path: u.Location.Path, Err: err}
		}
	}
	if entries == nil {
		entries = []Entry{}
	}
	u.entries = entries
	return entries, nil
}

// ReadEntry returns the raw bytes of the named entry.
func (u *Unit) ReadEntry(name string) ([]byte, error) {
	if u.Kind == KindDirectory {
		data, err := os.ReadFile(filepath.Join(u.Root, filepath.FromSlash(name)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &EntryNotFoundError{Unit: u.Name(), Entry: name}
		}
		if err != nil {
			return nil, &OpenError{Path: u.Location.Path, Err: err}
		}
		return data, nil
	}

	u.mu.Lock()
	f, ok := u.files[name]
	u.mu.Unlock()
	if !ok {
		return nil, &EntryNotFoundError{Unit: u.Name(), Entry: name}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &OpenError{Path: u.Location.Path, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &OpenError{Path: u.Location.Path, Err: err}
	}
	return data, nil
}

// Archive returns the open zip reader of an archive unit, or nil.
func (u *Unit) Archive() *zip.Reader {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.zr == nil {
		return nil
	}
	return &u.zr.Reader
}

// Close releases the unit's file handle and cached entry list. It is safe to
// call more than once.
func (u *Unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = nil
	u.files = nil
	if u.zr == nil {
		return nil
	}
	err := u.zr.Close()
	u.zr = nil
	return err
}

func (u *Unit) openDir() error {
	modRoot, data, err := findGoMod(u.Root)
	if err != nil {
		return &OpenError{Path: u.Location.Path, Err: err}
	}
	if data == nil {
		return &ModuleNotFoundError{Path: u.Location.Path}
	}
	modPath := modfile.ModulePath(data)
	if modPath == "" {
		return &ModuleNotFoundError{Path: u.Location.Path}
	}
	if err := module.CheckImportPath(modPath); err != nil {
		return &OpenError{Path: u.Location.Path, Err: err}
	}
	rel, err := filepath.Rel(modRoot, u.Root)
	if err != nil {
		return &OpenError{Path: u.Location.Path, Err: err}
	}
	if rel != "." {
		u.sub = filepath.ToSlash(rel) + "/"
	}
	u.ModulePath = modPath
	return nil
}

func (u *Unit) openArchive() error {
	zr, err := zip.OpenReader(u.Root)
	if err != nil {
		return &OpenError{Path: u.Location.Path, Err: err}
	}
	u.zr = zr
	u.files = make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		u.files[f.Name] = f
	}

	u.prefix = zipPrefix(zr.File)

	if f, ok := u.files[u.prefix+"go.mod"]; ok {
		rc, err := f.Open()
		if err != nil {
			return &OpenError{Path: u.Location.Path, Err: err}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return &OpenError{Path: u.Location.Path, Err: err}
		}
		u.ModulePath = modfile.ModulePath(data)
	}
	if u.ModulePath == "" && u.prefix != "" {
		modPath, _, _ := strings.Cut(strings.TrimSuffix(u.prefix, "/"), "@")
		u.ModulePath = modPath
	}
	if u.ModulePath == "" {
		return &ModuleNotFoundError{Path: u.Location.Path}
	}
	if err := module.CheckImportPath(u.ModulePath); err != nil {
		return &OpenError{Path: u.Location.Path, Err: err}
	}
	return nil
}

// zipPrefix returns the "module@version/" prefix shared by every entry, or "".
func zipPrefix(files []*zip.File) string {
	if len(files) == 0 {
		return ""
	}
	first := files[0].Name
	at := strings.Index(first, "@")
	if at < 0 {
		return ""
	}
	slash := strings.Index(first[at:], "/")
	if slash < 0 {
		return ""
	}
	prefix := first[:at+slash+1]
	modPath, version, _ := strings.Cut(strings.TrimSuffix(prefix, "/"), "@")
	if module.Check(modPath, version) != nil {
		return ""
	}
	for _, f := range files[1:] {
		if !strings.HasPrefix(f.Name, prefix) {
			return ""
		}
	}
	return prefix
}

// findGoMod searches dir and its parents for go.mod.
func findGoMod(dir string) (string, []byte, error) {
	for {
		data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			return dir, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, nil
		}
		dir = parent
	}
}

// isZip reports whether the file at p is a zip archive, by extension or by
// signature.
func isZip(p string) (bool, error) {
	if strings.EqualFold(filepath.Ext(p), ".zip") {
		return true, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, 4)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	head = head[:n]
	return bytes.Equal(head, zipMagic) || bytes.Equal(head, emptyZipMagic), nil
}

// Order returns units with archives first and directories second, each in
// input order.
func Order(units []*Unit) []*Unit {
	out := append([]*Unit(nil), units...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind == KindArchive && out[j].Kind != KindArchive
	})
	return out
}

// IgnoredByGoTool reports whether a module-root-relative path lies in a
// directory the go tool never builds (testdata, vendor, names starting with
// "_" or "."), or is a test file.
func IgnoredByGoTool(modRel string) bool {
	if strings.HasSuffix(modRel, "_test.go") {
		return true
	}
	dir := path.Dir(modRel)
	if dir == "." {
		return false
	}
	for _, elem := range strings.Split(dir, "/") {
		if elem == "testdata" || elem == "vendor" || strings.HasPrefix(elem, "_") || strings.HasPrefix(elem, ".") {
			return true
		}
	}
	return false
}
