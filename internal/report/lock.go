// Package report records the outcome of a build in a lock file and renders
// it for inspection and comparison.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/opmodel/capwire/internal/aggregate"
	"github.com/opmodel/capwire/internal/fsutil"
	"github.com/opmodel/capwire/internal/scan"
)

const (
	// LockFile is the lock file's name inside the resources directory.
	LockFile = "capwire.lock.yaml"

	// APIVersion identifies the lock file format.
	APIVersion = "capwire/v1"
)

// Lock is the binding lock: every binding the build generated and every
// wired variable it resolved.
type Lock struct {
	APIVersion string `json:"apiVersion"`

	// Host is the import path of the registry host package.
	Host     string        `json:"host"`
	Bindings []LockBinding `json:"bindings"`
	Wires    []LockWire    `json:"wires"`
}

// LockBinding is one capability bound to its provider.
type LockBinding struct {
	Capability string `json:"capability"`
	Provider   string `json:"provider"`

	// Descriptor is the key of the register descriptor, modulePath/modRel.
	Descriptor string `json:"descriptor"`

	// Unit names the unit the descriptor was found in.
	Unit string `json:"unit"`
	Lazy bool   `json:"lazy,omitempty"`
}

// Mode returns "lazy" or "eager".
func (b LockBinding) Mode() string {
	if b.Lazy {
		return "lazy"
	}
	return "eager"
}

// LockWire is one wired variable.
type LockWire struct {
	Var        string `json:"var"`
	Capability string `json:"capability"`
	Mode       string `json:"mode"`

	// Explicit is set when the directive named the mode.
	Explicit bool `json:"explicit,omitempty"`
}

// NewLock builds the lock of a build. Bindings are sorted by capability and
// wires by variable.
func NewLock(host string, m *aggregate.BindingMap, wired []*scan.WiredField) *Lock {
	l := &Lock{
		APIVersion: APIVersion,
		Host:       host,
		Bindings:   []LockBinding{},
		Wires:      []LockWire{},
	}
	if m != nil {
		for _, b := range m.Bindings() {
			l.Bindings = append(l.Bindings, LockBinding{
				Capability: b.Capability,
				Provider:   b.Provider,
				Descriptor: b.Register.Key,
				Unit:       b.Register.Unit.Name(),
				Lazy:       b.Lazy,
			})
		}
	}
	for _, w := range wired {
		l.Wires = append(l.Wires, LockWire{
			Var:        w.Var,
			Capability: w.Capability,
			Mode:       w.Mode(),
			Explicit:   w.Explicit,
		})
	}
	sort.Slice(l.Wires, func(i, j int) bool { return l.Wires[i].Var < l.Wires[j].Var })
	return l
}

// Marshal renders the lock as YAML.
func (l *Lock) Marshal() ([]byte, error) {
	return yaml.Marshal(l)
}

// ParseLock decodes a lock. Unknown fields and a foreign apiVersion are
// rejected; name is used in error messages.
func ParseLock(name string, data []byte) (*Lock, error) {
	var l Lock
	if err := yaml.UnmarshalStrict(data, &l); err != nil {
		return nil, &LockError{Path: name, Reason: err.Error()}
	}
	if l.APIVersion != APIVersion {
		return nil, &LockError{
			Path:   name,
			Reason: fmt.Sprintf("unsupported apiVersion %q, want %q", l.APIVersion, APIVersion),
		}
	}
	return &l, nil
}

// ReadLock reads the lock at path.
func ReadLock(path string) (*Lock, []byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, &LockNotFoundError{Path: path}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	l, err := ParseLock(path, data)
	if err != nil {
		return nil, nil, err
	}
	return l, data, nil
}

// WriteLock writes the lock atomically and returns the bytes written.
func WriteLock(path string, l *Lock) ([]byte, error) {
	data, err := l.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding lock: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, err
	}
	return data, nil
}
