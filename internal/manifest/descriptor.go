// Package manifest reads and writes the files capwire exchanges between
// builds: register descriptors, which declare one provider and the
// capabilities it binds, and the module-register artifact.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ReservedNamespace is the module-root-relative directory holding
	// register descriptors.
	ReservedNamespace = "capwire/registers"

	// DescriptorSuffix marks register descriptor file names.
	DescriptorSuffix = "_register.yaml"
)

// Factory names the constructor that builds a provider. A descriptor without
// a factory constructs the provider type as &T{}.
type Factory struct {
	// Func is the exported zero-argument function in the provider's package.
	Func string `yaml:"func" json:"func"`

	// Error is set when Func returns (T, error).
	Error bool `yaml:"error,omitempty" json:"error,omitempty"`
}

// Descriptor is one register descriptor.
type Descriptor struct {
	// Provider is the provider's binary name.
	Provider string `yaml:"provider" json:"provider,omitempty"`

	Factory *Factory `yaml:"factory,omitempty" json:"factory,omitempty"`

	// Capabilities lists the binary names of the capabilities Provider binds.
	Capabilities []string `yaml:"capabilities" json:"capabilities,omitempty"`
}

// ProviderPackage returns the import path of the provider.
func (d *Descriptor) ProviderPackage() string {
	i := strings.LastIndex(d.Provider, ".")
	if i < 0 {
		return ""
	}
	return d.Provider[:i]
}

// FactoryBinary returns the binary name of the factory function, or "" when
// the provider is constructed directly.
func (d *Descriptor) FactoryBinary() string {
	if d.Factory == nil {
		return ""
	}
	return d.ProviderPackage() + "." + d.Factory.Func
}

// IsDescriptorPath reports whether a module-root-relative path is a register
// descriptor: it sits directly in the reserved namespace and carries the
// suffix marker.
func IsDescriptorPath(modRel string) bool {
	if path.Dir(modRel) != ReservedNamespace {
		return false
	}
	base := path.Base(modRel)
	return strings.HasSuffix(base, DescriptorSuffix) && base != DescriptorSuffix
}

// DescriptorName returns the descriptor's name: its file name without the
// suffix marker.
func DescriptorName(modRel string) string {
	return strings.TrimSuffix(path.Base(modRel), DescriptorSuffix)
}

// DescriptorPath returns the module-root-relative path of the named
// descriptor.
func DescriptorPath(name string) string {
	return ReservedNamespace + "/" + name + DescriptorSuffix
}

// Decode decodes a descriptor. Unknown fields are rejected.
func Decode(data []byte) (*Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return &d, nil
		}
		return nil, err
	}
	return &d, nil
}

// Encode renders a descriptor as YAML.
func (d *Descriptor) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validator checks descriptors against the embedded #RegisterDescriptor
// schema. It is safe for concurrent use.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the descriptor schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(descriptorSchemaCUE, cue.Filename("descriptor.cue"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("compiling descriptor schema: %w", schema.Err())
	}

	def := schema.LookupPath(cue.ParsePath("#RegisterDescriptor"))
	if !def.Exists() {
		return nil, fmt.Errorf("schema has no #RegisterDescriptor definition")
	}

	return &Validator{ctx: ctx, schema: def}, nil
}

// Validate returns an *InvalidDescriptorError naming entry when d violates
// the schema.
func (v *Validator) Validate(entry string, d *Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding descriptor %s: %w", entry, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	value := v.ctx.CompileBytes(data, cue.Filename(entry))
	if value.Err() != nil {
		return &InvalidDescriptorError{Entry: entry, Problems: []string{value.Err().Error()}}
	}

	unified := v.schema.Unify(value)
	err = unified.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var problems []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if p := e.Path(); len(p) > 0 {
			msg = strings.Join(p, ".") + ": " + msg
		}
		problems = append(problems, msg)
	}
	return &InvalidDescriptorError{Entry: entry, Problems: problems}
}

// Load decodes and validates the descriptor held by entry.
func (v *Validator) Load(entry string, data []byte) (*Descriptor, error) {
	d, err := Decode(data)
	if err != nil {
		return nil, &InvalidDescriptorError{Entry: entry, Problems: []string{err.Error()}}
	}
	if err := v.Validate(entry, d); err != nil {
		return nil, err
	}
	return d, nil
}
