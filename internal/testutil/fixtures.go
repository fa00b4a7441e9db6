package testutil

import (
	"path/filepath"
	"testing"
)

// Fixture module paths.
const (
	GreeterModule  = "example.com/a"
	LoudModule     = "example.com/b"
	QuietModule    = "example.com/b2"
	ConsumerModule = "example.com/c"
)

// GreeterSource declares the Greeter capability.
const GreeterSource = `package greeter

// Greeter greets people by name.
//
//capwire:capability
type Greeter interface {
	Greet(name string) string
}
`

// LoudSource declares LoudGreeter and its constructor provider.
const LoudSource = `package loud

import (
	"strings"

	"example.com/a/greeter"
)

// LoudGreeter shouts its greeting.
type LoudGreeter struct {
	Salutation string
}

var _ greeter.Greeter = (*LoudGreeter)(nil)

// NewLoudGreeter returns a LoudGreeter saying hello.
//
//capwire:provider greeter.Greeter
func NewLoudGreeter() *LoudGreeter {
	return &LoudGreeter{Salutation: "hello"}
}

// Greet implements greeter.Greeter.
func (g *LoudGreeter) Greet(name string) string {
	return strings.ToUpper(g.Salutation + ", " + name)
}
`

// LoudDescriptor is the register descriptor capwire describe emits for
// LoudSource.
const LoudDescriptor = `provider: example.com/b/loud.LoudGreeter
factory:
  func: NewLoudGreeter
capabilities:
  - example.com/a/greeter.Greeter
`

// QuietSource declares a second Greeter provider.
const QuietSource = `package quiet

// QuietGreeter whispers.
//
//capwire:provider example.com/a/greeter.Greeter
type QuietGreeter struct{}

// Greet implements the greeter capability.
func (QuietGreeter) Greet(name string) string { return "hi " + name }
`

// QuietDescriptor is the register descriptor for QuietSource.
const QuietDescriptor = `provider: example.com/b2/quiet.QuietGreeter
capabilities:
  - example.com/a/greeter.Greeter
`

// HostSource marks the registry host package.
const HostSource = `// Package wiring hosts the capability registry.
//
//capwire:host
package wiring
`

// ConsumerSource wires a Greeter eagerly.
const ConsumerSource = `package app

import "example.com/a/greeter"

// G greets on behalf of the app.
//
//capwire:wire
var G greeter.Greeter

// Hello greets name.
func Hello(name string) string {
	return G.Greet(name)
}
`

// LazyConsumerSource wires a Greeter lazily.
const LazyConsumerSource = `package app

import "example.com/a/greeter"

//capwire:wire lazy
var G greeter.Greeter
`

// GreeterModules holds the directories of the fixture modules.
type GreeterModules struct {
	A, B, B2, C string
}

// WriteGreeterModules writes the capability module A, the provider module B
// (with its descriptor), a competing provider module B2 and the consumer
// module C (with the host package) under root. consumer is the source of
// C's app package.
func WriteGreeterModules(t *testing.T, root, consumer string) GreeterModules {
	t.Helper()
	m := GreeterModules{
		A:  filepath.Join(root, "a"),
		B:  filepath.Join(root, "b"),
		B2: filepath.Join(root, "b2"),
		C:  filepath.Join(root, "c"),
	}
	WriteModule(t, m.A, GreeterModule, map[string]string{
		"greeter/greeter.go": GreeterSource,
	})
	WriteModule(t, m.B, LoudModule, map[string]string{
		"loud/loud.go": LoudSource,
		"capwire/registers/loud_LoudGreeter_register.yaml": LoudDescriptor,
	})
	WriteModule(t, m.B2, QuietModule, map[string]string{
		"quiet/quiet.go": QuietSource,
		"capwire/registers/quiet_QuietGreeter_register.yaml": QuietDescriptor,
	})
	WriteModule(t, m.C, ConsumerModule, map[string]string{
		"wiring/wiring.go": HostSource,
		"app/app.go":       consumer,
	})
	return m
}
