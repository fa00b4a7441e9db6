package capreg

import (
	"bytes"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// FactoryFunc constructs a provider instance.
type FactoryFunc func() (any, error)

// Binding pairs a capability with the provider that satisfies it.
type Binding struct {
	// Capability is the capability's binary name, importpath.Name.
	Capability string

	// Provider names the provider for diagnostics.
	Provider string

	// Factory constructs the provider. It runs at most once.
	Factory FactoryFunc

	proxy func(*entry) any
}

// Lazy reports whether the binding carries a lazy proxy.
func (b Binding) Lazy() bool {
	return b.proxy != nil
}

// Bind builds a Binding for the capability T. A non-nil proxy enables
// MustResolveLazy for T; generated code passes one for every capability that
// is wired lazily somewhere.
func Bind[T any](provider string, factory func() (T, error), proxy func(*Lazy[T]) T) Binding {
	b := Binding{
		Capability: CapabilityOf[T](),
		Provider:   provider,
	}
	if factory != nil {
		b.Factory = func() (any, error) {
			v, err := factory()
			if err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	if proxy != nil {
		b.proxy = func(e *entry) any {
			return proxy(&Lazy[T]{entry: e})
		}
	}
	return b
}

// Instance returns a factory that always yields v.
func Instance[T any](v T) func() (T, error) {
	return func() (T, error) { return v, nil }
}

// CapabilityOf returns the binary name of T, the key a binding for T is stored
// under.
func CapabilityOf[T any]() string {
	t := reflect.TypeFor[T]()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// entry is the registered state of one binding.
type entry struct {
	binding Binding
	logger  *log.Logger

	done atomic.Bool

	// owner is the goroutine running the factory, zero when none is.
	owner    atomic.Uint64
	mu       sync.Mutex
	instance any
	err      error
}

// get returns the memoized instance, constructing it on first call. The fast
// path is a single atomic load; construction happens under the entry lock and
// the flag is re-checked after acquiring it.
//
// A factory that resolves its own capability, directly or through other
// providers, gets a ConstructionError wrapping ErrCycle. Other goroutines
// wait for the construction to finish.
func (e *entry) get() (any, error) {
	if e.done.Load() {
		return e.instance, e.err
	}

	gid := goroutineID()
	if gid != 0 && e.owner.Load() == gid {
		return nil, &ConstructionError{
			Capability: e.binding.Capability,
			Provider:   e.binding.Provider,
			Err:        fmt.Errorf("%w: %s resolved while its provider is being constructed", ErrCycle, e.binding.Capability),
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done.Load() {
		return e.instance, e.err
	}

	e.owner.Store(gid)
	e.instance, e.err = e.construct()
	e.owner.Store(0)
	e.done.Store(true)

	if e.err != nil {
		e.logger.Debug("provider construction failed",
			"capability", e.binding.Capability,
			"provider", e.binding.Provider,
			"error", e.err,
		)
	} else {
		e.logger.Debug("provider constructed",
			"capability", e.binding.Capability,
			"provider", e.binding.Provider,
		)
	}
	return e.instance, e.err
}

// goroutineID returns the id of the calling goroutine, parsed from the
// "goroutine N [...]" header of its stack trace.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (e *entry) construct() (inst any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			inst = nil
			err = &ConstructionError{
				Capability: e.binding.Capability,
				Provider:   e.binding.Provider,
				Err:        fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	inst, err = e.binding.Factory()
	if err != nil {
		return nil, &ConstructionError{Capability: e.binding.Capability, Provider: e.binding.Provider, Err: err}
	}
	if inst == nil {
		return nil, &ConstructionError{
			Capability: e.binding.Capability,
			Provider:   e.binding.Provider,
			Err:        fmt.Errorf("factory returned nil"),
		}
	}
	return inst, nil
}
