// Package capreg is the runtime capability registry used by code that capwire
// generates.
//
// A host package owns exactly one Registry, created from the generated
// bootstrap routine:
//
//	var Registry = capreg.New(bootstrap)
//
// Consumer packages never construct providers themselves. Their wired
// variables are initialized with MustResolve or MustResolveLazy against the
// host's Registry.
//
// A Registry moves through uninitialized → bootstrapping → ready (or failed).
// Bootstrapping runs exactly once, on the first call that needs the binding
// table. Callers that arrive while it runs block until it finishes, so no
// caller ever observes a partially populated table.
package capreg

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// ImportPath is the import path generated code uses for this package.
const ImportPath = "github.com/opmodel/capwire/pkg/capreg"

// State is the lifecycle state of a Registry.
type State int32

const (
	// StateUninitialized means the bootstrap routine has not run yet.
	StateUninitialized State = iota

	// StateBootstrapping means the bootstrap routine is running.
	StateBootstrapping

	// StateReady means every binding is registered and resolution succeeds.
	StateReady

	// StateFailed means the bootstrap routine returned an error. The error is
	// returned to every resolution call for the lifetime of the process.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBootstrapping:
		return "bootstrapping"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// BootstrapFunc populates a Registry. capwire generates one per host package.
type BootstrapFunc func(b *Binder) error

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration and construction events.
// Events are logged at debug level.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry maps capabilities to singleton provider instances.
type Registry struct {
	bootstrap BootstrapFunc
	logger    *log.Logger

	state atomic.Int32
	mu    sync.Mutex
	done  chan struct{}
	err   error

	// entries is written only while bootstrapping and is read-only once done
	// is closed.
	entries map[string]*entry
}

// New creates a Registry that will be populated by bootstrap on first use.
// A nil bootstrap produces an empty registry.
func New(bootstrap BootstrapFunc, opts ...Option) *Registry {
	r := &Registry{
		bootstrap: bootstrap,
		logger:    log.New(io.Discard),
		done:      make(chan struct{}),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// Bootstrap runs the bootstrap routine if it has not run yet and waits for it
// to finish. It is safe to call from many goroutines; only one of them runs
// the routine and the rest block until it completes. The outcome is memoized.
func (r *Registry) Bootstrap() error {
	if r.State() == StateReady {
		return nil
	}

	r.mu.Lock()
	if r.State() == StateUninitialized {
		r.state.Store(int32(StateBootstrapping))
		r.mu.Unlock()
		r.runBootstrap()
	} else {
		r.mu.Unlock()
	}

	<-r.done
	return r.err
}

func (r *Registry) runBootstrap() {
	b := &Binder{r: r}
	err := r.callBootstrap(b)
	b.sealed.Store(true)

	if err != nil {
		r.err = &BootstrapError{Err: err}
		r.state.Store(int32(StateFailed))
		r.logger.Debug("registry bootstrap failed", "error", err)
	} else {
		r.state.Store(int32(StateReady))
		r.logger.Debug("registry ready", "bindings", len(r.entries))
	}
	close(r.done)
}

func (r *Registry) callBootstrap(b *Binder) (err error) {
	if r.bootstrap == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.bootstrap(b)
}

// lookup bootstraps the registry and returns the entry for capability.
func (r *Registry) lookup(capability string) (*entry, error) {
	if err := r.Bootstrap(); err != nil {
		return nil, err
	}
	e, ok := r.entries[capability]
	if !ok {
		return nil, &NotBoundError{Capability: capability}
	}
	return e, nil
}

// BindingInfo describes one registered binding.
type BindingInfo struct {
	Capability  string
	Provider    string
	Lazy        bool
	Constructed bool
}

// Bindings bootstraps the registry and returns its bindings sorted by
// capability.
func (r *Registry) Bindings() ([]BindingInfo, error) {
	if err := r.Bootstrap(); err != nil {
		return nil, err
	}
	infos := make([]BindingInfo, 0, len(r.entries))
	for _, e := range r.entries {
		infos = append(infos, BindingInfo{
			Capability:  e.binding.Capability,
			Provider:    e.binding.Provider,
			Lazy:        e.binding.proxy != nil,
			Constructed: e.done.Load(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Capability < infos[j].Capability
	})
	return infos, nil
}

// Binder registers bindings during bootstrap. It is sealed when the bootstrap
// routine returns.
type Binder struct {
	r      *Registry
	sealed atomic.Bool
}

// Register adds a binding. Registering a second binding for a capability is an
// error naming both providers.
func (b *Binder) Register(binding Binding) error {
	if b.sealed.Load() {
		return fmt.Errorf("registering %s: %w", binding.Capability, ErrSealed)
	}
	if binding.Capability == "" {
		return fmt.Errorf("binding for provider %q has no capability", binding.Provider)
	}
	if binding.Factory == nil {
		return fmt.Errorf("binding %s -> %s has no factory", binding.Capability, binding.Provider)
	}
	if existing, ok := b.r.entries[binding.Capability]; ok {
		return &DuplicateBindingError{
			Capability: binding.Capability,
			Provider:   binding.Provider,
			Existing:   existing.binding.Provider,
		}
	}

	b.r.entries[binding.Capability] = &entry{binding: binding, logger: b.r.logger}
	b.r.logger.Debug("binding registered",
		"capability", binding.Capability,
		"provider", binding.Provider,
		"lazy", binding.proxy != nil,
	)
	return nil
}

// Provide registers a typed factory for the capability T.
func Provide[T any](b *Binder, provider string, factory func() (T, error)) error {
	return b.Register(Bind(provider, factory, nil))
}

// Resolve returns the singleton bound to the capability T, constructing it on
// first use. It bootstraps the registry if needed and blocks while another
// goroutine is bootstrapping.
func Resolve[T any](r *Registry) (T, error) {
	var zero T
	capability := CapabilityOf[T]()

	e, err := r.lookup(capability)
	if err != nil {
		return zero, err
	}
	inst, err := e.get()
	if err != nil {
		return zero, err
	}
	v, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("provider %s for %s has type %T", e.binding.Provider, capability, inst)
	}
	return v, nil
}

// MustResolve is like Resolve but panics on error. Generated initializers use
// it: an unbound capability is a configuration defect with no fallback.
func MustResolve[T any](r *Registry) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return v
}
