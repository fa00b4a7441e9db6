package capreg

import "fmt"

// Lazy is a deferred handle to the provider of T. The provider is constructed
// on the first Get and shared with every other handle and with Resolve.
type Lazy[T any] struct {
	entry *entry
}

// Get returns the provider, constructing it on first access. Concurrent first
// accesses construct exactly once; every caller receives the same instance.
func (l *Lazy[T]) Get() (T, error) {
	var zero T
	inst, err := l.entry.get()
	if err != nil {
		return zero, err
	}
	v, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("provider %s for %s has type %T", l.entry.binding.Provider, l.entry.binding.Capability, inst)
	}
	return v, nil
}

// MustGet is like Get but panics on error. Generated proxies call it from every
// delegated method.
func (l *Lazy[T]) MustGet() T {
	v, err := l.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Constructed reports whether the provider has been constructed.
func (l *Lazy[T]) Constructed() bool {
	return l.entry.done.Load()
}

// ResolveLazy returns a handle for the capability T without constructing the
// provider. It bootstraps the registry, so an unbound capability is reported
// here rather than on first access.
func ResolveLazy[T any](r *Registry) (*Lazy[T], error) {
	e, err := r.lookup(CapabilityOf[T]())
	if err != nil {
		return nil, err
	}
	return &Lazy[T]{entry: e}, nil
}

// ResolveProxy returns the generated proxy for T. The proxy implements T and
// constructs the provider on its first method call.
func ResolveProxy[T any](r *Registry) (T, error) {
	var zero T
	capability := CapabilityOf[T]()

	e, err := r.lookup(capability)
	if err != nil {
		return zero, err
	}
	if e.binding.proxy == nil {
		return zero, &NoProxyError{Capability: capability}
	}
	v, ok := e.binding.proxy(e).(T)
	if !ok {
		return zero, fmt.Errorf("proxy for %s does not implement it", capability)
	}
	return v, nil
}

// MustResolveLazy is like ResolveProxy but panics on error. Lazily wired
// variables are initialized with it.
func MustResolveLazy[T any](r *Registry) T {
	v, err := ResolveProxy[T](r)
	if err != nil {
		panic(err)
	}
	return v
}
