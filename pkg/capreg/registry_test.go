package capreg_test

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/capwire/pkg/capreg"
)

type Greeter interface {
	Greet(name string) string
}

type LoudGreeter struct {
	salutation string
}

func (g *LoudGreeter) Greet(name string) string {
	return strings.ToUpper(g.salutation + ", " + name)
}

type Clock interface {
	Now() time.Time
}

func newLoudGreeter() (Greeter, error) {
	return &LoudGreeter{salutation: "hello"}, nil
}

func greeterRegistry(t *testing.T) *capreg.Registry {
	t.Helper()
	return capreg.New(func(b *capreg.Binder) error {
		return capreg.Provide[Greeter](b, "example.com/b/loud.LoudGreeter", newLoudGreeter)
	})
}

func TestCapabilityOf(t *testing.T) {
	assert.Equal(t, "github.com/opmodel/capwire/pkg/capreg_test.Greeter", capreg.CapabilityOf[Greeter]())
	assert.Equal(t, "int", capreg.CapabilityOf[int]())
}

func TestRegistry_StateTransitions(t *testing.T) {
	r := greeterRegistry(t)
	assert.Equal(t, capreg.StateUninitialized, r.State())

	require.NoError(t, r.Bootstrap())
	assert.Equal(t, capreg.StateReady, r.State())
	assert.Equal(t, "ready", r.State().String())
}

// A wired variable initialized from the registry holds exactly the singleton
// that Resolve returns, and that singleton came from the bound provider.
func TestRegistry_EndToEndGreeter(t *testing.T) {
	r := greeterRegistry(t)

	wired := capreg.MustResolve[Greeter](r)

	resolved, err := capreg.Resolve[Greeter](r)
	require.NoError(t, err)

	assert.Same(t, wired, resolved)
	assert.IsType(t, &LoudGreeter{}, resolved)
	assert.Equal(t, "HELLO, ADA", resolved.Greet("ada"))
}

func TestRegistry_ResolveNotBound(t *testing.T) {
	r := greeterRegistry(t)

	_, err := capreg.Resolve[Clock](r)
	require.Error(t, err)
	assert.ErrorIs(t, err, capreg.ErrNotBound)

	var nb *capreg.NotBoundError
	require.ErrorAs(t, err, &nb)
	assert.Equal(t, capreg.CapabilityOf[Clock](), nb.Capability)

	assert.Panics(t, func() { capreg.MustResolve[Clock](r) })
}

func TestRegistry_DuplicateBinding(t *testing.T) {
	r := capreg.New(func(b *capreg.Binder) error {
		if err := capreg.Provide[Greeter](b, "example.com/b/loud.LoudGreeter", newLoudGreeter); err != nil {
			return err
		}
		return capreg.Provide[Greeter](b, "example.com/b2/quiet.QuietGreeter", newLoudGreeter)
	})

	err := r.Bootstrap()
	require.Error(t, err)
	assert.ErrorIs(t, err, capreg.ErrBootstrap)
	assert.ErrorIs(t, err, capreg.ErrDuplicateBinding)
	assert.Contains(t, err.Error(), "Greeter")
	assert.Contains(t, err.Error(), "LoudGreeter")
	assert.Contains(t, err.Error(), "QuietGreeter")
	assert.Equal(t, capreg.StateFailed, r.State())
}

func TestRegistry_BootstrapFailureIsMemoized(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	r := capreg.New(func(b *capreg.Binder) error {
		calls.Add(1)
		return boom
	})

	for range 3 {
		_, err := capreg.Resolve[Greeter](r)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_BootstrapPanicBecomesError(t *testing.T) {
	r := capreg.New(func(b *capreg.Binder) error {
		panic("broken bootstrap")
	})

	err := r.Bootstrap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken bootstrap")
}

func TestRegistry_BootstrapRunsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	r := capreg.New(func(b *capreg.Binder) error {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return capreg.Provide[Greeter](b, "loud", newLoudGreeter)
	})

	const n = 32
	var wg sync.WaitGroup
	results := make([]Greeter, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = capreg.MustResolve[Greeter](r)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

// Resolve called while bootstrapping blocks until the registry is ready and
// then returns the fully constructed provider.
func TestRegistry_ResolveBlocksUntilReady(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := capreg.New(func(b *capreg.Binder) error {
		close(entered)
		<-release
		return capreg.Provide[Greeter](b, "loud", newLoudGreeter)
	})

	go func() { _ = r.Bootstrap() }()
	<-entered
	assert.Equal(t, capreg.StateBootstrapping, r.State())

	got := make(chan Greeter, 1)
	errs := make(chan error, 1)
	go func() {
		g, err := capreg.Resolve[Greeter](r)
		if err != nil {
			errs <- err
			return
		}
		got <- g
	}()

	select {
	case <-got:
		t.Fatal("Resolve returned before bootstrap completed")
	case err := <-errs:
		t.Fatalf("Resolve failed before bootstrap completed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case g := <-got:
		require.NotNil(t, g)
		assert.Equal(t, "HELLO, BOB", g.Greet("bob"))
	case err := <-errs:
		t.Fatalf("Resolve failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Resolve did not return after bootstrap completed")
	}
	assert.Equal(t, capreg.StateReady, r.State())
}

func TestBinder_SealedAfterBootstrap(t *testing.T) {
	var saved *capreg.Binder
	r := capreg.New(func(b *capreg.Binder) error {
		saved = b
		return nil
	})
	require.NoError(t, r.Bootstrap())

	err := capreg.Provide[Greeter](saved, "late", newLoudGreeter)
	assert.ErrorIs(t, err, capreg.ErrSealed)
}

func TestBinder_RejectsIncompleteBinding(t *testing.T) {
	tests := []struct {
		name    string
		binding capreg.Binding
		wantErr string
	}{
		{
			name:    "missing capability",
			binding: capreg.Binding{Provider: "p", Factory: func() (any, error) { return 1, nil }},
			wantErr: "no capability",
		},
		{
			name:    "missing factory",
			binding: capreg.Binding{Capability: "x.Y", Provider: "p"},
			wantErr: "no factory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := capreg.New(func(b *capreg.Binder) error {
				return b.Register(tt.binding)
			})
			err := r.Bootstrap()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_ConstructionErrorIsMemoized(t *testing.T) {
	var calls atomic.Int32
	r := capreg.New(func(b *capreg.Binder) error {
		return capreg.Provide[Greeter](b, "flaky", func() (Greeter, error) {
			calls.Add(1)
			return nil, errors.New("dial failed")
		})
	})

	for range 2 {
		_, err := capreg.Resolve[Greeter](r)
		require.Error(t, err)
		assert.ErrorIs(t, err, capreg.ErrConstruction)
		assert.Contains(t, err.Error(), "dial failed")
		assert.Contains(t, err.Error(), "flaky")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_ConstructionPanicRecovered(t *testing.T) {
	r := capreg.New(func(b *capreg.Binder) error {
		return capreg.Provide[Greeter](b, "panicky", func() (Greeter, error) {
			panic("nil config")
		})
	})

	_, err := capreg.Resolve[Greeter](r)
	require.Error(t, err)
	assert.ErrorIs(t, err, capreg.ErrConstruction)
	assert.Contains(t, err.Error(), "nil config")
}

func TestRegistry_NilInstanceRejected(t *testing.T) {
	r := capreg.New(func(b *capreg.Binder) error {
		return capreg.Provide[Greeter](b, "empty", func() (Greeter, error) { return nil, nil })
	})

	_, err := capreg.Resolve[Greeter](r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factory returned nil")
}

func TestRegistry_Bindings(t *testing.T) {
	r := capreg.New(func(b *capreg.Binder) error {
		if err := b.Register(capreg.Bind[Greeter]("loud", newLoudGreeter, newGreeterProxy)); err != nil {
			return err
		}
		return capreg.Provide[Clock](b, "system", capreg.Instance[Clock](systemClock{}))
	})

	infos, err := r.Bindings()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, capreg.CapabilityOf[Clock](), infos[0].Capability)
	assert.False(t, infos[0].Lazy)
	assert.Equal(t, capreg.CapabilityOf[Greeter](), infos[1].Capability)
	assert.True(t, infos[1].Lazy)
	assert.False(t, infos[1].Constructed)

	capreg.MustResolve[Greeter](r)
	infos, err = r.Bindings()
	require.NoError(t, err)
	assert.True(t, infos[1].Constructed)
}

func TestRegistry_NilBootstrapIsEmpty(t *testing.T) {
	r := capreg.New(nil)
	infos, err := r.Bindings()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func TestRegistry_ConstructionCycleFails(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		var r *capreg.Registry
		r = capreg.New(func(b *capreg.Binder) error {
			return capreg.Provide[Greeter](b, "self", func() (Greeter, error) {
				return capreg.Resolve[Greeter](r)
			})
		})

		_, err := capreg.Resolve[Greeter](r)
		require.Error(t, err)
		assert.ErrorIs(t, err, capreg.ErrCycle)
		assert.ErrorIs(t, err, capreg.ErrConstruction)
		assert.Contains(t, err.Error(), capreg.CapabilityOf[Greeter]())
	})

	t.Run("through another provider", func(t *testing.T) {
		var r *capreg.Registry
		r = capreg.New(func(b *capreg.Binder) error {
			if err := capreg.Provide[Greeter](b, "greeter", func() (Greeter, error) {
				if _, err := capreg.Resolve[Clock](r); err != nil {
					return nil, err
				}
				return &LoudGreeter{salutation: "hi"}, nil
			}); err != nil {
				return err
			}
			return capreg.Provide[Clock](b, "clock", func() (Clock, error) {
				if _, err := capreg.Resolve[Greeter](r); err != nil {
					return nil, err
				}
				return nil, errors.New("unreachable")
			})
		})

		done := make(chan error, 1)
		go func() {
			_, err := capreg.Resolve[Greeter](r)
			done <- err
		}()
		select {
		case err := <-done:
			require.Error(t, err)
			assert.ErrorIs(t, err, capreg.ErrCycle)
			assert.Contains(t, err.Error(), capreg.CapabilityOf[Clock]())
		case <-time.After(5 * time.Second):
			t.Fatal("cyclic resolution did not return")
		}

		// The failure is memoized for both capabilities.
		_, err := capreg.Resolve[Clock](r)
		assert.ErrorIs(t, err, capreg.ErrCycle)
	})
}
