package system

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
)

type fakeHost struct {
	store      *ecs.Store
	dispatched []string
}

func (h *fakeHost) Dispatch(eventType string, _ any) (scheduler.Event, error) {
	h.dispatched = append(h.dispatched, eventType)
	return scheduler.Event{Type: eventType}, nil
}

func (h *fakeHost) Store() *ecs.Store         { return h.store }
func (h *fakeHost) Context() context.Context { return context.Background() }

func named(name string) Factory {
	return Static(Handle(name, func(*scheduler.Context) error { return nil }))
}

func TestInitialize_KeepsDeclarationOrder(t *testing.T) {
	// Later factories finish first.
	delayed := func(name string, d time.Duration) Factory {
		return func(ctx context.Context, _ *ecs.Store, _ Settings) (System, error) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return Handle(name, func(*scheduler.Context) error { return nil }), nil
		}
	}

	r, err := Initialize(t.Context(), []Factory{
		delayed("a", 30*time.Millisecond),
		delayed("b", 15*time.Millisecond),
		delayed("c", 0),
	}, ecs.NewStore(), Settings{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestInitialize_FactoriesRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	f := func(name string) Factory {
		return func(ctx context.Context, _ *ecs.Store, _ Settings) (System, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			if n == 3 {
				close(release)
			}
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
			inFlight.Add(-1)
			return OnReady(name, nil), nil
		}
	}

	_, err := Initialize(t.Context(), []Factory{f("a"), f("b"), f("c")}, ecs.NewStore(), Settings{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), peak.Load())
}

func TestInitialize_FailureIsAtomic(t *testing.T) {
	cause := errors.New("asset missing")
	r, err := Initialize(t.Context(), []Factory{
		named("ok"),
		func(context.Context, *ecs.Store, Settings) (System, error) { return nil, cause },
	}, ecs.NewStore(), Settings{})

	assert.Nil(t, r)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageFactory, ie.Stage)
	assert.Equal(t, 1, ie.Index)
}

func TestInitialize_FactoryPanic(t *testing.T) {
	r, err := Initialize(t.Context(), []Factory{
		func(context.Context, *ecs.Store, Settings) (System, error) { panic("bad asset") },
	}, ecs.NewStore(), Settings{})

	assert.Nil(t, r)
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Panicked)
	assert.Contains(t, ie.Error(), "bad asset")
}

func TestInitialize_NilSystem(t *testing.T) {
	_, err := Initialize(t.Context(), []Factory{
		func(context.Context, *ecs.Store, Settings) (System, error) { return nil, nil },
	}, ecs.NewStore(), Settings{})
	assert.ErrorIs(t, err, ErrNilSystem)
}

func TestInitialize_DuplicateNames(t *testing.T) {
	_, err := Initialize(t.Context(), []Factory{named("x"), named("y"), named("x")}, ecs.NewStore(), Settings{})
	require.ErrorIs(t, err, ErrDuplicateName)
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "x", ie.System)
	assert.Equal(t, 2, ie.Index)
}

func TestInitialize_FactoriesSeedStore(t *testing.T) {
	store := ecs.NewStore()
	seed := func(id string) Factory {
		return func(_ context.Context, s *ecs.Store, _ Settings) (System, error) {
			s.Add(ecs.NewEntity(id, ecs.Data{"tag": true}))
			return OnReady("seed-"+id, nil), nil
		}
	}
	_, err := Initialize(t.Context(), []Factory{seed("a"), seed("b")}, store, Settings{})
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}

func TestInitialize_SettingsAreFrozen(t *testing.T) {
	params := map[string]any{"speed": 2}
	var seen Settings
	r, err := Initialize(t.Context(), []Factory{
		func(_ context.Context, _ *ecs.Store, s Settings) (System, error) {
			seen = s
			return OnReady("p", nil), nil
		},
	}, ecs.NewStore(), Settings{Params: params})
	require.NoError(t, err)

	params["speed"] = 99
	v, ok := seen.Param("speed")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	v, _ = r.Settings().Param("speed")
	assert.Equal(t, 2, v)
}

func TestRegistry_HandlersAndLookup(t *testing.T) {
	r, err := Initialize(t.Context(), []Factory{
		named("input"),
		Static(OnReady("boot", func(Host) error { return nil })),
		named("physics"),
	}, ecs.NewStore(), Settings{})
	require.NoError(t, err)

	var names []string
	for _, h := range r.Handlers() {
		names = append(names, h.Name())
	}
	assert.Equal(t, []string{"input", "physics"}, names)

	sys, ok := r.Lookup("boot")
	require.True(t, ok)
	assert.Equal(t, "boot", sys.Name())
	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Len(t, r.Systems(), 3)
}

func TestRegistry_ReadyRunsInOrder(t *testing.T) {
	var order []string
	hook := func(name string) Factory {
		return Static(OnReady(name, func(h Host) error {
			order = append(order, name)
			_, err := h.Dispatch(name+":ready", nil)
			return err
		}))
	}
	r, err := Initialize(t.Context(), []Factory{hook("a"), named("plain"), hook("b")}, ecs.NewStore(), Settings{})
	require.NoError(t, err)

	host := &fakeHost{store: ecs.NewStore()}
	require.NoError(t, r.Ready(host))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, []string{"a:ready", "b:ready"}, host.dispatched)
}

func TestRegistry_ReadyFailureStopsSequence(t *testing.T) {
	ran := false
	r, err := Initialize(t.Context(), []Factory{
		Static(OnReady("broken", func(Host) error { return errors.New("no window") })),
		Static(OnReady("after", func(Host) error { ran = true; return nil })),
	}, ecs.NewStore(), Settings{})
	require.NoError(t, err)

	err = r.Ready(&fakeHost{})
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, StageReady, ie.Stage)
	assert.Equal(t, "broken", ie.System)
	assert.False(t, ran)
	assert.Contains(t, err.Error(), `init ready "broken": no window`)
}

func TestRegistry_ReadyPanic(t *testing.T) {
	r, err := Initialize(t.Context(), []Factory{
		Static(OnReady("p", func(Host) error { panic("oops") })),
	}, ecs.NewStore(), Settings{})
	require.NoError(t, err)

	err = r.Ready(&fakeHost{})
	var ie *InitError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Panicked)
	assert.True(t, IsInitError(err))
}
