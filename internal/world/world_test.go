package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/system"
	"github.com/roach88/playstate/internal/view"
)

type pos struct{ X, Y int }
type vel struct{ DX, DY int }

var (
	posC = ecs.NewComponent[pos]("pos")
	velC = ecs.NewComponent[vel]("vel")
)

func openManual(t *testing.T, def Definition, opts ...Option) (*World, *scheduler.ManualExecutor) {
	t.Helper()
	exec := scheduler.NewManualExecutor()
	opts = append([]Option{
		WithExecutor(exec),
		WithIDGenerator(scheduler.NewSequentialGenerator("evt")),
	}, opts...)
	w, err := Open(t.Context(), def, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w, exec
}

func motion() system.Factory {
	return system.Static(system.Handle("motion", func(c *scheduler.Context) error {
		if c.Event().Type != "tick" {
			return nil
		}
		for e := range c.Store().QueryByTypes("pos", "vel") {
			p, _ := posC.Get(e)
			v, _ := velC.Get(e)
			posC.Set(e, pos{p.X + v.DX, p.Y + v.DY})
		}
		c.Succeed(nil)
		return nil
	}))
}

func TestWorld_PosVelScenario(t *testing.T) {
	def := NewBuilder().
		WithComponent("pos", nil).
		WithComponent("vel", nil).
		WithEntity("a", ecs.Data{"pos": pos{0, 0}, "vel": vel{1, 2}}).
		WithEntity("b", ecs.Data{"pos": pos{5, 5}}).
		WithSystem(motion()).
		WithView(view.IDs("movers", "pos", "vel")).
		Build()

	w, exec := openManual(t, def)

	_, err := w.Dispatch("tick", nil)
	require.NoError(t, err)
	exec.RunPending()

	a, ok := w.Entities().QueryByID("a")
	require.True(t, ok)
	p, _ := posC.Get(a)
	assert.Equal(t, pos{1, 2}, p)

	b, _ := w.Entities().QueryByID("b")
	p, _ = posC.Get(b)
	assert.Equal(t, pos{5, 5}, p, "entity without vel is not moved")

	ids, err := view.Get[[]string](w.Views(), "movers")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestWorld_DispatchBeforeReady(t *testing.T) {
	release := make(chan struct{})
	def := NewBuilder().WithSystem(func(ctx context.Context, _ *ecs.Store, _ system.Settings) (system.System, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return system.Handle("slow", func(c *scheduler.Context) error { c.Succeed(nil); return nil }), nil
	}).Build()

	w, err := New(t.Context(), def, WithExecutor(scheduler.NewManualExecutor()))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Dispatch("early", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Nil(t, w.Views())
	assert.Nil(t, w.Systems())
	assert.NoError(t, w.Err())

	close(release)
	require.NoError(t, w.Wait(t.Context()))
	_, err = w.Dispatch("late", nil)
	assert.NoError(t, err)
	assert.Equal(t, []string{"slow"}, w.Systems())
}

func TestWorld_InitFailureSurfacesOnce(t *testing.T) {
	cause := errors.New("cannot load level")
	def := NewBuilder().
		WithSystem(motion()).
		WithSystem(func(context.Context, *ecs.Store, system.Settings) (system.System, error) { return nil, cause }).
		Build()

	w, err := New(t.Context(), def, WithExecutor(scheduler.NewManualExecutor()))
	require.NoError(t, err)

	err = w.Wait(t.Context())
	require.ErrorIs(t, err, cause)
	assert.True(t, system.IsInitError(w.Err()))
	assert.Nil(t, w.Systems())

	_, err = w.Dispatch("tick", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, cause)

	_, err = Open(t.Context(), def, WithExecutor(scheduler.NewManualExecutor()))
	assert.ErrorIs(t, err, cause)
}

func TestWorld_ReadyHooksDispatchAfterAllHooks(t *testing.T) {
	var order []string
	hook := func(name string) system.Factory {
		return system.Static(&system.Func{
			SystemName: name,
			OnReady: func(h system.Host) error {
				order = append(order, "ready:"+name)
				_, err := h.Dispatch("boot:"+name, nil)
				return err
			},
			OnEvent: func(c *scheduler.Context) error {
				if c.Event().Type == "boot:"+name {
					order = append(order, "handled:"+name)
					c.Succeed(nil)
				}
				return nil
			},
		})
	}
	def := NewBuilder().WithSystem(hook("a")).WithSystem(hook("b")).Build()

	w, exec := openManual(t, def)
	assert.Equal(t, []string{"ready:a", "ready:b"}, order)
	assert.Equal(t, 1, exec.Pending(), "hook dispatches wait for the gate")

	exec.RunPending()
	assert.Equal(t, []string{"ready:a", "ready:b", "handled:a", "handled:b"}, order)
	assert.Equal(t, scheduler.StateIdle, w.Scheduler().State())
}

func TestWorld_DispatchFromOtherGoroutineDuringReady(t *testing.T) {
	var handled []string
	def := NewBuilder().WithSystem(system.Static(&system.Func{
		SystemName: "boot",
		OnReady: func(h system.Host) error {
			done := make(chan error, 1)
			go func() {
				_, err := h.Dispatch("outside", nil)
				done <- err
			}()
			return <-done
		},
		OnEvent: func(c *scheduler.Context) error {
			handled = append(handled, c.Event().Type)
			c.Succeed(nil)
			return nil
		},
	})).Build()

	w, exec := openManual(t, def)
	assert.Empty(t, handled)
	assert.Equal(t, 1, exec.Pending(), "the event waits for the gate")

	exec.RunPending()
	assert.Equal(t, []string{"outside"}, handled)
	assert.Equal(t, scheduler.StateIdle, w.Scheduler().State())
}

func TestWorld_ReadyHookFailure(t *testing.T) {
	def := NewBuilder().WithSystem(system.Static(system.OnReady("broken", func(system.Host) error {
		return errors.New("no display")
	}))).Build()

	_, err := Open(t.Context(), def, WithExecutor(scheduler.NewManualExecutor()))
	var ie *system.InitError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, system.StageReady, ie.Stage)
}

func TestWorld_SignalsAndViewsOnSettle(t *testing.T) {
	def := NewBuilder().
		WithComponent("hp", nil).
		WithEntity("hero", ecs.Data{"hp": 10}).
		WithSystem(system.Static(system.Handle("damage", func(c *scheduler.Context) error {
			e, ok := c.Store().QueryByID("hero")
			if !ok {
				c.Fail(errors.New("no hero"))
				return nil
			}
			e.Data["hp"] = e.Data["hp"].(int) - c.Event().Payload.(int)
			c.Succeed(e.Data["hp"])
			return nil
		}))).
		WithView(view.Entity("hero", "hero")).
		Build()

	w, exec := openManual(t, def)

	var seenView []any
	_, err := w.Views().Subscribe("hero", func(v any) { seenView = append(seenView, v) }, view.Lazy())
	require.NoError(t, err)

	var results []scheduler.Result
	var settled []scheduler.FlushStats
	var heroAtSettle any
	w.OnEvent(func(_ scheduler.Event, r scheduler.Result) { results = append(results, r) })
	w.OnSettled(func(st scheduler.FlushStats) {
		settled = append(settled, st)
		heroAtSettle = seenView[len(seenView)-1]
	})

	_, err = w.Dispatch("hit", 3)
	require.NoError(t, err)
	_, err = w.Dispatch("hit", 2)
	require.NoError(t, err)
	exec.RunPending()

	assert.Equal(t, []scheduler.Result{scheduler.Success(7), scheduler.Success(5)}, results)
	require.Len(t, settled, 1)
	assert.Equal(t, 2, settled[0].Events)
	require.Len(t, seenView, 1, "views update once per settle")
	assert.Equal(t, map[string]any{"hp": 5}, heroAtSettle, "views are updated before settle listeners run")
}

func TestWorld_CancelListener(t *testing.T) {
	def := NewBuilder().WithSystem(motion()).Build()
	w, exec := openManual(t, def)

	n := 0
	cancel := w.OnEvent(func(scheduler.Event, scheduler.Result) { n++ })
	w.OnEvent(func(scheduler.Event, scheduler.Result) { panic("observer") })

	_, _ = w.Dispatch("tick", nil)
	exec.RunPending()
	cancel()
	_, _ = w.Dispatch("tick", nil)
	exec.RunPending()
	assert.Equal(t, 1, n)
}

func TestWorld_ParamsAndOverrides(t *testing.T) {
	var seen system.Settings
	def := NewBuilder().
		WithParams(map[string]any{"gravity": 9.8, "level": 1}).
		WithSystem(func(_ context.Context, _ *ecs.Store, s system.Settings) (system.System, error) {
			seen = s
			return system.OnReady("probe", nil), nil
		}).
		Build()

	w, _ := openManual(t, def, WithParams(map[string]any{"level": 2}))
	assert.Equal(t, map[string]any{"gravity": 9.8, "level": 2}, seen.Params)
	assert.Equal(t, map[string]any{"gravity": 9.8, "level": 2}, w.Params())
}

func TestWorld_DuplicateEntityRejected(t *testing.T) {
	def := NewBuilder().WithEntity("x", nil).WithEntity("x", nil).Build()
	_, err := New(t.Context(), def)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestWorld_InstancesDoNotShareState(t *testing.T) {
	def := NewBuilder().
		WithComponent("bag", map[string]any{"items": []any{}}).
		WithEntity("e", nil).
		Build()

	w1, _ := openManual(t, def)
	w2, _ := openManual(t, def)

	e1, _ := w1.Entities().QueryByID("e")
	e1.Data["bag"].(map[string]any)["items"] = []any{"sword"}

	e2, _ := w2.Entities().QueryByID("e")
	assert.Equal(t, []any{}, e2.Data["bag"].(map[string]any)["items"])
	assert.Equal(t, []any{}, def.Entities[0].Data["bag"].(map[string]any)["items"])
}

func TestWorld_CloseRejectsDispatch(t *testing.T) {
	def := NewBuilder().WithSystem(motion()).Build()
	w, _ := openManual(t, def)
	ctxDone := w.Context().Done()

	w.Close()
	w.Close()
	_, err := w.Dispatch("tick", nil)
	assert.ErrorIs(t, err, ErrClosed)
	select {
	case <-ctxDone:
	default:
		t.Fatal("world context not cancelled")
	}
}

func TestWorld_RunWithLoop(t *testing.T) {
	def := NewBuilder().
		WithEntity("a", ecs.Data{"pos": pos{}, "vel": vel{1, 1}}).
		WithSystem(motion()).
		Build()

	w, err := Open(t.Context(), def)
	require.NoError(t, err)

	settled := make(chan struct{}, 1)
	w.OnSettled(func(scheduler.FlushStats) {
		select {
		case settled <- struct{}{}:
		default:
		}
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(t.Context()) }()

	_, err = w.Dispatch("tick", nil)
	require.NoError(t, err)
	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("no flush")
	}

	w.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return")
	}
}

func TestWorld_RunWithoutLoop(t *testing.T) {
	w, _ := openManual(t, NewBuilder().Build())
	assert.ErrorIs(t, w.Run(t.Context()), ErrNoLoop)
}
