package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/system"
)

func newTestLayer(t *testing.T, store *ecs.Store, views ...Descriptor) *Layer {
	t.Helper()
	l, err := NewLayer(views, store, system.Settings{Params: map[string]any{"goal": 3}})
	require.NoError(t, err)
	return l
}

func TestNewLayer_Validation(t *testing.T) {
	store := ecs.NewStore()
	_, err := NewLayer([]Descriptor{{Name: "x"}}, store, system.Settings{})
	assert.ErrorIs(t, err, ErrInvalidView)

	_, err = NewLayer([]Descriptor{Count("a"), Count("a")}, store, system.Settings{})
	assert.ErrorIs(t, err, ErrInvalidView)

	_, err = NewLayer([]Descriptor{{Selector: func(ecs.Reader, system.Settings) any { return nil }}}, store, system.Settings{})
	assert.ErrorIs(t, err, ErrInvalidView)
}

func TestLayer_GetComputesFresh(t *testing.T) {
	store := ecs.NewStore()
	l := newTestLayer(t, store, Count("movers", "pos", "vel"))

	n, err := Get[int](l, "movers")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	store.Add(ecs.NewEntity("a", ecs.Data{"pos": 1, "vel": 1}))
	n, err = Get[int](l, "movers")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = l.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownView)

	_, err = Get[string](l, "movers")
	assert.Error(t, err)
}

func TestLayer_SelectorSeesSettings(t *testing.T) {
	l := newTestLayer(t, ecs.NewStore(), Descriptor{
		Name: "goal",
		Selector: func(_ ecs.Reader, s system.Settings) any {
			v, _ := s.Param("goal")
			return v
		},
	})
	v, err := l.Get("goal")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestLayer_SubscribeEagerAndLazy(t *testing.T) {
	store := ecs.NewStore()
	store.Add(ecs.NewEntity("a", ecs.Data{"pos": 1}))
	l := newTestLayer(t, store, Count("all"))

	var eager, lazy []any
	_, err := l.Subscribe("all", func(v any) { eager = append(eager, v) })
	require.NoError(t, err)
	_, err = l.Subscribe("all", func(v any) { lazy = append(lazy, v) }, Lazy())
	require.NoError(t, err)

	assert.Equal(t, []any{1}, eager)
	assert.Empty(t, lazy)

	_, err = l.Subscribe("missing", func(any) {})
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestLayer_UpdateNotifiesOnlyOnChange(t *testing.T) {
	store := ecs.NewStore()
	l := newTestLayer(t, store, Count("all"), IDs("ids", "tag"))

	var counts []any
	var ids []any
	_, err := l.Subscribe("all", func(v any) { counts = append(counts, v) })
	require.NoError(t, err)
	_, err = l.Subscribe("ids", func(v any) { ids = append(ids, v) }, Lazy())
	require.NoError(t, err)

	l.Update()
	assert.Equal(t, []any{0}, counts, "unchanged value is not re-sent")
	assert.Len(t, ids, 1, "first computation of a lazy view notifies")

	store.Add(ecs.NewEntity("x", ecs.Data{"tag": true}))
	l.Update()
	l.Update()
	assert.Equal(t, []any{0, 1}, counts)
	require.Len(t, ids, 2)
	assert.Equal(t, []string{"x"}, ids[1])
}

func TestLayer_CustomEqual(t *testing.T) {
	store := ecs.NewStore()
	calls := 0
	l := newTestLayer(t, store, Descriptor{
		Name:     "coarse",
		Selector: func(r ecs.Reader, _ system.Settings) any { return len(ecs.Collect(r.QueryByTypes())) },
		Equal:    func(a, b any) bool { return a.(int)/10 == b.(int)/10 },
	})
	_, err := l.Subscribe("coarse", func(any) { calls++ })
	require.NoError(t, err)

	store.Add(ecs.NewEntity("a", nil))
	l.Update()
	assert.Equal(t, 1, calls, "0 and 1 are in the same bucket")
}

func TestLayer_CancelAndUntil(t *testing.T) {
	store := ecs.NewStore()
	l := newTestLayer(t, store, Count("all"))

	calls := 0
	cancel, err := l.Subscribe("all", func(any) { calls++ }, Lazy())
	require.NoError(t, err)
	assert.Equal(t, 1, l.Subscribers("all"))
	cancel()
	cancel()
	assert.Equal(t, 0, l.Subscribers("all"))

	ctx, stop := context.WithCancel(t.Context())
	_, err = l.Subscribe("all", func(any) {}, Lazy(), Until(ctx))
	require.NoError(t, err)
	assert.Equal(t, 1, l.Subscribers("all"))
	stop()
	assert.Eventually(t, func() bool { return l.Subscribers("all") == 0 }, time.Second, time.Millisecond)

	store.Add(ecs.NewEntity("a", nil))
	l.Update()
	assert.Equal(t, 0, calls)
}

func TestLayer_PanicsAreContained(t *testing.T) {
	store := ecs.NewStore()
	l := newTestLayer(t, store,
		Descriptor{Name: "broken", Selector: func(ecs.Reader, system.Settings) any { panic("bad selector") }},
		Count("all"),
	)

	var got []any
	_, err := l.Subscribe("all", func(any) { panic("bad listener") }, Lazy())
	require.NoError(t, err)
	_, err = l.Subscribe("all", func(v any) { got = append(got, v) }, Lazy())
	require.NoError(t, err)

	assert.NotPanics(t, l.Update)
	assert.Equal(t, []any{0}, got)

	_, err = l.Get("broken")
	assert.ErrorContains(t, err, "bad selector")
}

func TestLayer_ListenerMayCallGet(t *testing.T) {
	store := ecs.NewStore()
	l := newTestLayer(t, store, Count("all"), Entity("hero", "h"))

	var hero any
	_, err := l.Subscribe("all", func(any) {
		hero, _ = l.Get("hero")
	}, Lazy())
	require.NoError(t, err)

	store.Add(ecs.NewEntity("h", ecs.Data{"hp": 10}))
	l.Update()
	assert.Equal(t, map[string]any{"hp": 10}, hero)
}

func TestEntitySelector_Missing(t *testing.T) {
	l := newTestLayer(t, ecs.NewStore(), Entity("hero", "h"))
	v, err := l.Get("hero")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEntitySelector_NestedMutationNotifies(t *testing.T) {
	store := ecs.NewStore()
	hero := ecs.NewEntity("h", ecs.Data{"health": map[string]any{"hp": 10}})
	store.Add(hero)
	l := newTestLayer(t, store, Entity("hero", "h"))

	var seen []any
	_, err := l.Subscribe("hero", func(v any) { seen = append(seen, v) }, Lazy())
	require.NoError(t, err)

	l.Update()
	require.Len(t, seen, 1)

	hero.Data["health"].(map[string]any)["hp"] = 3
	l.Update()
	require.Len(t, seen, 2)
	assert.Equal(t, map[string]any{"health": map[string]any{"hp": 10}}, seen[0])
	assert.Equal(t, map[string]any{"health": map[string]any{"hp": 3}}, seen[1])
}
