package frame

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/world"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCounter(t *testing.T) {
	var c Counter

	first := c.Next(t0.Add(100 * time.Millisecond))
	assert.Equal(t, int64(1), first.FrameCount)
	assert.Zero(t, first.Delta)
	assert.Zero(t, first.FPS)

	// Four frames inside the first second, then one in the next.
	for i := 2; i <= 4; i++ {
		c.Next(t0.Add(time.Duration(i) * 200 * time.Millisecond))
	}
	next := c.Next(t0.Add(1100 * time.Millisecond))
	assert.Equal(t, int64(5), next.FrameCount)
	assert.Equal(t, 300*time.Millisecond, next.Delta)
	assert.Equal(t, 4, next.FPS)

	gap := c.Next(t0.Add(5 * time.Second))
	assert.Zero(t, gap.FPS, "long gaps reset the rate")
	assert.Equal(t, 3900*time.Millisecond, gap.Delta)
}

func manualTicker() (Ticker, chan time.Time) {
	ch := make(chan time.Time)
	return func(time.Duration) (<-chan time.Time, func()) { return ch, func() {} }, ch
}

func TestPlugin_DispatchesUpdates(t *testing.T) {
	ticker, ticks := manualTicker()
	exec := scheduler.NewManualExecutor()

	def := world.NewBuilder().
		Use(Plugin(WithTicker(ticker)), Motion()).
		WithEntity("ship", ecs.Data{
			PositionName: []any{0, 0},
			VelocityName: map[string]any{"x": 2.0, "y": -1},
		}).
		WithSystem(Sink()).
		Build()

	w, err := world.Open(t.Context(), def, world.WithExecutor(exec))
	require.NoError(t, err)
	defer w.Close()

	var results []scheduler.Result
	w.OnEvent(func(ev scheduler.Event, r scheduler.Result) {
		if ev.Type == EventUpdate {
			results = append(results, r)
		}
	})

	ticks <- t0
	ticks <- t0.Add(500 * time.Millisecond)
	require.Eventually(t, func() bool { return w.Scheduler().Pending() == 2 }, time.Second, time.Millisecond)
	exec.RunPending()

	require.Len(t, results, 2)
	assert.True(t, results[0].OK)

	fd, ok := w.Entities().QueryByID(EntityID)
	require.True(t, ok)
	data, ok := Component.Get(fd)
	require.True(t, ok)
	assert.Equal(t, int64(2), data.FrameCount)
	assert.Equal(t, 500*time.Millisecond, data.Delta)

	ship, _ := w.Entities().QueryByID("ship")
	pos, ok := Position.Get(ship)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pos.X(), 1e-9)
	assert.InDelta(t, -0.5, pos.Y(), 1e-9)
}

func TestPlugin_StopsWhenWorldCloses(t *testing.T) {
	stopped := make(chan struct{})
	ticker := func(time.Duration) (<-chan time.Time, func()) {
		return make(chan time.Time), func() { close(stopped) }
	}
	def := world.NewBuilder().Use(Plugin(WithTicker(ticker))).Build()
	w, err := world.Open(t.Context(), def, world.WithExecutor(scheduler.NewManualExecutor()))
	require.NoError(t, err)

	w.Close()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker not stopped")
	}
}

func TestVec2(t *testing.T) {
	tests := []struct {
		in   any
		want mgl64.Vec2
		ok   bool
	}{
		{mgl64.Vec2{1, 2}, mgl64.Vec2{1, 2}, true},
		{[]any{1, 2.5}, mgl64.Vec2{1, 2.5}, true},
		{map[string]any{"x": int64(3), "y": 4}, mgl64.Vec2{3, 4}, true},
		{[]any{1}, mgl64.Vec2{}, false},
		{"nope", mgl64.Vec2{}, false},
	}
	for _, tt := range tests {
		got, ok := Vec2(tt.in)
		assert.Equal(t, tt.ok, ok)
		if ok {
			assert.Equal(t, tt.want, got)
		}
	}
}

func TestFromPayload(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want Data
		ok   bool
	}{
		{"data", Data{FrameCount: 2}, Data{FrameCount: 2}, true},
		{"pointer", &Data{FPS: 30}, Data{FPS: 30}, true},
		{"nil pointer", (*Data)(nil), Data{}, false},
		{
			name: "mapping with duration string",
			in:   map[string]any{"frame_count": 3, "delta": "100ms", "fps": 10, "frame_start": "2024-01-02T03:04:05Z"},
			want: Data{FrameCount: 3, Delta: 100 * time.Millisecond, FPS: 10, FrameStart: start},
			ok:   true,
		},
		{"mapping with nanoseconds", map[string]any{"delta": 5}, Data{Delta: 5}, true},
		{"bad duration", map[string]any{"delta": "soon"}, Data{}, false},
		{"unknown key", map[string]any{"dt": 1}, Data{}, false},
		{"other", "tick", Data{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromPayload(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
