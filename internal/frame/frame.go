// Package frame provides a plugin that turns wall-clock ticks into
// "update" events carrying frame timing.
package frame

import (
	"time"

	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/system"
	"github.com/roach88/playstate/internal/world"
)

const (
	// ComponentName is the component holding the latest FrameData.
	ComponentName = "frameData"
	// EntityID is the entity carrying the frame component.
	EntityID = "#frameData"
	// SystemName is the ticking system.
	SystemName = "#frame"
	// EventUpdate is dispatched once per frame.
	EventUpdate = "update"
	// DefaultInterval is used when no interval is configured.
	DefaultInterval = time.Second / 60
)

// Data is the frame component and the payload of every update event.
type Data struct {
	FrameStart time.Time     `json:"frame_start"`
	FrameCount int64         `json:"frame_count"`
	Delta      time.Duration `json:"delta"`
	FPS        int           `json:"fps"`
}

// Component is the typed handle for the frame component.
var Component = ecs.NewComponent[Data](ComponentName)

// Counter derives frame timing from successive tick times.
// The zero value is ready to use.
type Counter struct {
	last    Data
	started bool
	counter int
}

// Next advances to a frame starting at now.
//
// FPS is the number of frames in the previous wall-clock second. It resets
// to 0 after a gap longer than a second.
func (c *Counter) Next(now time.Time) Data {
	d := Data{FrameStart: now, FrameCount: c.last.FrameCount + 1, FPS: c.last.FPS}
	if c.started {
		d.Delta = now.Sub(c.last.FrameStart)
		switch {
		case d.Delta > time.Second:
			d.FPS = 0
			c.counter = 0
		case now.Truncate(time.Second).After(c.last.FrameStart.Truncate(time.Second)):
			d.FPS = c.counter
			c.counter = 0
		}
	}
	c.started = true
	c.counter++
	c.last = d
	return d
}

// Ticker yields tick times until stop is called.
type Ticker func(interval time.Duration) (ticks <-chan time.Time, stop func())

func timeTicker(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)
	return t.C, t.Stop
}

type options struct {
	interval time.Duration
	ticker   Ticker
	logger   *zap.Logger
}

// Option configures the plugin.
type Option func(*options)

// WithInterval sets the tick interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithTicker replaces the wall-clock ticker, e.g. with a channel fed by a
// test.
func WithTicker(t Ticker) Option {
	return func(o *options) {
		if t != nil {
			o.ticker = t
		}
	}
}

// WithLogger sets the diagnostics sink.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Plugin registers the frame component, its entity and the ticking system.
//
// Once ready, the system dispatches EventUpdate on every tick until the
// world closes. As the first consulted handler for EventUpdate it copies
// the payload into the frame entity and lets the event continue.
func Plugin(opts ...Option) world.Plugin {
	o := options{interval: DefaultInterval, ticker: timeTicker, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return func(b *world.Builder) {
		b.WithComponent(ComponentName, nil).
			WithEntity(EntityID, ecs.Data{ComponentName: Data{}}).
			WithSystem(system.Static(&system.Func{
				SystemName: SystemName,
				OnReady:    func(h system.Host) error { return start(h, o) },
				OnEvent:    record,
			}))
	}
}

func start(h system.Host, o options) error {
	ticks, stop := o.ticker(o.interval)
	ctx := h.Context()
	go func() {
		defer stop()
		var counter Counter
		for {
			select {
			case <-ctx.Done():
				return
			case now, ok := <-ticks:
				if !ok {
					return
				}
				if _, err := h.Dispatch(EventUpdate, counter.Next(now)); err != nil {
					o.logger.Debug("frame ticker stopped", zap.Error(err))
					return
				}
			}
		}
	}()
	o.logger.Debug("frame ticker started", zap.Duration("interval", o.interval))
	return nil
}

func record(c *scheduler.Context) error {
	if c.Event().Type != EventUpdate {
		return nil
	}
	d, ok := FromPayload(c.Event().Payload)
	if !ok {
		return nil
	}
	if e, ok := c.Store().QueryByID(EntityID); ok {
		Component.Set(e, d)
	}
	return nil
}

// FromPayload reads an update payload. Besides Data it accepts a decoded
// mapping with frame_count, fps, delta (a duration string such as "16ms" or
// nanoseconds) and frame_start (RFC 3339), which is how scenarios and world
// files dispatch frames by hand.
func FromPayload(v any) (Data, bool) {
	switch t := v.(type) {
	case Data:
		return t, true
	case *Data:
		if t == nil {
			return Data{}, false
		}
		return *t, true
	case map[string]any:
		var d Data
		for k, raw := range t {
			switch k {
			case "frame_count":
				n, ok := number(raw)
				if !ok {
					return Data{}, false
				}
				d.FrameCount = int64(n)
			case "fps":
				n, ok := number(raw)
				if !ok {
					return Data{}, false
				}
				d.FPS = int(n)
			case "delta":
				switch dv := raw.(type) {
				case string:
					dur, err := time.ParseDuration(dv)
					if err != nil {
						return Data{}, false
					}
					d.Delta = dur
				default:
					n, ok := number(raw)
					if !ok {
						return Data{}, false
					}
					d.Delta = time.Duration(n)
				}
			case "frame_start":
				s, ok := raw.(string)
				if !ok {
					return Data{}, false
				}
				ts, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return Data{}, false
				}
				d.FrameStart = ts
			default:
				return Data{}, false
			}
		}
		return d, true
	}
	return Data{}, false
}

// Sink claims update events that no earlier system claimed. Declare it last
// when no other system resolves frames.
func Sink() system.Factory {
	return system.Static(system.Handle("#frame-sink", func(c *scheduler.Context) error {
		if c.Event().Type == EventUpdate {
			c.Succeed(nil)
		}
		return nil
	}))
}
