package system

import (
	"context"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
)

// System is a named unit of behavior. A system may also implement
// scheduler.Handler to take part in the event pipeline, and Readier to run
// once the world is up.
type System interface {
	Name() string
}

// Readier is implemented by systems with an on-ready hook.
type Readier interface {
	Ready(Host) error
}

// Host is the surface a Ready hook sees.
type Host interface {
	// Dispatch queues a top-level event.
	Dispatch(eventType string, payload any) (scheduler.Event, error)
	// Store returns the world's entity store.
	Store() *ecs.Store
	// Context is cancelled when the world closes.
	Context() context.Context
}

// Func adapts closures to a System. A nil OnEvent keeps the system out of
// the pipeline; a nil OnReady skips the hook.
type Func struct {
	SystemName string
	OnEvent    func(*scheduler.Context) error
	OnReady    func(Host) error
}

func (f *Func) Name() string { return f.SystemName }

func (f *Func) Handle(c *scheduler.Context) error {
	if f.OnEvent == nil {
		return nil
	}
	return f.OnEvent(c)
}

func (f *Func) Ready(h Host) error {
	if f.OnReady == nil {
		return nil
	}
	return f.OnReady(h)
}

func (f *Func) handlesEvents() bool { return f.OnEvent != nil }

// Handle returns a Func with only an event handler.
func Handle(name string, fn func(*scheduler.Context) error) *Func {
	return &Func{SystemName: name, OnEvent: fn}
}

// OnReady returns a Func with only a ready hook.
func OnReady(name string, fn func(Host) error) *Func {
	return &Func{SystemName: name, OnReady: fn}
}

// Settings are the world-level parameters shared by every factory.
type Settings struct {
	Params map[string]any
}

// Param returns a parameter by name.
func (s Settings) Param(name string) (any, bool) {
	v, ok := s.Params[name]
	return v, ok
}

// Factory constructs a system. It may block, e.g. to load assets, and must
// honor ctx. Factories of one world run concurrently and may read or seed
// the store.
type Factory func(ctx context.Context, store *ecs.Store, settings Settings) (System, error)

// Static returns a factory that yields sys as-is.
func Static(sys System) Factory {
	return func(context.Context, *ecs.Store, Settings) (System, error) {
		return sys, nil
	}
}
