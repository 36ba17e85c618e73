package world

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/system"
	"github.com/roach88/playstate/internal/view"
)

var (
	// ErrNotReady is returned by Dispatch before initialization finished.
	ErrNotReady = errors.New("world not ready")
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("world closed")
	// ErrNoLoop is returned by Run when the world uses a foreign executor.
	ErrNoLoop = errors.New("world has no loop executor")
	// ErrInvalidDefinition reports a definition that cannot be instantiated.
	ErrInvalidDefinition = errors.New("invalid world definition")
)

type phase int32

const (
	phaseStarting phase = iota
	phaseReadying
	phaseReady
	phaseFailed
	phaseClosed
)

// World is a running instance of a Definition.
//
// Thread-safety: Dispatch, OnEvent, OnSettled, Ready, Err, Wait and Close
// are safe from any goroutine. Handlers, Ready hooks and signal listeners
// run one at a time.
type World struct {
	store    *ecs.Store
	settings system.Settings
	logger   *zap.Logger
	cfg      config

	exec *gate
	loop *scheduler.Loop // nil with a foreign executor

	ctx    context.Context
	cancel context.CancelFunc

	phase atomic.Int32
	ready chan struct{}
	err   error // written before ready is closed

	// Set during initialization, read after ready is closed.
	registry *system.Registry
	sched    *scheduler.Scheduler
	views    *view.Layer

	mu        sync.Mutex
	onEvent   []eventSub
	onSettled []settleSub
	nextSub   int
}

// New validates def, seeds the store and starts initializing the systems.
// It returns an error only for a definition that cannot be instantiated;
// initialization failures are reported by Err.
func New(ctx context.Context, def Definition, opts ...Option) (*World, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	params := maps.Clone(def.Params)
	if params == nil {
		params = map[string]any{}
	}
	maps.Copy(params, cfg.params)

	w := &World{
		store:    ecs.NewStore(ecs.WithLogger(cfg.logger.Named("ecs"))),
		settings: system.Settings{Params: params},
		logger:   cfg.logger,
		cfg:      cfg,
		ready:    make(chan struct{}),
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	seen := make(map[string]bool, len(def.Entities))
	for _, e := range def.Entities {
		if seen[e.ID] {
			w.cancel()
			return nil, fmt.Errorf("%w: duplicate entity %q", ErrInvalidDefinition, e.ID)
		}
		seen[e.ID] = true
		data, _ := ecs.Clone(e.Data).(ecs.Data)
		w.store.Add(ecs.NewEntity(e.ID, data))
	}

	inner := cfg.executor
	if inner == nil {
		w.loop = scheduler.NewLoop()
		inner = w.loop
	}
	w.exec = newGate(inner)

	w.logger.Debug("world created",
		zap.Int("entities", w.store.Len()),
		zap.Int("systems", len(def.Systems)),
		zap.Int("views", len(def.Views)),
	)

	go w.initialize(def)
	return w, nil
}

// Open creates a world and waits for it to be ready.
func Open(ctx context.Context, def Definition, opts ...Option) (*World, error) {
	w, err := New(ctx, def, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Wait(ctx); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *World) initialize(def Definition) {
	reg, err := system.Initialize(w.ctx, def.Systems, w.store, w.settings,
		system.WithLogger(w.logger.Named("system")))
	if err != nil {
		w.fail(err)
		return
	}

	layer, err := view.NewLayer(def.Views, w.store, reg.Settings(),
		view.WithLogger(w.logger.Named("view")))
	if err != nil {
		w.fail(err)
		return
	}

	sched := scheduler.New(reg.Handlers(), w.store, w.exec,
		scheduler.WithIDGenerator(w.cfg.ids),
		scheduler.WithTimeSource(w.cfg.now),
		scheduler.WithMaxStackDepth(w.cfg.maxDepth),
		scheduler.WithLogger(w.logger.Named("scheduler")),
	)
	sched.OnEvent(w.emitEvent)
	sched.OnSettled(func(st scheduler.FlushStats) {
		layer.Update()
		w.emitSettled(st)
	})

	w.registry, w.sched, w.views = reg, sched, layer
	if !w.phase.CompareAndSwap(int32(phaseStarting), int32(phaseReadying)) {
		sched.Close()
		w.fail(ErrClosed)
		return
	}

	if err := reg.Ready(w); err != nil {
		sched.Close()
		w.fail(err)
		return
	}
	if !w.phase.CompareAndSwap(int32(phaseReadying), int32(phaseReady)) {
		sched.Close()
		w.fail(ErrClosed)
		return
	}

	w.logger.Info("world ready", zap.Strings("systems", reg.Names()))
	w.exec.open()
	close(w.ready)
}

func (w *World) fail(err error) {
	w.err = err
	if !w.phase.CompareAndSwap(int32(phaseStarting), int32(phaseFailed)) {
		w.phase.CompareAndSwap(int32(phaseReadying), int32(phaseFailed))
	}
	w.logger.Error("world initialization failed", zap.Error(err))
	close(w.ready)
}

// Ready is closed once initialization has finished, successfully or not.
func (w *World) Ready() <-chan struct{} {
	return w.ready
}

// Err returns the initialization error, or nil. It is only meaningful once
// Ready is closed.
func (w *World) Err() error {
	select {
	case <-w.ready:
		return w.err
	default:
		return nil
	}
}

// Wait blocks until the world is ready or ctx is done.
func (w *World) Wait(ctx context.Context) error {
	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch queues a top-level event. It is accepted once the Ready hooks
// start running, from any goroutine; events dispatched before every hook
// has returned are held and flushed afterwards.
func (w *World) Dispatch(eventType string, payload any) (scheduler.Event, error) {
	switch phase(w.phase.Load()) {
	case phaseReadying, phaseReady:
		return w.sched.Dispatch(eventType, payload)
	case phaseClosed:
		return scheduler.Event{}, fmt.Errorf("dispatch %q: %w", eventType, ErrClosed)
	case phaseFailed:
		return scheduler.Event{}, fmt.Errorf("dispatch %q: %w: %w", eventType, ErrNotReady, w.err)
	default:
		return scheduler.Event{}, fmt.Errorf("dispatch %q: %w", eventType, ErrNotReady)
	}
}

// Store returns the entity store. Systems use it from their Ready hooks.
func (w *World) Store() *ecs.Store {
	return w.store
}

// Entities returns a read-only view of the entity store.
func (w *World) Entities() ecs.Reader {
	return w.store
}

// Context is cancelled when the world closes.
func (w *World) Context() context.Context {
	return w.ctx
}

// Params returns a copy of the world parameters.
func (w *World) Params() map[string]any {
	return maps.Clone(w.settings.Params)
}

// Views returns the view layer, or nil before the world is ready.
func (w *World) Views() *view.Layer {
	if !w.isReady() {
		return nil
	}
	return w.views
}

// Systems returns the system names in declaration order, or nil before the
// world is ready.
func (w *World) Systems() []string {
	if !w.isReady() {
		return nil
	}
	return w.registry.Names()
}

// Scheduler returns the event scheduler, or nil before the world is ready.
func (w *World) Scheduler() *scheduler.Scheduler {
	if !w.isReady() {
		return nil
	}
	return w.sched
}

func (w *World) isReady() bool {
	select {
	case <-w.ready:
		return w.err == nil
	default:
		return false
	}
}

// Run drives the world's loop executor until ctx is done or Close is
// called. It returns ErrNoLoop when the world was given its own executor.
func (w *World) Run(ctx context.Context) error {
	if w.loop == nil {
		return ErrNoLoop
	}
	err := w.loop.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close stops accepting events, cancels the world context and stops the
// loop executor. Safe to call more than once.
func (w *World) Close() {
	prev := phase(w.phase.Swap(int32(phaseClosed)))
	if prev == phaseClosed {
		return
	}
	w.cancel()
	if prev == phaseReady || prev == phaseReadying {
		w.sched.Close()
	}
	if w.loop != nil {
		w.loop.Stop()
	}
	w.logger.Debug("world closed")
}
