package scheduler

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/ecs"
)

// DefaultMaxStackDepth bounds nested Stack calls. It keeps a handler that
// stacks its own event type from recursing without end.
const DefaultMaxStackDepth = 64

// Handler is one stage of the pipeline. Systems with an event handler
// implement it.
type Handler interface {
	Name() string
	Handle(*Context) error
}

// State is the scheduler's position in its dispatch cycle.
type State int32

const (
	StateIdle State = iota
	StateQueued
	StateFlushing
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StateFlushing:
		return "flushing"
	case StateSettled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scheduler owns the pending events and drains them through the handlers.
//
// Thread-safety model:
//   - Dispatch, OnEvent, OnSettled, State, Close: safe from any goroutine
//   - flushes, handlers and listeners: executor goroutine only
//
// INVARIANTS:
//   - handler order never changes after construction
//   - at most one flush task is outstanding at any time
//   - every dequeued or stacked event produces exactly one event signal
type Scheduler struct {
	handlers []Handler
	store    *ecs.Store
	exec     Executor
	ids      IDGenerator
	clock    *Clock
	now      TimeSource
	logger   *zap.Logger
	maxDepth int

	queue   *eventQueue
	state   atomic.Int32
	flushes int64 // executor goroutine only

	onEvent   listeners[EventListener]
	onSettled listeners[SettleListener]
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIDGenerator sets the event identity generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Scheduler) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithTimeSource sets the timestamp source. Default: time.Now.
func WithTimeSource(ts TimeSource) Option {
	return func(s *Scheduler) {
		if ts != nil {
			s.now = ts
		}
	}
}

// WithLogger sets the diagnostics sink. Default: a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxStackDepth sets the limit for nested Stack calls.
// Non-positive values keep the default.
func WithMaxStackDepth(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// New creates a scheduler over the handlers in declaration order.
//
// The handlers slice is copied so later mutation by the caller cannot change
// the consultation order.
func New(handlers []Handler, store *ecs.Store, exec Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		handlers: append([]Handler(nil), handlers...),
		store:    store,
		exec:     exec,
		ids:      UUIDv7Generator{},
		clock:    NewClock(),
		now:      time.Now,
		logger:   zap.NewNop(),
		maxDepth: DefaultMaxStackDepth,
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch creates a top-level event and appends it to the queue.
// Safe from any goroutine. Returns ErrClosed after Close.
func (s *Scheduler) Dispatch(eventType string, payload any) (Event, error) {
	ev := s.newEvent(eventType, payload, nil)
	if err := s.enqueue(ev); err != nil {
		return ev, fmt.Errorf("dispatch %q: %w", eventType, err)
	}
	return ev, nil
}

// OnEvent registers a listener called once per resolved event.
func (s *Scheduler) OnEvent(fn EventListener) (cancel func()) {
	return s.onEvent.add(fn)
}

// OnSettled registers a listener called once at the end of every flush.
func (s *Scheduler) OnSettled(fn SettleListener) (cancel func()) {
	return s.onSettled.add(fn)
}

// State returns the current cycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int {
	return s.queue.len()
}

// Clock returns the logical clock stamping events.
func (s *Scheduler) Clock() *Clock {
	return s.clock
}

// Handlers returns the pipeline stage names in consultation order.
func (s *Scheduler) Handlers() []string {
	names := make([]string, len(s.handlers))
	for i, h := range s.handlers {
		names[i] = h.Name()
	}
	return names
}

// Close rejects further dispatches. Events already queued are still flushed
// if a flush is outstanding.
func (s *Scheduler) Close() {
	s.queue.close()
}

func (s *Scheduler) newEvent(eventType string, payload any, parent *Event) Event {
	return Event{
		ID:        s.ids.Generate(),
		Type:      eventType,
		Seq:       s.clock.Next(),
		Timestamp: s.now(),
		Payload:   payload,
		Parent:    parent,
	}
}

func (s *Scheduler) enqueue(ev Event) error {
	needFlush, err := s.queue.push(ev)
	if err != nil {
		return err
	}
	if needFlush {
		s.state.Store(int32(StateQueued))
		s.logger.Debug("flush scheduled", zap.String("event_type", ev.Type))
		s.exec.Post(s.flush)
	}
	return nil
}

// flush drains the queue. Runs on the executor goroutine.
func (s *Scheduler) flush() {
	s.state.Store(int32(StateFlushing))
	s.flushes++
	stats := FlushStats{Flush: s.flushes}

	settle := func() { s.state.Store(int32(StateSettled)) }
	for {
		ev, ok := s.queue.pop(settle)
		if !ok {
			break
		}
		s.resolve(ev, 0)
		stats.Events++
	}

	s.logger.Debug("flush settled",
		zap.Int64("flush", stats.Flush),
		zap.Int("events", stats.Events),
	)
	notify(s.logger, "settled", s.onSettled.snapshot(), func(fn SettleListener) { fn(stats) })
	s.state.CompareAndSwap(int32(StateSettled), int32(StateIdle))
}

// resolve runs ev through the pipeline and publishes its result.
func (s *Scheduler) resolve(ev Event, depth int) Result {
	var final Event
	var res Result
	if depth > s.maxDepth {
		final = ev
		res = Failure(&StackDepthError{EventType: ev.Type, Depth: depth, Limit: s.maxDepth})
	} else {
		final, res = s.runPipeline(ev, depth)
	}

	if res.OK {
		s.logger.Debug("event resolved",
			zap.String("event_id", final.ID),
			zap.String("event_type", final.Type),
			zap.Int("depth", depth),
		)
	} else {
		s.logger.Debug("event failed",
			zap.String("event_id", final.ID),
			zap.String("event_type", final.Type),
			zap.Int("depth", depth),
			zap.Error(res.Err),
		)
	}

	notify(s.logger, "event", s.onEvent.snapshot(), func(fn EventListener) { fn(final, res) })
	return res
}

// runPipeline consults handlers in order until one claims the event.
// It returns the final event, which differs from ev after a Forward.
func (s *Scheduler) runPipeline(ev Event, depth int) (Event, Result) {
	current := ev
	for _, h := range s.handlers {
		hc := &Context{s: s, event: current, system: h.Name(), depth: depth}
		err := s.invoke(h, hc)
		hc.done = true
		current = hc.event

		if err != nil {
			return current, Failure(err)
		}
		if hc.claimed {
			return current, hc.result
		}
	}
	return current, Failure(&UnhandledError{EventType: current.Type, EventID: current.ID})
}

// invoke calls one handler, converting a returned error or a panic into a
// HandlerError attributed to the handler and event.
func (s *Scheduler) invoke(h Handler, hc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = &HandlerError{
				System:    hc.system,
				EventType: hc.event.Type,
				EventID:   hc.event.ID,
				Panicked:  true,
				Err:       cause,
			}
			s.logger.Error("handler panicked",
				zap.String("system", hc.system),
				zap.String("event_type", hc.event.Type),
				zap.Any("panic", r),
			)
		}
	}()

	if herr := h.Handle(hc); herr != nil {
		s.logger.Warn("handler failed",
			zap.String("system", hc.system),
			zap.String("event_type", hc.event.Type),
			zap.Error(herr),
		)
		return &HandlerError{
			System:    hc.system,
			EventType: hc.event.Type,
			EventID:   hc.event.ID,
			Err:       herr,
		}
	}
	return nil
}
