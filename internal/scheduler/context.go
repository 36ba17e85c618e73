package scheduler

import (
	"github.com/roach88/playstate/internal/ecs"
	"go.uber.org/zap"
)

// Context carries the pipeline controls for one handler call.
// It is only valid until the handler returns.
type Context struct {
	s      *Scheduler
	event  Event
	system string
	depth  int

	claimed bool
	result  Result
	done    bool
}

// Event returns the in-flight event. After Forward it is the replacement.
func (c *Context) Event() Event { return c.event }

// System returns the name of the system being consulted.
func (c *Context) System() string { return c.system }

// Depth returns the Stack nesting depth; 0 for queued events.
func (c *Context) Depth() int { return c.depth }

// Store returns the shared entity store.
func (c *Context) Store() *ecs.Store { return c.s.store }

// Claimed reports whether the event has been claimed.
func (c *Context) Claimed() bool { return c.claimed }

// Succeed claims the event with a successful result.
func (c *Context) Succeed(data any) {
	c.claim(Success(data))
}

// Fail claims the event with a failed result.
func (c *Context) Fail(err error) {
	c.claim(Failure(err))
}

func (c *Context) claim(r Result) {
	if !c.usable("claim") {
		return
	}
	if c.claimed {
		c.s.logger.Debug("event already claimed, ignoring",
			zap.String("system", c.system),
			zap.String("event_id", c.event.ID),
			zap.String("event_type", c.event.Type),
		)
		return
	}
	c.claimed = true
	c.result = r
}

// Forward replaces the in-flight event with a new event of the same type
// carrying payload. Handlers after the current one see the replacement;
// handlers already consulted are not run again.
func (c *Context) Forward(payload any) Event {
	if !c.usable("forward") {
		return c.event
	}
	parent := c.event
	c.event = c.s.newEvent(parent.Type, payload, &parent)
	c.s.logger.Debug("event forwarded",
		zap.String("system", c.system),
		zap.String("from", parent.ID),
		zap.String("to", c.event.ID),
		zap.String("event_type", parent.Type),
	)
	return c.event
}

// Stack runs a child event through the whole pipeline before returning and
// yields its result. The current event stays unresolved.
func (c *Context) Stack(eventType string, payload any) Result {
	if !c.usable("stack") {
		return Failure(ErrContextDone)
	}
	parent := c.event
	child := c.s.newEvent(eventType, payload, &parent)
	return c.s.resolve(child, c.depth+1)
}

// Defer appends a child event to the tail of the queue. It is handled after
// every event already queued.
func (c *Context) Defer(eventType string, payload any) Event {
	parent := c.event
	child := c.s.newEvent(eventType, payload, &parent)
	if !c.usable("defer") {
		return child
	}
	if err := c.s.enqueue(child); err != nil {
		c.s.logger.Warn("deferred event dropped",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
	return child
}

// Dispatch appends a new top-level event with no parent.
func (c *Context) Dispatch(eventType string, payload any) (Event, error) {
	return c.s.Dispatch(eventType, payload)
}

// Debug emits a diagnostic tagged with the system and event.
func (c *Context) Debug(msg string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("system", c.system),
		zap.String("event_id", c.event.ID),
		zap.String("event_type", c.event.Type),
	)
	c.s.logger.Debug(msg, fields...)
}

func (c *Context) usable(op string) bool {
	if c.done {
		c.s.logger.Warn("pipeline control used after handler returned",
			zap.String("op", op),
			zap.String("system", c.system),
			zap.String("event_id", c.event.ID),
		)
		return false
	}
	return true
}
