package scheduler

import (
	"fmt"
	"time"
)

// Event is an immutable, typed message moving through the pipeline.
type Event struct {
	// ID uniquely identifies this event instance.
	ID string
	// Type determines the shape of Payload.
	Type string
	// Seq is the logical clock value at creation.
	Seq int64
	// Timestamp is the wall-clock creation time. Never used for ordering.
	Timestamp time.Time
	// Payload is the event data; nil when there is none.
	Payload any
	// Parent is the event being handled when this one was created by
	// Forward, Stack or Defer.
	Parent *Event
}

// Lineage returns the chain of ancestors, nearest first.
func (e Event) Lineage() []Event {
	var out []Event
	for p := e.Parent; p != nil; p = p.Parent {
		out = append(out, *p)
	}
	return out
}

// Root returns the oldest ancestor, or the event itself.
func (e Event) Root() Event {
	root := e
	for root.Parent != nil {
		root = *root.Parent
	}
	return root
}

func (e Event) String() string {
	return fmt.Sprintf("%s#%d(%s)", e.Type, e.Seq, e.ID)
}

// Result is the outcome of one pipeline run.
type Result struct {
	OK   bool
	Data any
	Err  error
}

// Success builds a successful result carrying optional data.
func Success(data any) Result {
	return Result{OK: true, Data: data}
}

// Failure builds a failed result carrying an optional error.
func Failure(err error) Result {
	return Result{Err: err}
}

func (r Result) String() string {
	if r.OK {
		return "success"
	}
	if r.Err == nil {
		return "failure"
	}
	return "failure: " + r.Err.Error()
}
