package harness

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/playstate/internal/trace"
)

// TraceEvent is one resolved event as recorded during a run.
// Payload and Result are decoded from canonical JSON; numbers are json.Number.
type TraceEvent struct {
	Position int64  `json:"position"`
	Seq      int64  `json:"seq"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
	Payload  any    `json:"payload"`
	OK       bool   `json:"ok"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
	Flush    int64  `json:"flush"`
}

func traceEventFrom(rec trace.EventRecord) (TraceEvent, error) {
	ev := TraceEvent{
		Position: rec.Position,
		Seq:      rec.Seq,
		ID:       rec.ID,
		Type:     rec.Type,
		ParentID: rec.ParentID,
		OK:       rec.OK,
		Error:    rec.Error,
		Code:     rec.Code,
		Flush:    rec.Flush,
	}
	var err error
	if ev.Payload, err = decodeJSON(rec.Payload); err != nil {
		return ev, fmt.Errorf("event %s payload: %w", rec.ID, err)
	}
	if rec.Result != "" {
		if ev.Result, err = decodeJSON(rec.Result); err != nil {
			return ev, fmt.Errorf("event %s result: %w", rec.ID, err)
		}
	}
	return ev, nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists resolved events in resolution order.
	Trace []TraceEvent `json:"trace"`

	// Settles lists completed flushes in order.
	Settles []trace.Settle `json:"settles"`

	// Entities is the final state, keyed by entity ID.
	Entities map[string]any `json:"entities"`

	// Views holds every view's final value.
	Views map[string]any `json:"views"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Settles:  []trace.Settle{},
		Entities: map[string]any{},
		Views:    map[string]any{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Event returns the trace entry for an event ID.
func (r *Result) Event(id string) (TraceEvent, bool) {
	for _, ev := range r.Trace {
		if ev.ID == id {
			return ev, true
		}
	}
	return TraceEvent{}, false
}
