package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/playstate/internal/codec"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			status := "ok"
			if !ev.OK {
				status = "failed"
				if ev.Code != "" {
					status = ev.Code
				}
			}
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Position, ev.Type, show(ev.Payload), status)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages in order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertEntity:
			err = assertEntity(result.Entities, a)
		case AssertView:
			err = assertView(result.Views, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == a.Event && (a.Payload == nil || matches(ev.Payload, a.Payload)) {
			return nil
		}
	}
	expected := "event " + a.Event
	if a.Payload != nil {
		expected += " with payload " + show(a.Payload)
	}
	return &AssertionError{Type: AssertTraceContains, Expected: expected, Actual: "not found in trace", Trace: trace}
}

// assertTraceOrder checks that the first occurrences of the listed event
// types appear in the given order. Other events may come between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int, len(a.Events))
	for i, ev := range trace {
		if _, seen := positions[ev.Type]; !seen {
			positions[ev.Type] = i + 1
		}
	}
	for _, typ := range a.Events {
		if positions[typ] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   "missing event: " + typ,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertEntity(entities map[string]any, a Assertion) error {
	data, exists := entities[a.ID]
	switch {
	case a.Absent && exists:
		return &AssertionError{Type: AssertEntity, Expected: fmt.Sprintf("no entity %s", a.ID), Actual: "entity " + show(data)}
	case a.Absent:
		return nil
	case !exists:
		return &AssertionError{Type: AssertEntity, Expected: fmt.Sprintf("entity %s", a.ID), Actual: "entity not found"}
	}
	if !matches(data, a.Expect) {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("entity %s with %s", a.ID, show(a.Expect)),
			Actual:   show(data),
		}
	}
	return nil
}

func assertView(views map[string]any, a Assertion) error {
	v, ok := views[a.View]
	if !ok {
		return &AssertionError{Type: AssertView, Expected: "view " + a.View, Actual: "view not declared"}
	}
	if !matches(v, a.Equals) {
		return &AssertionError{
			Type:     AssertView,
			Expected: fmt.Sprintf("view %s = %s", a.View, show(a.Equals)),
			Actual:   show(v),
		}
	}
	return nil
}

// matches reports whether actual satisfies expected. Maps in expected match
// as subsets, lists must match element for element, and numbers compare by
// value whatever their Go type.
func matches(actual, expected any) bool {
	a, err := codec.Normalize(actual)
	if err != nil {
		return false
	}
	e, err := codec.Normalize(expected)
	if err != nil {
		return false
	}
	return matchNormalized(a, e)
}

func matchNormalized(actual, expected any) bool {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range want {
			gv, exists := got[k]
			if !exists || !matchNormalized(gv, wv) {
				return false
			}
		}
		return true
	case []any:
		got, ok := actual.([]any)
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if !matchNormalized(got[i], want[i]) {
				return false
			}
		}
		return true
	}

	if wf, ok := toFloat(expected); ok {
		af, ok := toFloat(actual)
		return ok && (af == wf || math.Abs(af-wf) < 1e-9)
	}
	return actual == expected
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func show(v any) string {
	b, err := codec.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
