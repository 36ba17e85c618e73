package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"equal strings", "a", "a", true},
		{"different strings", "a", "b", false},
		{"int vs json number", json.Number("4"), 4, true},
		{"float vs int", 4.0, 4, true},
		{"different numbers", json.Number("4.5"), 4, false},
		{"map subset", map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1}, true},
		{"map missing key", map[string]any{"a": 1}, map[string]any{"b": 1}, false},
		{"nested subset", map[string]any{"a": map[string]any{"x": 1, "y": 2}}, map[string]any{"a": map[string]any{"y": 2}}, true},
		{"list exact", []any{"a", "b"}, []any{"a", "b"}, true},
		{"list length", []any{"a"}, []any{"a", "b"}, false},
		{"typed list", []string{"a", "b"}, []any{"a", "b"}, true},
		{"nil", nil, nil, true},
		{"scalar vs map", map[string]any{"a": 1}, "a", false},
		{"bool", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(tt.actual, tt.expected))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Position: 1, Type: "b", Payload: map[string]any{"n": json.Number("1")}, OK: true},
		{Position: 2, Type: "a", OK: true},
		{Position: 3, Type: "b", Payload: map[string]any{"n": json.Number("2")}, OK: false, Code: "UNHANDLED"},
	}
	result.Entities = map[string]any{"e": map[string]any{"hp": json.Number("3")}}
	result.Views = map[string]any{"count": json.Number("1")}

	passing := []Assertion{
		{Type: AssertTraceContains, Event: "b", Payload: map[string]any{"n": 2}},
		{Type: AssertTraceOrder, Events: []string{"b", "a"}},
		{Type: AssertTraceCount, Event: "b", Count: 2},
		{Type: AssertEntity, ID: "e", Expect: map[string]any{"hp": 3}},
		{Type: AssertEntity, ID: "ghost", Absent: true},
		{Type: AssertView, View: "count", Equals: 1},
	}
	assert.Empty(t, EvaluateAssertions(result, passing))

	failing := []Assertion{
		{Type: AssertTraceContains, Event: "b", Payload: map[string]any{"n": 3}},
		{Type: AssertTraceOrder, Events: []string{"a", "b"}},
		{Type: AssertTraceOrder, Events: []string{"c"}},
		{Type: AssertTraceCount, Event: "a", Count: 0},
		{Type: AssertEntity, ID: "e", Absent: true},
		{Type: AssertEntity, ID: "ghost", Expect: map[string]any{"hp": 1}},
		{Type: AssertView, View: "missing"},
	}
	errs := EvaluateAssertions(result, failing)
	assert.Len(t, errs, len(failing))
	assert.Contains(t, errs[0], `event b with payload {"n":3}`)
	assert.Contains(t, errs[2], "missing event: c")
	assert.Contains(t, errs[4], "no entity e")
	assert.Contains(t, errs[5], "entity not found")
	assert.Contains(t, errs[6], "view not declared")
}

func TestAssertionError_ListsTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of a",
		Actual:   "0 occurrences",
		Trace:    []TraceEvent{{Position: 1, Type: "b", OK: false, Code: "UNHANDLED"}},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] b null UNHANDLED")
}
