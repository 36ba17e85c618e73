package rules

import (
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Rule is the declarative form of a system, as read from a world file.
type Rule struct {
	Name    string         `yaml:"name" json:"name"`
	On      []string       `yaml:"on" json:"on"`
	Match   map[string]any `yaml:"match,omitempty" json:"match,omitempty"`
	Query   []string       `yaml:"query,omitempty" json:"query,omitempty"`
	Entity  string         `yaml:"entity,omitempty" json:"entity,omitempty"`
	Actions []Action       `yaml:"do" json:"do"`
}

// Action is one step of a rule: a single-key mapping such as
// {set: {hp: 10}} or {succeed: ${payload}}.
type Action struct {
	Op  string
	Arg any
}

// Known action operations.
const (
	OpSet     = "set"
	OpUnset   = "unset"
	OpRemove  = "remove"
	OpSpawn   = "spawn"
	OpStack   = "stack"
	OpDefer   = "defer"
	OpForward = "forward"
	OpSucceed = "succeed"
	OpFail    = "fail"
	OpDebug   = "debug"
)

var knownOps = []string{OpSet, OpUnset, OpRemove, OpSpawn, OpStack, OpDefer, OpForward, OpSucceed, OpFail, OpDebug}

// UnmarshalYAML decodes a single-key mapping.
func (a *Action) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: action must be a mapping with exactly one key", n.Line)
	}
	var arg any
	if err := n.Content[1].Decode(&arg); err != nil {
		return fmt.Errorf("line %d: action %q: %w", n.Line, n.Content[0].Value, err)
	}
	a.Op, a.Arg = n.Content[0].Value, arg
	return nil
}

// MarshalYAML encodes the action as a single-key mapping.
func (a Action) MarshalYAML() (any, error) {
	return map[string]any{a.Op: a.Arg}, nil
}

// UnmarshalJSON decodes a single-key object.
func (a *Action) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("action must be an object with exactly one key, got %d", len(m))
	}
	for op, arg := range m {
		a.Op, a.Arg = op, arg
	}
	return nil
}

// MarshalJSON encodes the action as a single-key object.
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{a.Op: a.Arg})
}

// Handles reports whether the rule reacts to eventType.
func (r *Rule) Handles(eventType string) bool {
	return slices.Contains(r.On, "*") || slices.Contains(r.On, eventType)
}
