package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run of a world.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// World is the world file to run. Relative paths are resolved against
	// the scenario file's directory by LoadScenario.
	World string `yaml:"world"`

	// Params override the world file's params.
	Params map[string]any `yaml:"params,omitempty"`

	// Steps dispatch events in order.
	Steps []Step `yaml:"steps"`

	// Assertions check the trace and final state after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step dispatches one event.
type Step struct {
	Dispatch string `yaml:"dispatch"`
	Payload  any    `yaml:"payload,omitempty"`

	// Hold leaves the event queued so it shares a flush with the next step.
	Hold bool `yaml:"hold,omitempty"`

	// Expect checks the dispatched event's result once it resolves.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes an event result. Unset fields are not checked.
type Expect struct {
	OK *bool `yaml:"ok,omitempty"`

	// Data is matched as a subset: maps need only contain the listed keys.
	Data any `yaml:"data,omitempty"`

	// Code is the failure code, such as UNHANDLED or HANDLER_FAILED.
	Code string `yaml:"code,omitempty"`

	// Error must be contained in the failure message.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is the event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Events is the expected relative order of event types (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Payload is a subset the event payload must match (trace_contains).
	Payload any `yaml:"payload,omitempty"`

	// Count is the exact number of events of a type (trace_count).
	Count int `yaml:"count,omitempty"`

	// ID names the entity (entity).
	ID string `yaml:"id,omitempty"`

	// Absent asserts the entity does not exist (entity).
	Absent bool `yaml:"absent,omitempty"`

	// Expect is a subset of the entity's components (entity).
	Expect map[string]any `yaml:"expect,omitempty"`

	// View names the view (view).
	View string `yaml:"view,omitempty"`

	// Equals is the view's expected value (view). Maps match as subsets.
	Equals any `yaml:"equals,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertEntity        = "entity"
	AssertView          = "view"
)

// LoadScenario reads a scenario file, rejecting unknown fields, and resolves
// its world path against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.World != "" && !filepath.IsAbs(s.World) {
		s.World = filepath.Join(filepath.Dir(path), s.World)
	}
	if _, err := os.Stat(s.World); err != nil {
		return nil, fmt.Errorf("invalid scenario: world file not found: %s", s.World)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. The world path is left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.World == "" {
		return fmt.Errorf("world is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range s.Steps {
		if step.Dispatch == "" {
			return fmt.Errorf("steps[%d]: dispatch is required", i)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertEntity:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for entity", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for entity", index)
		}
		if a.Absent && len(a.Expect) > 0 {
			return fmt.Errorf("assertions[%d]: expect and absent are exclusive", index)
		}
	case AssertView:
		if a.View == "" {
			return fmt.Errorf("assertions[%d]: view is required for view", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
