package rules

import (
	"context"
	"fmt"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/system"
)

// System runs one compiled rule as a pipeline stage.
type System struct {
	rule   Rule
	steps  []compiled
	params map[string]any
}

// New compiles r into a system bound to the world parameters.
func New(r Rule, params map[string]any) (*System, error) {
	steps, err := compile(r)
	if err != nil {
		return nil, err
	}
	return &System{rule: r, steps: steps, params: params}, nil
}

// Factory compiles r now and returns a factory for it. Compile errors are
// reported here rather than at world initialization.
func Factory(r Rule) (system.Factory, error) {
	if _, err := compile(r); err != nil {
		return nil, err
	}
	return func(_ context.Context, _ *ecs.Store, settings system.Settings) (system.System, error) {
		return New(r, settings.Params)
	}, nil
}

// Factories compiles every rule, in order.
func Factories(rs []Rule) ([]system.Factory, error) {
	out := make([]system.Factory, 0, len(rs))
	for _, r := range rs {
		f, err := Factory(r)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *System) Name() string { return s.rule.Name }

// Rule returns the rule the system was compiled from.
func (s *System) Rule() Rule { return s.rule }

// Handle runs the rule's actions for each target when the event matches.
func (s *System) Handle(c *scheduler.Context) error {
	ev := c.Event()
	if !s.rule.Handles(ev.Type) {
		return nil
	}
	sc := &scope{event: ev, params: s.params}

	for path, want := range s.rule.Match {
		got, err := sc.lookup(path)
		if err != nil || !looseEqual(got, want) {
			return nil
		}
	}

	targets, err := s.targets(c, sc)
	if err != nil {
		return err
	}
	for _, e := range targets {
		sc.entity, sc.result = e, nil
		for i, st := range s.steps {
			if err := st.run(c, sc); err != nil {
				return fmt.Errorf("rule %q do[%d].%s: %w", s.rule.Name, i, st.op, err)
			}
		}
	}
	return nil
}

func (s *System) targets(c *scheduler.Context, sc *scope) ([]*ecs.Entity, error) {
	switch {
	case s.rule.Entity != "":
		id, err := sc.renderID(s.rule.Entity)
		if err != nil {
			return nil, fmt.Errorf("rule %q entity: %w", s.rule.Name, err)
		}
		e, ok := c.Store().QueryByID(id)
		if !ok {
			return nil, nil
		}
		return []*ecs.Entity{e}, nil
	case len(s.rule.Query) > 0:
		return ecs.Collect(c.Store().QueryByTypes(s.rule.Query...)), nil
	default:
		return []*ecs.Entity{nil}, nil
	}
}
