package rules

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
)

// step executes one action for one target.
type step func(c *scheduler.Context, s *scope) error

type compiled struct {
	op  string
	run step
}

// FailedError is the failure recorded by a fail action.
type FailedError struct {
	Rule    string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("rule %q failed: %s", e.Rule, e.Message)
}

// Validate checks a rule without building it.
func Validate(r Rule) error {
	_, err := compile(r)
	return err
}

func compile(r Rule) ([]compiled, error) {
	if r.Name == "" {
		return nil, &CompileError{Field: "name", Message: "name is required"}
	}
	fail := func(field, format string, args ...any) error {
		return &CompileError{Rule: r.Name, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if len(r.On) == 0 {
		return nil, fail("on", "at least one event type is required")
	}
	for i, t := range r.On {
		if t == "" {
			return nil, fail(fmt.Sprintf("on[%d]", i), "event type must not be empty")
		}
	}
	for i, q := range r.Query {
		if q == "" {
			return nil, fail(fmt.Sprintf("query[%d]", i), "component name must not be empty")
		}
	}
	if r.Entity != "" && len(r.Query) > 0 {
		return nil, fail("entity", "entity and query are mutually exclusive")
	}
	if len(r.Actions) == 0 {
		return nil, fail("do", "at least one action is required")
	}

	targeted := r.Entity != "" || len(r.Query) > 0
	steps := make([]compiled, 0, len(r.Actions))
	for i, a := range r.Actions {
		field := fmt.Sprintf("do[%d].%s", i, a.Op)
		if !slices.Contains(knownOps, a.Op) {
			return nil, fail(fmt.Sprintf("do[%d]", i), "unknown action %q", a.Op)
		}
		if !targeted && (a.Op == OpSet || a.Op == OpUnset || a.Op == OpRemove) {
			return nil, fail(field, "needs a target: set entity or query")
		}
		run, err := compileAction(r.Name, a)
		if err != nil {
			return nil, fail(field, "%v", err)
		}
		steps = append(steps, compiled{op: a.Op, run: run})
	}
	return steps, nil
}

func compileAction(rule string, a Action) (step, error) {
	switch a.Op {
	case OpSet:
		values, ok := a.Arg.(map[string]any)
		if !ok || len(values) == 0 {
			return nil, errors.New("expects a mapping of component to value")
		}
		return setStep(values), nil

	case OpUnset:
		names, err := stringList(a.Arg)
		if err != nil {
			return nil, err
		}
		return unsetStep(names), nil

	case OpRemove:
		if b, ok := a.Arg.(bool); !ok || !b {
			return nil, errors.New("expects true")
		}
		return func(c *scheduler.Context, s *scope) error {
			c.Store().Remove(s.entity)
			return nil
		}, nil

	case OpSpawn:
		spec, ok := a.Arg.(map[string]any)
		if !ok {
			return nil, errors.New("expects {id, data}")
		}
		for k := range spec {
			if k != "id" && k != "data" {
				return nil, fmt.Errorf("unknown field %q", k)
			}
		}
		idTmpl, _ := spec["id"].(string)
		if _, ok := spec["id"]; ok && idTmpl == "" {
			return nil, errors.New("id must be a non-empty string")
		}
		data, _ := spec["data"].(map[string]any)
		if _, ok := spec["data"]; ok && data == nil {
			return nil, errors.New("data must be a mapping")
		}
		return spawnStep(idTmpl, data), nil

	case OpStack, OpDefer:
		typ, payload, err := emitArgs(a.Arg)
		if err != nil {
			return nil, err
		}
		if a.Op == OpStack {
			return func(c *scheduler.Context, s *scope) error {
				p, err := s.render(payload)
				if err != nil {
					return err
				}
				t, err := s.renderID(typ)
				if err != nil {
					return err
				}
				res := c.Stack(t, p)
				s.result = &res
				return nil
			}, nil
		}
		return func(c *scheduler.Context, s *scope) error {
			p, err := s.render(payload)
			if err != nil {
				return err
			}
			t, err := s.renderID(typ)
			if err != nil {
				return err
			}
			c.Defer(t, p)
			return nil
		}, nil

	case OpForward:
		return func(c *scheduler.Context, s *scope) error {
			p, err := s.render(a.Arg)
			if err != nil {
				return err
			}
			c.Forward(p)
			return nil
		}, nil

	case OpSucceed:
		return func(c *scheduler.Context, s *scope) error {
			data, err := s.render(a.Arg)
			if err != nil {
				return err
			}
			c.Succeed(data)
			return nil
		}, nil

	case OpFail:
		return func(c *scheduler.Context, s *scope) error {
			msg, err := s.render(a.Arg)
			if err != nil {
				return err
			}
			if msg == nil {
				msg = "failed"
			}
			c.Fail(&FailedError{Rule: rule, Message: fmt.Sprint(msg)})
			return nil
		}, nil

	case OpDebug:
		tmpl, ok := a.Arg.(string)
		if !ok {
			return nil, errors.New("expects a message string")
		}
		return func(c *scheduler.Context, s *scope) error {
			msg, err := s.renderString(tmpl)
			if err != nil {
				return err
			}
			fields := []zap.Field{zap.String("rule", rule)}
			if s.entity != nil {
				fields = append(fields, zap.String("entity", s.entity.ID))
			}
			c.Debug(fmt.Sprint(msg), fields...)
			return nil
		}, nil
	}
	return nil, fmt.Errorf("unknown action %q", a.Op)
}

func setStep(values map[string]any) step {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	slices.Sort(names)

	return func(c *scheduler.Context, s *scope) error {
		e := s.entity
		rendered := make(map[string]any, len(names))
		for _, name := range names {
			v, err := s.render(values[name])
			if err != nil {
				return err
			}
			rendered[name] = v
		}
		reindex := false
		for _, name := range names {
			if _, had := e.Data[name]; !had {
				reindex = true
			}
			e.Data[name] = rendered[name]
		}
		if reindex {
			c.Store().Reindex(e.ID)
		}
		return nil
	}
}

func unsetStep(names []string) step {
	return func(c *scheduler.Context, s *scope) error {
		e := s.entity
		reindex := false
		for _, name := range names {
			if _, had := e.Data[name]; had {
				delete(e.Data, name)
				reindex = true
			}
		}
		if reindex {
			c.Store().Reindex(e.ID)
		}
		return nil
	}
}

func spawnStep(idTmpl string, data map[string]any) step {
	return func(c *scheduler.Context, s *scope) error {
		id := uuid.NewString()
		if idTmpl != "" {
			var err error
			if id, err = s.renderID(idTmpl); err != nil {
				return err
			}
		}
		rendered, err := s.render(data)
		if err != nil {
			return err
		}
		m, _ := rendered.(map[string]any)
		c.Store().Add(ecs.NewEntity(id, ecs.Data(m)))
		return nil
	}
}

func emitArgs(arg any) (typ string, payload any, err error) {
	switch t := arg.(type) {
	case string:
		if t == "" {
			return "", nil, errors.New("event type must not be empty")
		}
		return t, nil, nil
	case map[string]any:
		for k := range t {
			if k != "type" && k != "payload" {
				return "", nil, fmt.Errorf("unknown field %q", k)
			}
		}
		typ, _ = t["type"].(string)
		if typ == "" {
			return "", nil, errors.New("type is required")
		}
		return typ, t["payload"], nil
	}
	return "", nil, errors.New("expects an event type or {type, payload}")
}

func stringList(arg any) ([]string, error) {
	switch t := arg.(type) {
	case string:
		if t == "" {
			return nil, errors.New("component name must not be empty")
		}
		return []string{t}, nil
	case []any:
		if len(t) == 0 {
			return nil, errors.New("expects at least one component name")
		}
		out := make([]string, len(t))
		for i, v := range t {
			s, ok := v.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("[%d] must be a component name", i)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, errors.New("expects a component name or a list of names")
}
