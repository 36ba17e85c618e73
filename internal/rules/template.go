package rules

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/playstate/internal/codec"
	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
)

var (
	refPattern  = regexp.MustCompile(`\$\{([^}]+)\}`)
	wholeRefPat = regexp.MustCompile(`^\$\{([^}]+)\}$`)
)

// scope holds what templates can reference while a rule runs.
type scope struct {
	event  scheduler.Event
	entity *ecs.Entity
	params map[string]any
	result *scheduler.Result
}

// render resolves every template inside tmpl. Maps and slices are copied.
func (s *scope) render(tmpl any) (any, error) {
	switch t := tmpl.(type) {
	case string:
		return s.renderString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			r, err := s.render(v)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			r, err := s.render(v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return tmpl, nil
	}
}

func (s *scope) renderString(str string) (any, error) {
	if m := wholeRefPat.FindStringSubmatch(str); m != nil {
		return s.lookup(strings.TrimSpace(m[1]))
	}
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(str, func(match string) string {
		ref := strings.TrimSpace(match[2 : len(match)-1])
		v, err := s.lookup(ref)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprint(v)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// renderID resolves a template that must yield a non-empty string.
func (s *scope) renderID(tmpl string) (string, error) {
	v, err := s.renderString(tmpl)
	if err != nil {
		return "", err
	}
	id, ok := v.(string)
	if !ok {
		id = fmt.Sprint(v)
	}
	if id == "" {
		return "", &TemplateError{Ref: tmpl, Message: "resolved to an empty identity"}
	}
	return id, nil
}

func (s *scope) lookup(ref string) (any, error) {
	root, rest, _ := strings.Cut(ref, ".")
	var path []string
	if rest != "" {
		path = strings.Split(rest, ".")
	}

	switch root {
	case "payload":
		return walk(ref, s.event.Payload, path)
	case "event":
		if len(path) != 1 {
			return nil, &TemplateError{Ref: ref, Message: "use event.type, event.id or event.seq"}
		}
		switch path[0] {
		case "type":
			return s.event.Type, nil
		case "id":
			return s.event.ID, nil
		case "seq":
			return s.event.Seq, nil
		}
		return nil, &TemplateError{Ref: ref, Message: "unknown event field"}
	case "entity":
		if s.entity == nil {
			return nil, &TemplateError{Ref: ref, Message: "rule has no target entity"}
		}
		if len(path) == 0 {
			return nil, &TemplateError{Ref: ref, Message: "use entity.id or entity.<component>"}
		}
		if path[0] == "id" && len(path) == 1 {
			return s.entity.ID, nil
		}
		return walk(ref, map[string]any(s.entity.Data), path)
	case "params":
		return walk(ref, s.params, path)
	case "result":
		if s.result == nil {
			return nil, &TemplateError{Ref: ref, Message: "no stack action ran before this one"}
		}
		if len(path) == 0 {
			return nil, &TemplateError{Ref: ref, Message: "use result.ok, result.data or result.error"}
		}
		switch path[0] {
		case "ok":
			return s.result.OK, nil
		case "data":
			return walk(ref, s.result.Data, path[1:])
		case "error":
			if s.result.Err == nil {
				return "", nil
			}
			return s.result.Err.Error(), nil
		}
		return nil, &TemplateError{Ref: ref, Message: "unknown result field"}
	}
	return nil, &TemplateError{Ref: ref, Message: fmt.Sprintf("unknown root %q", root)}
}

// walk follows path through maps and slices. Other composite values, such
// as structs, are viewed through their canonical JSON form.
func walk(ref string, v any, path []string) (any, error) {
	cur := v
	for i, key := range path {
		switch t := cur.(type) {
		case map[string]any:
			next, ok := t[key]
			if !ok {
				return nil, &TemplateError{Ref: ref, Message: fmt.Sprintf("no field %q", strings.Join(path[:i+1], "."))}
			}
			cur = next
			continue
		case ecs.Data:
			next, ok := t[key]
			if !ok {
				return nil, &TemplateError{Ref: ref, Message: fmt.Sprintf("no field %q", strings.Join(path[:i+1], "."))}
			}
			cur = next
			continue
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, &TemplateError{Ref: ref, Message: fmt.Sprintf("bad index %q", key)}
			}
			cur = t[idx]
			continue
		case nil:
			return nil, &TemplateError{Ref: ref, Message: fmt.Sprintf("%q is null", strings.Join(path[:i], "."))}
		}

		rv := reflect.ValueOf(cur)
		if k := rv.Kind(); k != reflect.Struct && k != reflect.Pointer && k != reflect.Map && k != reflect.Slice && k != reflect.Array {
			return nil, &TemplateError{Ref: ref, Message: fmt.Sprintf("cannot index %T with %q", cur, key)}
		}
		norm, err := codec.Normalize(cur)
		if err != nil {
			return nil, &TemplateError{Ref: ref, Message: err.Error()}
		}
		return walk(ref, norm, path[i:])
	}
	return cur, nil
}

// looseEqual compares decoded values, treating all numeric types alike.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
