package ecs

// Data maps component type names to component values.
type Data map[string]any

// Entity is an identity plus its component data.
//
// The store holds entities by pointer and shares them with every system, so
// component values may be mutated in place. Changing the set of keys in Data
// requires Store.Reindex for queries to observe it.
type Entity struct {
	ID   string
	Data Data
}

// NewEntity creates an entity with the given identity and data.
// A nil data map is replaced by an empty one.
func NewEntity(id string, data Data) *Entity {
	if data == nil {
		data = Data{}
	}
	return &Entity{ID: id, Data: data}
}

// Archetype returns the entity's current component set.
func (e *Entity) Archetype() Archetype {
	names := make([]string, 0, len(e.Data))
	for name := range e.Data {
		names = append(names, name)
	}
	return NewArchetype(names...)
}

// Has reports whether the entity currently holds every named component.
func (e *Entity) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := e.Data[name]; !ok {
			return false
		}
	}
	return true
}

// Component is a typed handle onto one registered component type.
//
// Handles give systems typed access without reflecting over Data:
//
//	var Position = ecs.NewComponent[Vec2]("position")
//	pos, ok := Position.Get(e)
type Component[T any] struct {
	name string
}

// NewComponent creates a handle for the component type name.
func NewComponent[T any](name string) Component[T] {
	return Component[T]{name: name}
}

// Name returns the component type name.
func (c Component[T]) Name() string { return c.name }

// Get returns the entity's value for this component.
// ok is false when the component is missing or holds a different type.
func (c Component[T]) Get(e *Entity) (T, bool) {
	var zero T
	if e == nil {
		return zero, false
	}
	raw, ok := e.Data[c.name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// Set stores a value for this component on the entity.
// Setting a component the entity did not hold at insertion changes its key
// set; call Store.Reindex afterwards.
func (c Component[T]) Set(e *Entity, v T) {
	if e.Data == nil {
		e.Data = Data{}
	}
	e.Data[c.name] = v
}

// Has reports whether the entity holds this component.
func (c Component[T]) Has(e *Entity) bool {
	if e == nil {
		return false
	}
	_, ok := e.Data[c.name]
	return ok
}

// Clone deep-copies the dynamic shapes component data is built from:
// maps with string keys and slices of any. Other values are returned as-is.
func Clone(v any) any {
	switch t := v.(type) {
	case Data:
		if t == nil {
			return Data(nil)
		}
		out := make(Data, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case map[string]any:
		if t == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		if t == nil {
			return []any(nil)
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}
