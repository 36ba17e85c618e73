package view

import (
	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/system"
)

// Count returns a descriptor counting the entities that carry every one of
// the given component types.
func Count(name string, components ...string) Descriptor {
	required := append([]string(nil), components...)
	return Descriptor{
		Name: name,
		Selector: func(entities ecs.Reader, _ system.Settings) any {
			n := 0
			for range entities.QueryByTypes(required...) {
				n++
			}
			return n
		},
	}
}

// Entity returns a descriptor holding a deep copy of one entity's data, or
// nil while the entity does not exist.
func Entity(name, id string) Descriptor {
	return Descriptor{
		Name: name,
		Selector: func(entities ecs.Reader, _ system.Settings) any {
			e, ok := entities.QueryByID(id)
			if !ok {
				return nil
			}
			data, _ := ecs.Clone(e.Data).(ecs.Data)
			return map[string]any(data)
		},
	}
}

// IDs returns a descriptor listing the IDs of entities that carry every one
// of the given component types, in query order.
func IDs(name string, components ...string) Descriptor {
	required := append([]string(nil), components...)
	return Descriptor{
		Name: name,
		Selector: func(entities ecs.Reader, _ system.Settings) any {
			return ecs.IDs(entities.QueryByTypes(required...))
		},
	}
}
