package world

import (
	"maps"

	"github.com/google/uuid"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/system"
	"github.com/roach88/playstate/internal/view"
)

// ComponentDef registers a component type. A non-nil Default is cloned into
// every entity declared after the component, unless the entity sets it.
type ComponentDef struct {
	Name    string
	Default any
}

// EntityDef is a seed entity.
type EntityDef struct {
	ID   string
	Data ecs.Data
}

// Definition is the immutable description of a world.
type Definition struct {
	Params     map[string]any
	Components []ComponentDef
	Entities   []EntityDef
	Systems    []system.Factory
	Views      []view.Descriptor
}

// Plugin extends a Builder with components, entities, systems or views.
type Plugin func(*Builder)

// Builder accumulates a Definition. Methods return the builder for chaining.
type Builder struct {
	def Definition
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{def: Definition{Params: map[string]any{}}}
}

// WithParams merges params into the world parameters.
func (b *Builder) WithParams(params map[string]any) *Builder {
	maps.Copy(b.def.Params, params)
	return b
}

// WithComponent registers a component type with an optional default.
func (b *Builder) WithComponent(name string, def any) *Builder {
	b.def.Components = append(b.def.Components, ComponentDef{Name: name, Default: def})
	return b
}

// WithEntity declares a seed entity. An empty id is replaced by a random
// UUID. data is laid over clones of the defaults registered so far.
func (b *Builder) WithEntity(id string, data ecs.Data) *Builder {
	if id == "" {
		id = uuid.NewString()
	}
	merged := make(ecs.Data, len(b.def.Components)+len(data))
	for _, c := range b.def.Components {
		if c.Default != nil {
			merged[c.Name] = ecs.Clone(c.Default)
		}
	}
	maps.Copy(merged, data)
	b.def.Entities = append(b.def.Entities, EntityDef{ID: id, Data: merged})
	return b
}

// WithSystem appends a system factory. Declaration order is pipeline order.
func (b *Builder) WithSystem(f system.Factory) *Builder {
	b.def.Systems = append(b.def.Systems, f)
	return b
}

// WithView declares a view.
func (b *Builder) WithView(d view.Descriptor) *Builder {
	b.def.Views = append(b.def.Views, d)
	return b
}

// Use applies plugins in order.
func (b *Builder) Use(plugins ...Plugin) *Builder {
	for _, p := range plugins {
		p(b)
	}
	return b
}

// Build returns a copy of the accumulated definition.
func (b *Builder) Build() Definition {
	d := Definition{
		Params:     maps.Clone(b.def.Params),
		Components: append([]ComponentDef(nil), b.def.Components...),
		Entities:   make([]EntityDef, len(b.def.Entities)),
		Systems:    append([]system.Factory(nil), b.def.Systems...),
		Views:      append([]view.Descriptor(nil), b.def.Views...),
	}
	for i, e := range b.def.Entities {
		d.Entities[i] = EntityDef{ID: e.ID, Data: ecs.Clone(e.Data).(ecs.Data)}
	}
	return d
}
