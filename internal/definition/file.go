package definition

import (
	"fmt"
	"slices"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/frame"
	"github.com/roach88/playstate/internal/rules"
	"github.com/roach88/playstate/internal/view"
	"github.com/roach88/playstate/internal/world"
)

// File is the decoded form of a world file.
type File struct {
	Name       string         `yaml:"name"`
	Plugins    []string       `yaml:"plugins,omitempty"`
	Params     map[string]any `yaml:"params,omitempty"`
	Components []Component    `yaml:"components,omitempty"`
	Entities   []Entity       `yaml:"entities,omitempty"`
	Rules      []rules.Rule   `yaml:"rules,omitempty"`
	Views      []View         `yaml:"views,omitempty"`

	// Path is the file the definition was read from, if any.
	Path string `yaml:"-"`
}

// Component declares a component type and its optional default.
type Component struct {
	Name    string `yaml:"name"`
	Default any    `yaml:"default,omitempty"`
}

// Entity declares a seed entity. An empty ID is generated.
type Entity struct {
	ID   string         `yaml:"id,omitempty"`
	Data map[string]any `yaml:"data,omitempty"`
}

// View declares a derived value. Exactly one of Count, Entity or IDs is set.
type View struct {
	Name   string   `yaml:"name"`
	Count  []string `yaml:"count,omitempty"`
	Entity string   `yaml:"entity,omitempty"`
	IDs    []string `yaml:"ids,omitempty"`
}

// Built-in plugin names.
const (
	PluginFrame  = "frame"
	PluginMotion = "motion"
)

// pluginOrder is the order plugins are installed in, whatever the file
// lists. Frame data is recorded before motion reads it.
var pluginOrder = []string{PluginFrame, PluginMotion}

// Descriptor returns the view descriptor for v.
func (v View) Descriptor() (view.Descriptor, error) {
	set := 0
	if v.Count != nil {
		set++
	}
	if v.Entity != "" {
		set++
	}
	if v.IDs != nil {
		set++
	}
	if set != 1 {
		return view.Descriptor{}, fmt.Errorf("view %q: exactly one of count, entity or ids is required", v.Name)
	}
	switch {
	case v.Count != nil:
		return view.Count(v.Name, v.Count...), nil
	case v.Entity != "":
		return view.Entity(v.Name, v.Entity), nil
	default:
		return view.IDs(v.Name, v.IDs...), nil
	}
}

// Validate reports the first structural problem in f. Rule actions are
// compiled as part of validation.
func (f *File) Validate() error {
	for _, p := range f.Plugins {
		if !slices.Contains(pluginOrder, p) {
			return f.invalid("plugins", fmt.Sprintf("unknown plugin %q", p))
		}
	}

	components := make(map[string]bool, len(f.Components))
	for i, c := range f.Components {
		if c.Name == "" {
			return f.invalid(fmt.Sprintf("components[%d]", i), "name is required")
		}
		if components[c.Name] {
			return f.invalid(fmt.Sprintf("components[%d]", i), fmt.Sprintf("duplicate component %q", c.Name))
		}
		components[c.Name] = true
	}

	entities := make(map[string]bool, len(f.Entities))
	for i, e := range f.Entities {
		if e.ID == "" {
			continue
		}
		if entities[e.ID] {
			return f.invalid(fmt.Sprintf("entities[%d]", i), fmt.Sprintf("duplicate entity %q", e.ID))
		}
		entities[e.ID] = true
	}

	names := make(map[string]bool, len(f.Rules))
	for i, r := range f.Rules {
		if names[r.Name] {
			return f.invalid(fmt.Sprintf("rules[%d]", i), fmt.Sprintf("duplicate rule %q", r.Name))
		}
		names[r.Name] = true
		if err := rules.Validate(r); err != nil {
			return &LoadError{Path: f.Path, Code: ErrCodeRule, Field: fmt.Sprintf("rules[%d]", i), Message: err.Error(), Err: err}
		}
	}

	views := make(map[string]bool, len(f.Views))
	for i, v := range f.Views {
		field := fmt.Sprintf("views[%d]", i)
		if v.Name == "" {
			return f.invalid(field, "name is required")
		}
		if views[v.Name] {
			return f.invalid(field, fmt.Sprintf("duplicate view %q", v.Name))
		}
		views[v.Name] = true
		if _, err := v.Descriptor(); err != nil {
			return f.invalid(field, err.Error())
		}
	}
	return nil
}

func (f *File) invalid(field, msg string) error {
	return &LoadError{Path: f.Path, Code: ErrCodeInvalid, Field: field, Message: msg}
}

// BuildOption adjusts how a file becomes a definition.
type BuildOption func(*buildConfig)

type buildConfig struct {
	plugins []string
	frame   []frame.Option
}

// WithPlugins enables plugins in addition to those the file lists.
func WithPlugins(names ...string) BuildOption {
	return func(c *buildConfig) { c.plugins = append(c.plugins, names...) }
}

// WithFrameOptions configures the frame plugin when it is enabled.
func WithFrameOptions(opts ...frame.Option) BuildOption {
	return func(c *buildConfig) { c.frame = append(c.frame, opts...) }
}

// Builder validates f and returns a builder seeded from it, so callers can
// add systems or views of their own before building.
func (f *File) Builder(opts ...BuildOption) (*world.Builder, error) {
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	for _, p := range cfg.plugins {
		if !slices.Contains(pluginOrder, p) {
			return nil, f.invalid("plugins", fmt.Sprintf("unknown plugin %q", p))
		}
	}

	b := world.NewBuilder().WithParams(f.Params)

	enabled := append(slices.Clone(f.Plugins), cfg.plugins...)
	for _, p := range pluginOrder {
		if !slices.Contains(enabled, p) {
			continue
		}
		switch p {
		case PluginFrame:
			b.Use(frame.Plugin(cfg.frame...))
		case PluginMotion:
			b.Use(frame.Motion())
		}
	}

	for _, c := range f.Components {
		b.WithComponent(c.Name, c.Default)
	}
	for _, e := range f.Entities {
		b.WithEntity(e.ID, ecs.Data(e.Data))
	}

	factories, err := rules.Factories(f.Rules)
	if err != nil {
		return nil, &LoadError{Path: f.Path, Code: ErrCodeRule, Field: "rules", Message: err.Error(), Err: err}
	}
	for _, fac := range factories {
		b.WithSystem(fac)
	}

	for _, v := range f.Views {
		d, err := v.Descriptor()
		if err != nil {
			return nil, f.invalid("views", err.Error())
		}
		b.WithView(d)
	}
	return b, nil
}

// Definition validates f and builds its world definition.
func (f *File) Definition(opts ...BuildOption) (world.Definition, error) {
	b, err := f.Builder(opts...)
	if err != nil {
		return world.Definition{}, err
	}
	return b.Build(), nil
}
