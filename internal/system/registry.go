package system

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/scheduler"
)

// Registry is the constructed, ordered set of systems.
//
// INVARIANTS:
//   - systems keep factory declaration order
//   - names are unique
type Registry struct {
	systems  []System
	byName   map[string]int
	settings Settings
	logger   *zap.Logger
}

// InitOption configures Initialize.
type InitOption func(*initConfig)

type initConfig struct {
	logger *zap.Logger
}

// WithLogger sets the diagnostics sink. Default: a no-op logger.
func WithLogger(l *zap.Logger) InitOption {
	return func(c *initConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Initialize runs every factory concurrently and waits for all of them.
//
// The first failure cancels the context passed to the remaining factories
// and is returned as an *InitError; no registry is returned in that case.
// A factory panic is recovered and reported the same way.
func Initialize(ctx context.Context, factories []Factory, store *ecs.Store, settings Settings, opts ...InitOption) (*Registry, error) {
	cfg := initConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	frozen := Settings{Params: maps.Clone(settings.Params)}
	if frozen.Params == nil {
		frozen.Params = map[string]any{}
	}

	built := make([]System, len(factories))
	g, gctx := errgroup.WithContext(ctx)
	for i, factory := range factories {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &InitError{Stage: StageFactory, Index: i, Panicked: true, Err: fmt.Errorf("%v", r)}
				}
			}()

			sys, err := factory(gctx, store, frozen)
			if err != nil {
				return &InitError{Stage: StageFactory, Index: i, Err: err}
			}
			if sys == nil {
				return &InitError{Stage: StageFactory, Index: i, Err: ErrNilSystem}
			}
			built[i] = sys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cfg.logger.Error("system initialization failed", zap.Error(err))
		return nil, err
	}

	r := &Registry{
		systems:  built,
		byName:   make(map[string]int, len(built)),
		settings: frozen,
		logger:   cfg.logger,
	}
	for i, sys := range built {
		name := sys.Name()
		if prev, dup := r.byName[name]; dup {
			err := &InitError{
				Stage:  StageFactory,
				Index:  i,
				System: name,
				Err:    fmt.Errorf("%w: also declared at #%d", ErrDuplicateName, prev),
			}
			cfg.logger.Error("system initialization failed", zap.Error(err))
			return nil, err
		}
		r.byName[name] = i
	}

	cfg.logger.Debug("systems constructed", zap.Strings("systems", r.Names()))
	return r, nil
}

// Systems returns the systems in declaration order.
func (r *Registry) Systems() []System {
	return append([]System(nil), r.systems...)
}

// Names returns the system names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.systems))
	for i, sys := range r.systems {
		names[i] = sys.Name()
	}
	return names
}

// Handlers returns the pipeline stages: systems with an event handler, in
// declaration order.
func (r *Registry) Handlers() []scheduler.Handler {
	var out []scheduler.Handler
	for _, sys := range r.systems {
		h, ok := sys.(scheduler.Handler)
		if !ok {
			continue
		}
		if f, ok := sys.(interface{ handlesEvents() bool }); ok && !f.handlesEvents() {
			continue
		}
		out = append(out, h)
	}
	return out
}

// Lookup returns a system by name.
func (r *Registry) Lookup(name string) (System, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.systems[i], true
}

// Settings returns the frozen settings the factories saw.
func (r *Registry) Settings() Settings {
	return r.settings
}

// Ready runs every Ready hook sequentially in declaration order. The first
// failing or panicking hook stops the sequence and is returned as an
// *InitError.
func (r *Registry) Ready(host Host) error {
	for i, sys := range r.systems {
		rd, ok := sys.(Readier)
		if !ok {
			continue
		}
		if err := runReady(rd, host); err != nil {
			ie := &InitError{Stage: StageReady, Index: i, System: sys.Name(), Err: err}
			if p, ok := err.(hookPanic); ok {
				ie.Panicked = true
				ie.Err = p.err
			}
			r.logger.Error("ready hook failed", zap.String("system", sys.Name()), zap.Error(ie))
			return ie
		}
	}
	return nil
}

type hookPanic struct{ err error }

func (p hookPanic) Error() string { return p.err.Error() }

func runReady(rd Readier, host Host) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = hookPanic{err: fmt.Errorf("%v", r)}
		}
	}()
	return rd.Ready(host)
}
