// Package view derives named values from world state and notifies
// subscribers when a value changes after a flush settles.
package view

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/ecs"
	"github.com/roach88/playstate/internal/system"
)

var (
	// ErrUnknownView is returned for a name no descriptor declares.
	ErrUnknownView = errors.New("unknown view")
	// ErrInvalidView is returned by NewLayer for malformed descriptors.
	ErrInvalidView = errors.New("invalid view")
)

// Selector computes a view value from the entities and world settings.
type Selector func(entities ecs.Reader, settings system.Settings) any

// Descriptor declares a view.
type Descriptor struct {
	Name     string
	Selector Selector
	// Equal compares an old and new value. Nil means reflect.DeepEqual.
	Equal func(a, b any) bool
}

// Listener receives a view's value.
type Listener func(value any)

type subscription struct {
	id int
	fn Listener
}

type cached struct {
	value any
	valid bool
}

// Layer holds the view descriptors, their last computed values and their
// subscribers.
//
// Thread-safety: all methods are safe for concurrent use. Selectors and
// listeners run without the layer lock held, so listeners may call Get.
type Layer struct {
	views    []Descriptor
	byName   map[string]int
	entities ecs.Reader
	settings system.Settings
	logger   *zap.Logger

	mu     sync.Mutex
	cache  map[string]cached
	subs   map[string][]subscription
	nextID int
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the diagnostics sink. Default: a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Layer) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewLayer validates the descriptors and creates an empty layer.
// Values are computed on first Get, Subscribe or Update.
func NewLayer(views []Descriptor, entities ecs.Reader, settings system.Settings, opts ...Option) (*Layer, error) {
	l := &Layer{
		views:    append([]Descriptor(nil), views...),
		byName:   make(map[string]int, len(views)),
		entities: entities,
		settings: settings,
		logger:   zap.NewNop(),
		cache:    make(map[string]cached, len(views)),
		subs:     make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(l)
	}
	for i, d := range l.views {
		switch {
		case d.Name == "":
			return nil, fmt.Errorf("%w: view #%d has no name", ErrInvalidView, i)
		case d.Selector == nil:
			return nil, fmt.Errorf("%w: view %q has no selector", ErrInvalidView, d.Name)
		}
		if _, dup := l.byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate view %q", ErrInvalidView, d.Name)
		}
		l.byName[d.Name] = i
	}
	return l, nil
}

// Names returns the declared view names in declaration order.
func (l *Layer) Names() []string {
	out := make([]string, len(l.views))
	for i, d := range l.views {
		out[i] = d.Name
	}
	return out
}

// Get recomputes the named view, caches and returns it.
func (l *Layer) Get(name string) (any, error) {
	d, err := l.lookup(name)
	if err != nil {
		return nil, err
	}
	v, err := l.compute(d)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[name] = cached{value: v, valid: true}
	l.mu.Unlock()
	return v, nil
}

// Get returns the named view as T.
func Get[T any](l *Layer, name string) (T, error) {
	var zero T
	v, err := l.Get(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("view %q: value is %T, not %T", name, v, zero)
	}
	return t, nil
}

type subscribeConfig struct {
	lazy bool
	ctx  context.Context
}

// SubscribeOption configures Subscribe.
type SubscribeOption func(*subscribeConfig)

// Lazy skips the immediate call with the current value.
func Lazy() SubscribeOption {
	return func(c *subscribeConfig) { c.lazy = true }
}

// Until unsubscribes when ctx is done.
func Until(ctx context.Context) SubscribeOption {
	return func(c *subscribeConfig) { c.ctx = ctx }
}

// Subscribe registers fn for changes of the named view. Unless Lazy is
// given, fn is called right away with the current value. The returned
// cancel func is idempotent.
func (l *Layer) Subscribe(name string, fn Listener, opts ...SubscribeOption) (cancel func(), err error) {
	d, err := l.lookup(name)
	if err != nil {
		return nil, err
	}
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs[name] = append(l.subs[name], subscription{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	cancel = func() { once.Do(func() { l.unsubscribe(name, id) }) }
	if cfg.ctx != nil {
		stop := context.AfterFunc(cfg.ctx, cancel)
		inner := cancel
		cancel = func() {
			stop()
			inner()
		}
	}

	if !cfg.lazy {
		v, err := l.compute(d)
		if err != nil {
			cancel()
			return nil, err
		}
		l.mu.Lock()
		l.cache[name] = cached{value: v, valid: true}
		l.mu.Unlock()
		l.call(name, fn, v)
	}
	return cancel, nil
}

func (l *Layer) unsubscribe(name string, id int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	subs := l.subs[name]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(l.subs, name)
		return
	}
	l.subs[name] = subs
}

// Subscribers returns the number of listeners on the named view.
func (l *Layer) Subscribers(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs[name])
}

// Update recomputes every view in declaration order and notifies the
// listeners of each view whose value changed. A failing selector or
// listener is logged and does not stop the others.
func (l *Layer) Update() {
	for _, d := range l.views {
		v, err := l.compute(d)
		if err != nil {
			l.logger.Error("view update failed", zap.String("view", d.Name), zap.Error(err))
			continue
		}

		l.mu.Lock()
		old := l.cache[d.Name]
		l.cache[d.Name] = cached{value: v, valid: true}
		subs := append([]subscription(nil), l.subs[d.Name]...)
		l.mu.Unlock()

		if old.valid && equal(d, old.value, v) {
			continue
		}
		for _, s := range subs {
			l.call(d.Name, s.fn, v)
		}
	}
}

func (l *Layer) lookup(name string) (Descriptor, error) {
	i, ok := l.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownView, name)
	}
	return l.views[i], nil
}

func (l *Layer) compute(d Descriptor) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("view %q selector panicked: %v", d.Name, r)
		}
	}()
	return d.Selector(l.entities, l.settings), nil
}

func (l *Layer) call(name string, fn Listener, v any) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("view listener panicked",
				zap.String("view", name),
				zap.Any("panic", r),
			)
		}
	}()
	fn(v)
}

func equal(d Descriptor, a, b any) bool {
	if d.Equal != nil {
		return d.Equal(a, b)
	}
	return reflect.DeepEqual(a, b)
}
