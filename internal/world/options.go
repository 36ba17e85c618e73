package world

import (
	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/scheduler"
)

type config struct {
	executor scheduler.Executor
	logger   *zap.Logger
	ids      scheduler.IDGenerator
	now      scheduler.TimeSource
	maxDepth int
	params   map[string]any
}

func defaultConfig() config {
	return config{
		logger: zap.NewNop(),
		ids:    scheduler.UUIDv7Generator{},
	}
}

// Option configures a World.
type Option func(*config)

// WithExecutor runs flushes on exec instead of the world's own loop.
// Run is then unavailable.
func WithExecutor(exec scheduler.Executor) Option {
	return func(c *config) { c.executor = exec }
}

// WithLogger sets the logger shared by every component of the world.
// Default: a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator sets the event identity generator.
func WithIDGenerator(g scheduler.IDGenerator) Option {
	return func(c *config) {
		if g != nil {
			c.ids = g
		}
	}
}

// WithTimeSource sets the event timestamp source.
func WithTimeSource(ts scheduler.TimeSource) Option {
	return func(c *config) { c.now = ts }
}

// WithMaxStackDepth bounds nested Stack calls.
func WithMaxStackDepth(n int) Option {
	return func(c *config) { c.maxDepth = n }
}

// WithParams overrides definition parameters for this instance.
func WithParams(params map[string]any) Option {
	return func(c *config) { c.params = params }
}
