package world

import (
	"sync"

	"github.com/roach88/playstate/internal/scheduler"
)

// gate holds posted tasks until the world is ready, so events dispatched by
// Ready hooks are flushed only after every hook has run.
type gate struct {
	mu     sync.Mutex
	opened bool
	held   []func()
	next   scheduler.Executor
}

func newGate(next scheduler.Executor) *gate {
	return &gate{next: next}
}

func (g *gate) Post(task func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		g.held = append(g.held, task)
		return
	}
	g.next.Post(task)
}

func (g *gate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = true
	for _, task := range g.held {
		g.next.Post(task)
	}
	g.held = nil
}
