package scheduler

import (
	"sync"

	"go.uber.org/zap"
)

// EventListener observes every resolved event, nested ones included.
type EventListener func(Event, Result)

// FlushStats describes a completed flush.
type FlushStats struct {
	// Flush is the 1-based flush counter.
	Flush int64
	// Events is the number of top-level events popped during the flush,
	// deferred ones included. Stacked children are not counted.
	Events int
}

// SettleListener observes the end of every flush.
type SettleListener func(FlushStats)

// listeners is a registration-ordered set of callbacks.
type listeners[F any] struct {
	mu     sync.Mutex
	nextID int
	items  []listenerEntry[F]
}

type listenerEntry[F any] struct {
	id int
	fn F
}

func (l *listeners[F]) add(fn F) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.items = append(l.items, listenerEntry[F]{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, it := range l.items {
			if it.id == id {
				l.items = append(l.items[:i:i], l.items[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners[F]) snapshot() []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]F, len(l.items))
	for i, it := range l.items {
		out[i] = it.fn
	}
	return out
}

// notify calls each listener, recovering panics so an observer cannot
// abort a flush.
func notify[F any](logger *zap.Logger, signal string, fns []F, call func(F)) {
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("listener panicked",
						zap.String("signal", signal),
						zap.Any("panic", r),
					)
				}
			}()
			call(fn)
		}()
	}
}
