package world

import (
	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/scheduler"
)

type eventSub struct {
	id int
	fn scheduler.EventListener
}

type settleSub struct {
	id int
	fn scheduler.SettleListener
}

// OnEvent registers a listener called once per resolved event. Listeners
// may be registered before the world is ready.
func (w *World) OnEvent(fn scheduler.EventListener) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSub++
	id := w.nextSub
	w.onEvent = append(w.onEvent, eventSub{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.onEvent {
			if s.id == id {
				w.onEvent = append(w.onEvent[:i:i], w.onEvent[i+1:]...)
				return
			}
		}
	}
}

// OnSettled registers a listener called once per flush, after the views
// have been updated.
func (w *World) OnSettled(fn scheduler.SettleListener) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSub++
	id := w.nextSub
	w.onSettled = append(w.onSettled, settleSub{id: id, fn: fn})
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.onSettled {
			if s.id == id {
				w.onSettled = append(w.onSettled[:i:i], w.onSettled[i+1:]...)
				return
			}
		}
	}
}

func (w *World) emitEvent(ev scheduler.Event, res scheduler.Result) {
	w.mu.Lock()
	subs := append([]eventSub(nil), w.onEvent...)
	w.mu.Unlock()
	for _, s := range subs {
		w.safely("event", func() { s.fn(ev, res) })
	}
}

func (w *World) emitSettled(st scheduler.FlushStats) {
	w.mu.Lock()
	subs := append([]settleSub(nil), w.onSettled...)
	w.mu.Unlock()
	for _, s := range subs {
		w.safely("settled", func() { s.fn(st) })
	}
}

func (w *World) safely(signal string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("world listener panicked",
				zap.String("signal", signal),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
