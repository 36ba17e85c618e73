package scheduler

import "sync"

// eventQueue is the FIFO of pending events plus the flush-scheduled flag.
//
// Keeping the flag under the same lock as the slice makes "append and decide
// whether a flush must be posted" and "find the queue empty and clear the
// flag" atomic with respect to each other, so a dispatch from another
// goroutine can never fall between a drained flush and the next one.
type eventQueue struct {
	mu        sync.Mutex
	events    []Event
	scheduled bool
	closed    bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
	}
}

// push appends ev to the tail. needFlush is true when the caller must post
// a flush, i.e. none was scheduled.
func (q *eventQueue) push(ev Event) (needFlush bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	q.events = append(q.events, ev)
	if q.scheduled {
		return false, nil
	}
	q.scheduled = true
	return true, nil
}

// pop removes the head event. When the queue is empty it clears the
// scheduled flag and runs onEmpty while still holding the lock.
func (q *eventQueue) pop(onEmpty func()) (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		q.scheduled = false
		if onEmpty != nil {
			onEmpty()
		}
		return Event{}, false
	}

	ev := q.events[0]
	// Release the slot so the payload can be collected.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
