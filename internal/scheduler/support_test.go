package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_FIFOAndScheduling(t *testing.T) {
	q := newEventQueue()

	need, err := q.push(Event{ID: "1"})
	require.NoError(t, err)
	assert.True(t, need, "first push schedules a flush")

	need, err = q.push(Event{ID: "2"})
	require.NoError(t, err)
	assert.False(t, need, "flush already scheduled")

	emptied := 0
	onEmpty := func() { emptied++ }

	ev, ok := q.pop(onEmpty)
	require.True(t, ok)
	assert.Equal(t, "1", ev.ID)
	ev, ok = q.pop(onEmpty)
	require.True(t, ok)
	assert.Equal(t, "2", ev.ID)

	_, ok = q.pop(onEmpty)
	assert.False(t, ok)
	assert.Equal(t, 1, emptied)

	need, err = q.push(Event{ID: "3"})
	require.NoError(t, err)
	assert.True(t, need, "an emptied queue schedules again")
}

func TestEventQueue_Closed(t *testing.T) {
	q := newEventQueue()
	q.close()
	_, err := q.push(Event{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, q.len())
}

func TestSequentialGenerator(t *testing.T) {
	g := NewSequentialGenerator("")
	assert.Equal(t, "evt-1", g.Generate())
	assert.Equal(t, "evt-2", g.Generate())

	p := NewSequentialGenerator("frame")
	assert.Equal(t, "frame-1", p.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	const workers, per = 8, 100

	var wg sync.WaitGroup
	seen := make([][]int64, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				seen[w] = append(seen[w], c.Next())
			}
		}()
	}
	wg.Wait()

	all := map[int64]bool{}
	for _, vs := range seen {
		for _, v := range vs {
			assert.False(t, all[v], "duplicate seq %d", v)
			all[v] = true
		}
	}
	assert.Equal(t, int64(workers*per), c.Current())
}

func TestEvent_LineageAndRoot(t *testing.T) {
	root := Event{ID: "a", Type: "t"}
	mid := Event{ID: "b", Type: "t", Parent: &root}
	leaf := Event{ID: "c", Type: "u", Parent: &mid}

	lineage := leaf.Lineage()
	require.Len(t, lineage, 2)
	assert.Equal(t, "b", lineage[0].ID)
	assert.Equal(t, "a", lineage[1].ID)
	assert.Equal(t, "a", leaf.Root().ID)
	assert.Equal(t, "a", root.Root().ID)
	assert.Empty(t, root.Lineage())
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "success", Success(1).String())
	assert.Equal(t, "failure", Failure(nil).String())
	assert.Equal(t, "failure: nope", Failure(errors.New("nope")).String())
}

func TestErrorHelpers(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &StackDepthError{EventType: "x", Depth: 5, Limit: 4})
	assert.True(t, IsStackDepth(wrapped))
	assert.False(t, IsUnhandled(wrapped))
	assert.Equal(t, CodeStackDepth, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))

	he := &HandlerError{System: "s", EventType: "e", Err: errors.New("inner")}
	assert.True(t, IsHandlerError(he))
	assert.Equal(t, CodeHandlerFailed, CodeOf(he))
}

func TestManualExecutor_RunsNestedPosts(t *testing.T) {
	m := NewManualExecutor()
	var order []int
	m.Post(func() {
		order = append(order, 1)
		m.Post(func() { order = append(order, 3) })
	})
	m.Post(func() { order = append(order, 2) })

	assert.Equal(t, 2, m.Pending())
	assert.Equal(t, 3, m.RunPending())
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, m.Pending())
}

func TestLoop_StopDrainsQueuedTasks(t *testing.T) {
	l := NewLoop()
	ran := 0
	l.Post(func() { ran++ })
	l.Post(func() { ran++ })
	l.Stop()
	l.Post(func() { ran++ })

	require.NoError(t, l.Run(t.Context()))
	assert.Equal(t, 2, ran)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "settled", StateSettled.String())
	assert.Equal(t, "state(9)", State(9).String())
}
