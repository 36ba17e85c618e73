package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/codec"
	"github.com/roach88/playstate/internal/definition"
	"github.com/roach88/playstate/internal/frame"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/trace"
	"github.com/roach88/playstate/internal/world"
)

// Epoch is the timestamp of every event in a scenario run.
var Epoch = time.Unix(0, 0).UTC()

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger receives world and harness diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// idleTicker never fires; scenarios dispatch update events themselves.
func idleTicker(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

// Run executes a scenario in a fresh world and returns its result.
// An error means the scenario could not run at all; failed expectations
// and assertions are reported in the result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With(zap.String("scenario", s.Name))

	file, err := definition.Load(s.World)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	def, err := file.Definition(definition.WithFrameOptions(
		frame.WithTicker(idleTicker),
		frame.WithLogger(logger),
	))
	if err != nil {
		return nil, fmt.Errorf("build world: %w", err)
	}

	db, err := trace.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	defer db.Close()

	exec := scheduler.NewManualExecutor()
	w, err := world.Open(ctx, def,
		world.WithExecutor(exec),
		world.WithIDGenerator(scheduler.NewSequentialGenerator("evt")),
		world.WithTimeSource(scheduler.FixedTime(Epoch)),
		world.WithParams(s.Params),
		world.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open world: %w", err)
	}
	defer w.Close()

	rec, err := db.Record(ctx, w, s.Name, trace.WithRunID(s.Name), trace.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	// Events dispatched by ready hooks.
	exec.RunPending()

	dispatched := make([]scheduler.Event, len(s.Steps))
	for i, step := range s.Steps {
		ev, err := w.Dispatch(step.Dispatch, step.Payload)
		if err != nil {
			return nil, fmt.Errorf("step %d: dispatch %q: %w", i, step.Dispatch, err)
		}
		dispatched[i] = ev
		if !step.Hold {
			n := exec.RunPending()
			logger.Debug("step flushed",
				zap.Int("step", i),
				zap.Stringer("event", ev),
				zap.Int("tasks", n),
			)
		}
	}
	exec.RunPending()

	if err := rec.Close(); err != nil {
		return nil, fmt.Errorf("record trace: %w", err)
	}

	result := NewResult()
	records, err := db.ReadEvents(ctx, trace.Filter{RunID: s.Name})
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		ev, err := traceEventFrom(r)
		if err != nil {
			return nil, err
		}
		result.Trace = append(result.Trace, ev)
	}
	if result.Settles, err = db.ReadSettles(ctx, s.Name); err != nil {
		return nil, err
	}

	if err := snapshotState(w, result); err != nil {
		return nil, err
	}

	for i, step := range s.Steps {
		if step.Expect == nil {
			continue
		}
		ev, ok := result.Event(dispatched[i].ID)
		if !ok {
			result.AddError(fmt.Sprintf("steps[%d] %s: event never resolved", i, step.Dispatch))
			continue
		}
		for _, msg := range checkExpect(ev, *step.Expect) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Dispatch, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}

	logger.Debug("scenario finished",
		zap.Bool("pass", result.Pass),
		zap.Int("events", len(result.Trace)),
		zap.Int("flushes", len(result.Settles)),
	)
	return result, nil
}

// snapshotState copies final entity data and view values into result as
// normalized trees.
func snapshotState(w *world.World, result *Result) error {
	for e := range w.Entities().QueryByTypes() {
		data, err := codec.Normalize(e.Data)
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.ID, err)
		}
		result.Entities[e.ID] = data
	}
	views := w.Views()
	for _, name := range views.Names() {
		v, err := views.Get(name)
		if err != nil {
			return fmt.Errorf("view %s: %w", name, err)
		}
		nv, err := codec.Normalize(v)
		if err != nil {
			return fmt.Errorf("view %s: %w", name, err)
		}
		result.Views[name] = nv
	}
	return nil
}

func checkExpect(ev TraceEvent, want Expect) []string {
	var errs []string
	if want.OK != nil && ev.OK != *want.OK {
		errs = append(errs, fmt.Sprintf("expected ok=%t, got ok=%t (%s)", *want.OK, ev.OK, describe(ev)))
	}
	if want.Data != nil && !matches(ev.Result, want.Data) {
		errs = append(errs, fmt.Sprintf("expected data %s, got %s", show(want.Data), show(ev.Result)))
	}
	if want.Code != "" && ev.Code != want.Code {
		errs = append(errs, fmt.Sprintf("expected code %s, got %q", want.Code, ev.Code))
	}
	if want.Error != "" && !strings.Contains(ev.Error, want.Error) {
		errs = append(errs, fmt.Sprintf("expected error containing %q, got %q", want.Error, ev.Error))
	}
	return errs
}

func describe(ev TraceEvent) string {
	if ev.OK {
		return "result " + show(ev.Result)
	}
	return "error " + ev.Error
}
