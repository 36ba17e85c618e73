package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/playstate/internal/codec"
	"github.com/roach88/playstate/internal/scheduler"
)

// Source is anything emitting event and settle signals, such as a world.
type Source interface {
	OnEvent(fn scheduler.EventListener) (cancel func())
	OnSettled(fn scheduler.SettleListener) (cancel func())
}

// ErrRecorderClosed is returned by Close on a second call.
var ErrRecorderClosed = errors.New("trace: recorder closed")

// Recorder writes one run into a DB.
type Recorder struct {
	db     *DB
	ctx    context.Context
	runID  string
	logger *zap.Logger

	mu       sync.Mutex
	pending  []row
	position int64
	flushes  int64
	err      error
	closed   bool
	cancels  []func()
}

type row struct {
	position int64
	ev       scheduler.Event
	res      scheduler.Result
}

// RecordOption configures a Recorder.
type RecordOption func(*Recorder)

// WithRunID fixes the run ID instead of generating a UUIDv7.
func WithRunID(id string) RecordOption {
	return func(r *Recorder) { r.runID = id }
}

// WithLogger reports write failures and unencodable payloads.
func WithLogger(l *zap.Logger) RecordOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// Record starts a run named world and subscribes to src. Writes use ctx;
// once it ends, further flushes fail and are reported by Err.
func (d *DB) Record(ctx context.Context, src Source, world string, opts ...RecordOption) (*Recorder, error) {
	r := &Recorder{db: d, ctx: ctx, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		r.runID = id.String()
	}

	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (id, world, started_at) VALUES (?, ?, ?)`,
		r.runID, world, time.Now().UnixNano(),
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	r.cancels = []func(){
		src.OnEvent(r.onEvent),
		src.OnSettled(r.onSettled),
	}
	return r, nil
}

// RunID identifies the run being recorded.
func (r *Recorder) RunID() string { return r.runID }

// Err returns the first write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) onEvent(ev scheduler.Event, res scheduler.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.position++
	r.pending = append(r.pending, row{position: r.position, ev: ev, res: res})
}

func (r *Recorder) onSettled(st scheduler.FlushStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.flushes = st.Flush
	rows := r.pending
	r.pending = nil
	if err := r.write(rows, st.Flush, &st); err != nil && r.err == nil {
		r.err = err
		r.logger.Error("trace write failed", zap.String("run", r.runID), zap.Error(err))
	}
}

// Close unsubscribes and writes events of an unsettled flush, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderClosed
	}
	r.closed = true
	for _, cancel := range r.cancels {
		cancel()
	}
	if len(r.pending) > 0 {
		rows := r.pending
		r.pending = nil
		if err := r.write(rows, r.flushes+1, nil); err != nil && r.err == nil {
			r.err = err
		}
	}
	return r.err
}

// write stores rows and, when st is non-nil, the settle row, in one
// transaction. Callers hold r.mu.
func (r *Recorder) write(rows []row, flush int64, st *scheduler.FlushStats) error {
	tx, err := r.db.db.BeginTx(r.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(r.ctx, `
		INSERT INTO events
		(run_id, position, seq, id, type, parent_id, timestamp, payload, ok, result, error, code, flush)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, rw := range rows {
		var parent sql.NullString
		if rw.ev.Parent != nil {
			parent = sql.NullString{String: rw.ev.Parent.ID, Valid: true}
		}
		var result, errText, code sql.NullString
		if rw.res.OK {
			result = sql.NullString{String: r.encode(rw.ev, "result", rw.res.Data), Valid: true}
		} else if rw.res.Err != nil {
			errText = sql.NullString{String: rw.res.Err.Error(), Valid: true}
			if c := scheduler.CodeOf(rw.res.Err); c != "" {
				code = sql.NullString{String: string(c), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(r.ctx,
			r.runID, rw.position, rw.ev.Seq, rw.ev.ID, rw.ev.Type, parent,
			rw.ev.Timestamp.UnixNano(), r.encode(rw.ev, "payload", rw.ev.Payload),
			rw.res.OK, result, errText, code, flush,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", rw.ev, err)
		}
	}

	if st != nil {
		if _, err := tx.ExecContext(r.ctx,
			`INSERT INTO settles (run_id, flush, events) VALUES (?, ?, ?)`,
			r.runID, st.Flush, st.Events,
		); err != nil {
			return fmt.Errorf("insert settle %d: %w", st.Flush, err)
		}
	}
	return tx.Commit()
}

// encode returns canonical JSON for v. Values that cannot be encoded are
// replaced by a marker so the rest of the run is still recorded.
func (r *Recorder) encode(ev scheduler.Event, field string, v any) string {
	b, err := codec.Marshal(v)
	if err != nil {
		r.logger.Warn("unencodable trace value",
			zap.Stringer("event", ev),
			zap.String("field", field),
			zap.Error(err),
		)
		return string(codec.MustMarshal(map[string]any{"unencodable": fmt.Sprintf("%T", v)}))
	}
	return string(b)
}
