package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoRuns is returned when a filter names no run and the database is empty.
var ErrNoRuns = errors.New("trace: no runs recorded")

// Run is one recorded world run.
type Run struct {
	ID        string    `json:"id"`
	World     string    `json:"world"`
	StartedAt time.Time `json:"started_at"`
	Events    int       `json:"events"`
	Flushes   int       `json:"flushes"`
}

// EventRecord is one stored event and its result.
type EventRecord struct {
	Position  int64     `json:"position"`
	Seq       int64     `json:"seq"`
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ParentID  string    `json:"parent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   string    `json:"payload"`
	OK        bool      `json:"ok"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
	Flush     int64     `json:"flush"`
}

// Settle is one stored flush completion.
type Settle struct {
	Flush  int64 `json:"flush"`
	Events int   `json:"events"`
}

// Filter selects events. Zero fields do not filter; an empty RunID means
// the most recent run.
type Filter struct {
	RunID string
	Type  string
	Flush int64
	Limit int
}

// Runs lists runs, oldest first.
func (d *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.id, r.world, r.started_at,
		       (SELECT COUNT(*) FROM events e WHERE e.run_id = r.id),
		       (SELECT COUNT(*) FROM settles s WHERE s.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at ASC, r.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var started int64
		if err := rows.Scan(&run.ID, &run.World, &started, &run.Events, &run.Flushes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the ID of the most recently started run.
func (d *DB) LatestRun(ctx context.Context) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}

func (d *DB) resolveRun(ctx context.Context, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	return d.LatestRun(ctx)
}

// ReadEvents returns matching events in resolution order.
func (d *DB) ReadEvents(ctx context.Context, f Filter) ([]EventRecord, error) {
	runID, err := d.resolveRun(ctx, f.RunID)
	if err != nil {
		return nil, err
	}

	where := []string{"run_id = ?"}
	args := []any{runID}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Flush > 0 {
		where = append(where, "flush = ?")
		args = append(args, f.Flush)
	}
	query := `
		SELECT position, seq, id, type, parent_id, timestamp, payload, ok, result, error, code, flush
		FROM events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY position ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var (
			ev                       EventRecord
			ts                       int64
			parent, result, errorMsg, code sql.NullString
		)
		if err := rows.Scan(&ev.Position, &ev.Seq, &ev.ID, &ev.Type, &parent, &ts,
			&ev.Payload, &ev.OK, &result, &errorMsg, &code, &ev.Flush); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.ParentID = parent.String
		ev.Timestamp = time.Unix(0, ts).UTC()
		ev.Result = result.String
		ev.Error = errorMsg.String
		ev.Code = code.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadSettles returns the flushes of a run in order. An empty runID means
// the most recent run.
func (d *DB) ReadSettles(ctx context.Context, runID string) ([]Settle, error) {
	runID, err := d.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT flush, events FROM settles WHERE run_id = ? ORDER BY flush ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query settles: %w", err)
	}
	defer rows.Close()

	settles := []Settle{}
	for rows.Next() {
		var s Settle
		if err := rows.Scan(&s.Flush, &s.Events); err != nil {
			return nil, fmt.Errorf("scan settle: %w", err)
		}
		settles = append(settles, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settles: %w", err)
	}
	return settles, nil
}
