package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	Type     string
	Flush    int64
	Limit    int
	ListRuns bool
}

// LineageEdge links an event to the event it was raised from.
type LineageEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Type   string `json:"type"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID    string              `json:"run_id"`
	World    string              `json:"world"`
	Timeline []trace.EventRecord `json:"timeline"`
	Lineage  []LineageEdge       `json:"lineage"`
	Flushes  []trace.Settle      `json:"flushes"`
	Stats    TraceStats          `json:"stats"`
}

// TraceStats summarizes the selected events.
type TraceStats struct {
	Events    int `json:"events"`
	Failed    int `json:"failed"`
	Unhandled int `json:"unhandled"`
	Flushes   int `json:"flushes"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a recorded run",
		Long: `Show what a recorded run did: every event in resolution order with its
result, which events were raised from which, and how many events each
flush resolved before the world settled.

Without --run the most recent run is shown.

Examples:
  playstate trace --db ./trace.db --runs
  playstate trace --db ./trace.db
  playstate trace --db ./trace.db --run 0190... --type attack
  playstate trace --db ./trace.db --flush 2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to show (default: latest)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only events of this type")
	cmd.Flags().Int64Var(&opts.Flush, "flush", 0, "only events resolved in this flush")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show at most this many events")
	cmd.Flags().BoolVar(&opts.ListRuns, "runs", false, "list recorded runs instead")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	// Opening would create an empty database.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("trace database not found: %s", opts.Database))
	}
	db, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer db.Close()

	runs, err := db.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if opts.ListRuns {
		if out.Format == "json" {
			return out.Success(runs)
		}
		outputRunsText(out.Writer, runs)
		return nil
	}

	if len(runs) == 0 {
		_ = out.Error(ErrCodeNoRuns, "no runs recorded", nil)
		return WrapExitError(ExitCommandError, "nothing to trace", trace.ErrNoRuns)
	}
	run := runs[len(runs)-1]
	if opts.RunID != "" {
		found := false
		for _, r := range runs {
			if r.ID == opts.RunID {
				run, found = r, true
				break
			}
		}
		if !found {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
	}

	events, err := db.ReadEvents(ctx, trace.Filter{
		RunID: run.ID,
		Type:  opts.Type,
		Flush: opts.Flush,
		Limit: opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	settles, err := db.ReadSettles(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flushes", err)
	}

	result := TraceResult{
		RunID:    run.ID,
		World:    run.World,
		Timeline: events,
		Lineage:  buildLineage(events),
		Flushes:  settles,
		Stats:    traceStats(events, settles),
	}

	if out.Format == "json" {
		return out.Respond(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputTraceText(out.Writer, result, opts.Verbose)
	return nil
}

// buildLineage lists parent links among the selected events.
func buildLineage(events []trace.EventRecord) []LineageEdge {
	edges := []LineageEdge{}
	for _, ev := range events {
		if ev.ParentID == "" {
			continue
		}
		edges = append(edges, LineageEdge{Parent: ev.ParentID, Child: ev.ID, Type: ev.Type})
	}
	return edges
}

func traceStats(events []trace.EventRecord, settles []trace.Settle) TraceStats {
	st := TraceStats{Events: len(events), Flushes: len(settles)}
	for _, ev := range events {
		if ev.OK {
			continue
		}
		st.Failed++
		if ev.Code == string(scheduler.CodeUnhandled) {
			st.Unhandled++
		}
	}
	return st
}

func outputRunsText(w io.Writer, runs []trace.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-16s %s  %d events, %d flushes\n",
			r.ID, r.World, r.StartedAt.Format("2006-01-02 15:04:05"), r.Events, r.Flushes)
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s (%s)\n", result.RunID, result.World)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Lineage ===")
	if len(result.Lineage) == 0 {
		fmt.Fprintln(w, "  (no raised events)")
	}
	for _, e := range result.Lineage {
		fmt.Fprintf(w, "  %s -[%s]-> %s\n", truncateID(e.Parent), e.Type, truncateID(e.Child))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Flushes ===")
	if len(result.Flushes) == 0 {
		fmt.Fprintln(w, "  (never settled)")
	}
	for _, s := range result.Flushes {
		fmt.Fprintf(w, "  flush %d: %d events\n", s.Flush, s.Events)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Events:    %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Failed:    %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Unhandled: %d\n", result.Stats.Unhandled)
	fmt.Fprintf(w, "  Flushes:   %d\n", result.Stats.Flushes)
}

func formatTimelineEvent(w io.Writer, ev trace.EventRecord, verbose bool) {
	status := "ok"
	if !ev.OK {
		status = "FAIL"
		if ev.Code != "" {
			status += " " + ev.Code
		}
	}
	fmt.Fprintf(w, "  [%d] #%d %s %s\n", ev.Position, ev.Seq, ev.Type, status)
	if !verbose {
		return
	}
	fmt.Fprintf(w, "       ID: %s\n", truncateID(ev.ID))
	fmt.Fprintf(w, "       Payload: %s\n", ev.Payload)
	if ev.Result != "" {
		fmt.Fprintf(w, "       Result: %s\n", ev.Result)
	}
	if ev.Error != "" {
		fmt.Fprintf(w, "       Error: %s\n", ev.Error)
	}
}

// truncateID shortens long IDs such as UUIDs for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
