package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roach88/playstate/internal/config"
	"github.com/roach88/playstate/internal/definition"
	"github.com/roach88/playstate/internal/frame"
	"github.com/roach88/playstate/internal/scheduler"
	"github.com/roach88/playstate/internal/trace"
	"github.com/roach88/playstate/internal/world"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	Frames     bool
	Duration   time.Duration
	Dispatch   []string
	Profile    string // "", "cpu" or "mem"
	ProfileDir string

	// IDs overrides the event ID generator chosen by the config.
	IDs scheduler.IDGenerator
}

// RunSummary is what the run command reports once the world stops.
type RunSummary struct {
	World    string `json:"world"`
	RunID    string `json:"run_id,omitempty"`
	Events   int    `json:"events"`
	Failed   int    `json:"failed"`
	Flushes  int    `json:"flushes"`
	Entities int    `json:"entities"`
}

func (s RunSummary) String() string {
	return fmt.Sprintf("World %s stopped: %d events (%d failed) in %d flushes, %d entities",
		s.World, s.Events, s.Failed, s.Flushes, s.Entities)
}

type dispatch struct {
	Type    string
	Payload any
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <world-file>",
		Short: "Run a world",
		Long: `Load a world file, start its systems and drive it with events.

Events given with --dispatch are queued once the world is ready. Without
--frames or --duration the command stops when they have settled; otherwise
it runs until the duration elapses or it receives SIGINT/SIGTERM.

A payload follows the event type after '=' and is parsed as YAML.

Examples:
  playstate run ./arena.yaml --dispatch 'attack={by: hero}'
  playstate run ./arena.cue --frames --duration 5s --db ./trace.db
  playstate run ./arena.yaml --frames --profile cpu`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorld(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace into this SQLite database (overrides trace.path)")
	cmd.Flags().BoolVar(&opts.Frames, "frames", false, "enable the frame plugin")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long")
	cmd.Flags().StringArrayVar(&opts.Dispatch, "dispatch", nil, "event to dispatch, as type or type=payload (repeatable)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "write a profile (cpu|mem)")
	cmd.Flags().StringVar(&opts.ProfileDir, "profile-dir", ".", "directory for profile output")

	return cmd
}

func runWorld(opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.Load()
	if err != nil {
		return err
	}
	logger := opts.Logger
	out := opts.formatter(cmd)

	stopProfile, err := startProfile(opts.Profile, opts.ProfileDir)
	if err != nil {
		return err
	}
	defer stopProfile()

	events, err := parseDispatches(opts.Dispatch)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --dispatch", err)
	}

	file, err := definition.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load world", err)
	}
	frames := opts.Frames || cfg.Frame.Enabled
	var build []definition.BuildOption
	if frames {
		build = append(build,
			definition.WithPlugins(definition.PluginFrame),
			definition.WithFrameOptions(
				frame.WithInterval(cfg.Frame.Interval),
				frame.WithLogger(logger),
			),
		)
	}
	def, err := file.Definition(build...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build world", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	w, err := world.Open(ctx, def,
		world.WithLogger(logger),
		world.WithIDGenerator(eventIDs(opts.IDs, cfg)),
		world.WithMaxStackDepth(cfg.Scheduler.MaxStackDepth),
		world.WithParams(cfg.World.Params),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "world failed to start", err)
	}
	defer w.Close()

	summary := RunSummary{World: worldName(file)}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Trace.Path
	}
	var rec *trace.Recorder
	if dbPath != "" {
		db, err := trace.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("error closing trace database", zap.Error(err))
			}
		}()
		// Writes must outlive ctx so the final flush is recorded after a signal.
		rec, err = db.Record(context.WithoutCancel(ctx), w, summary.World, trace.WithLogger(logger.Named("trace")))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start recording", err)
		}
		summary.RunID = rec.RunID()
	}

	untilSettled := len(events) > 0 && !frames && opts.Duration == 0
	w.OnEvent(func(_ scheduler.Event, res scheduler.Result) {
		summary.Events++
		if !res.OK {
			summary.Failed++
		}
	})
	w.OnSettled(func(scheduler.FlushStats) {
		summary.Flushes++
		if untilSettled && w.Scheduler().Pending() == 0 {
			cancel()
		}
	})

	for _, ev := range events {
		if _, err := w.Dispatch(ev.Type, ev.Payload); err != nil {
			return WrapExitError(ExitFailure, "dispatch failed", err)
		}
	}

	logger.Info("world running",
		zap.String("world", summary.World),
		zap.Strings("systems", w.Systems()),
		zap.Bool("frames", frames),
		zap.String("trace", dbPath),
	)
	out.Printf("World %s running. Press Ctrl-C to stop.\n", summary.World)

	if err := w.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "world loop error", err)
	}

	if rec != nil {
		if err := rec.Close(); err != nil {
			return WrapExitError(ExitFailure, "failed to finish trace", err)
		}
		if err := rec.Err(); err != nil {
			return WrapExitError(ExitFailure, "trace recording failed", err)
		}
	}
	summary.Entities = w.Store().Len()
	logger.Info("world stopped", zap.Int("events", summary.Events), zap.Int("flushes", summary.Flushes))

	if opts.Format == "json" {
		return out.Respond(CLIResponse{Status: "ok", Data: summary, RunID: summary.RunID})
	}
	return out.Success(summary)
}

// parseDispatches turns "type" and "type=payload" flags into events.
func parseDispatches(flags []string) ([]dispatch, error) {
	out := make([]dispatch, 0, len(flags))
	for _, f := range flags {
		typ, raw, hasPayload := strings.Cut(f, "=")
		typ = strings.TrimSpace(typ)
		if typ == "" {
			return nil, fmt.Errorf("%q: event type is empty", f)
		}
		d := dispatch{Type: typ}
		if hasPayload {
			if err := yaml.Unmarshal([]byte(raw), &d.Payload); err != nil {
				return nil, fmt.Errorf("%q: payload: %w", f, err)
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func eventIDs(override scheduler.IDGenerator, cfg *config.Config) scheduler.IDGenerator {
	if override != nil {
		return override
	}
	if cfg.Scheduler.IDs == "sequential" {
		return scheduler.NewSequentialGenerator("evt")
	}
	return scheduler.UUIDv7Generator{}
}

func worldName(f *definition.File) string {
	if f.Name != "" {
		return f.Name
	}
	base := filepath.Base(f.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func startProfile(mode, dir string) (stop func(), err error) {
	var kind func(*profile.Profile)
	switch mode {
	case "":
		return func() {}, nil
	case "cpu":
		kind = profile.CPUProfile
	case "mem":
		kind = profile.MemProfileAllocs
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --profile %q: must be cpu or mem", mode))
	}
	p := profile.Start(kind, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet)
	return p.Stop, nil
}
