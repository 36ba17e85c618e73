package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/playstate/internal/codec"
	"github.com/roach88/playstate/internal/trace"
)

// Snapshot is the golden form of a run: everything deterministic about it.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Trace    []TraceEvent   `json:"trace"`
	Settles  []trace.Settle `json:"settles"`
	Entities map[string]any `json:"entities"`
	Views    map[string]any `json:"views"`
}

// SnapshotOf builds the golden snapshot of a result.
func SnapshotOf(name string, r *Result) Snapshot {
	return Snapshot{
		Scenario: name,
		Trace:    r.Trace,
		Settles:  r.Settles,
		Entities: r.Entities,
		Views:    r.Views,
	}
}

// MarshalSnapshot renders a snapshot as canonical JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return codec.Marshal(s)
}

// RunWithGolden runs a scenario, fails t on unmet expectations, and
// compares the snapshot with testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, s *Scenario) error {
	t.Helper()

	result, err := Run(t.Context(), s)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(SnapshotOf(name, result))
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
