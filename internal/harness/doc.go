// Package harness runs YAML scenarios against real worlds.
//
// A scenario names a world file, dispatches events step by step and checks
// each event's result, the resolved event trace and the final entity and
// view state. Runs are deterministic: event IDs are sequential ("evt-1",
// "evt-2", ...), timestamps are fixed, flushes run on a manual executor
// after each step, and the frame plugin never ticks on its own.
//
// Every run is recorded through an in-memory trace database, so the trace
// a scenario sees is exactly what `playstate run --db` would store.
//
// Example scenario:
//
//	name: goblins_take_damage
//	description: An attack hits every goblin once
//	world: worlds/arena.yaml
//	params: {damage: 4}
//	steps:
//	  - dispatch: attack
//	    payload: {by: sword}
//	    expect: {ok: true, data: goblin-1}
//	  - dispatch: ping
//	    expect: {ok: false, code: UNHANDLED}
//	assertions:
//	  - type: trace_order
//	    events: [attack, ping]
//	  - type: entity
//	    id: goblin-2
//	    expect: {hp: 4}
//
// Golden files: RunWithGolden compares a canonical JSON snapshot of the trace
// and final state with testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
