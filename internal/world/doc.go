// Package world assembles a runnable world from a Definition.
//
// A Definition is built with a Builder: parameters, component types with
// default values, seed entities, system factories and views. Plugins are
// functions over the Builder that add several of these at once.
//
// New seeds the store synchronously, then initializes the systems in the
// background. Ready is closed when initialization finishes; Err reports
// whether it failed. Events can only be dispatched once the world is ready,
// except from the systems' Ready hooks.
//
// Flushes run on the world's executor. By default that is a scheduler.Loop
// driven by Run; tests and the scenario harness pass a ManualExecutor.
package world
