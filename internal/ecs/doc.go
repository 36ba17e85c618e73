// Package ecs implements the entity store and its archetype index.
//
// An entity is an identity plus a bag of named components. Entities are
// grouped by their archetype, the exact set of component type names they
// hold when inserted. Groups are capacity-bounded (GroupCapacity) so a
// single scan never walks more than a bounded slice; once a group fills, a
// second group with the same archetype is opened and queries merge across
// both transparently.
//
// # Indexing
//
// Group membership is fixed at insertion time. Adding or deleting keys in
// an entity's Data afterwards does NOT move the entity to another group.
// Callers that change an entity's component set call Store.Reindex, which
// is an explicit remove-then-add.
//
// # Ordering
//
// QueryByTypes yields matching groups in creation order and members of a
// group in insertion order. Pruned groups disappear from the order; a group
// created later for the same archetype is appended at the end.
//
// # Concurrency
//
// The runtime is single-writer: every mutation from a handler happens on the
// scheduler goroutine. The store still carries a read/write lock because
// system factories run concurrently during world initialization and hosts
// may read from other goroutines.
package ecs
