// Package system builds the ordered set of systems that make up a world.
//
// A system is constructed by a Factory. Factories run concurrently and the
// resulting systems keep declaration order, which is also the order in which
// their event handlers are consulted. Construction is all-or-nothing: if any
// factory fails, no registry is produced.
//
// After construction the host (the world) binds itself and Ready hooks run
// sequentially in declaration order. Hooks may dispatch events.
package system
