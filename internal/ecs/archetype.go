package ecs

import (
	"slices"
	"strings"
)

// GroupCapacity bounds the number of entities stored in one group.
const GroupCapacity = 100

// Archetype is a canonical component type set: sorted, no duplicates.
type Archetype []string

// NewArchetype builds the canonical set for the given names.
func NewArchetype(names ...string) Archetype {
	set := slices.Clone(names)
	slices.Sort(set)
	return Archetype(slices.Compact(set))
}

// Key returns a stable string form of the set, suitable for map keys.
func (a Archetype) Key() string {
	return strings.Join(a, "\x00")
}

// Equal reports whether both sets hold exactly the same names.
func (a Archetype) Equal(b Archetype) bool {
	return slices.Equal(a, b)
}

// Contains reports whether name is in the set.
func (a Archetype) Contains(name string) bool {
	_, found := slices.BinarySearch(a, name)
	return found
}

// SupersetOf reports whether a contains every name of required.
// Both sets are sorted, so this is a single merge walk.
func (a Archetype) SupersetOf(required Archetype) bool {
	i := 0
	for _, name := range required {
		for i < len(a) && a[i] < name {
			i++
		}
		if i == len(a) || a[i] != name {
			return false
		}
		i++
	}
	return true
}

func (a Archetype) String() string {
	return "{" + strings.Join(a, ",") + "}"
}

// group is one capacity-bounded bucket of entities sharing an archetype.
type group struct {
	archetype Archetype
	entities  []*Entity
}

func (g *group) full() bool {
	return len(g.entities) >= GroupCapacity
}

// groupIndex keeps groups in creation order.
// Not safe for concurrent use; Store guards it.
type groupIndex struct {
	groups []*group
}

// insert places e into the first group with an equal archetype and spare
// capacity, or opens a new group at the end. A group with a different
// archetype is never a candidate.
func (x *groupIndex) insert(e *Entity, key Archetype) {
	for _, g := range x.groups {
		if g.archetype.Equal(key) && !g.full() {
			g.entities = append(g.entities, e)
			return
		}
	}
	g := &group{
		archetype: key,
		entities:  make([]*Entity, 0, 8),
	}
	g.entities = append(g.entities, e)
	x.groups = append(x.groups, g)
}

// remove deletes e from every group whose archetype equals key and prunes
// groups left empty.
func (x *groupIndex) remove(e *Entity, key Archetype) {
	pruned := false
	for _, g := range x.groups {
		if !g.archetype.Equal(key) {
			continue
		}
		if i := slices.Index(g.entities, e); i >= 0 {
			g.entities = slices.Delete(g.entities, i, i+1)
		}
		if len(g.entities) == 0 {
			pruned = true
		}
	}
	if pruned {
		x.groups = slices.DeleteFunc(x.groups, func(g *group) bool {
			return len(g.entities) == 0
		})
	}
}

// matching returns the groups whose archetype is a superset of required.
func (x *groupIndex) matching(required Archetype) []*group {
	var out []*group
	for _, g := range x.groups {
		if g.archetype.SupersetOf(required) {
			out = append(out, g)
		}
	}
	return out
}
