package ecs

import (
	"iter"
	"sync"

	"go.uber.org/zap"
)

// Reader is the read-only view of a store handed to views and hosts.
type Reader interface {
	QueryByID(id string) (*Entity, bool)
	QueryByTypes(required ...string) iter.Seq[*Entity]
}

// record remembers the archetype an entity was indexed under, so removal
// finds its group even if the entity's keys changed since.
type record struct {
	entity *Entity
	key    Archetype
}

// Store owns entity identities and the archetype index.
type Store struct {
	mu     sync.RWMutex
	index  map[string]record
	groups groupIndex
	logger *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the diagnostics sink. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		index:  make(map[string]record, 256),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add indexes an entity. Adding an identity that already exists is a no-op.
func (s *Store) Add(e *Entity) {
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(e)
}

func (s *Store) addLocked(e *Entity) {
	if _, exists := s.index[e.ID]; exists {
		s.logger.Debug("entity already present", zap.String("entity", e.ID))
		return
	}
	if e.Data == nil {
		e.Data = Data{}
	}
	key := e.Archetype()
	s.index[e.ID] = record{entity: e, key: key}
	s.groups.insert(e, key)
	s.logger.Debug("entity added",
		zap.String("entity", e.ID),
		zap.Stringer("archetype", key),
	)
}

// Remove deletes an entity from the identity index and its group.
// Removing an unknown entity is a no-op.
func (s *Store) Remove(e *Entity) {
	if e == nil {
		return
	}
	s.RemoveByID(e.ID)
}

// RemoveByID deletes the entity with the given identity, if present.
func (s *Store) RemoveByID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Store) removeLocked(id string) (*Entity, bool) {
	rec, ok := s.index[id]
	if !ok {
		return nil, false
	}
	delete(s.index, id)
	s.groups.remove(rec.entity, rec.key)
	s.logger.Debug("entity removed", zap.String("entity", id))
	return rec.entity, true
}

// Reindex re-homes an entity under its current component set.
// It reports false if the identity is unknown.
func (s *Store) Reindex(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.removeLocked(id)
	if !ok {
		return false
	}
	s.addLocked(e)
	return true
}

// QueryByID returns the entity with the given identity.
func (s *Store) QueryByID(id string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.index[id]
	return rec.entity, ok
}

// QueryByTypes returns the entities whose archetype contains every required
// type. With no required types it yields every entity exactly once.
//
// Members of the matching groups are captured when iteration starts. The
// caller may mutate the store from the loop body: entities removed before
// their turn are skipped, entities added during the loop are not visited,
// and a reindexed entity is visited at most once.
func (s *Store) QueryByTypes(required ...string) iter.Seq[*Entity] {
	want := NewArchetype(required...)
	return func(yield func(*Entity) bool) {
		s.mu.RLock()
		var members []*Entity
		for _, g := range s.groups.matching(want) {
			members = append(members, g.entities...)
		}
		s.mu.RUnlock()

		for _, e := range members {
			if !s.current(e, want) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// current reports whether e is still indexed and still matches want.
func (s *Store) current(e *Entity, want Archetype) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.index[e.ID]
	return ok && rec.entity == e && rec.key.SupersetOf(want)
}

// Len returns the number of entities in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// GroupStats describes one archetype group.
type GroupStats struct {
	Archetype Archetype
	Size      int
}

// Groups returns a snapshot of the archetype groups in creation order.
func (s *Store) Groups() []GroupStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]GroupStats, len(s.groups.groups))
	for i, g := range s.groups.groups {
		out[i] = GroupStats{Archetype: g.archetype, Size: len(g.entities)}
	}
	return out
}

// GroupCount returns the number of archetype groups.
func (s *Store) GroupCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups.groups)
}

// Collect drains a query into a slice.
func Collect(seq iter.Seq[*Entity]) []*Entity {
	var out []*Entity
	for e := range seq {
		out = append(out, e)
	}
	return out
}

// IDs drains a query into the list of entity identities.
func IDs(seq iter.Seq[*Entity]) []string {
	var out []string
	for e := range seq {
		out = append(out, e.ID)
	}
	return out
}
