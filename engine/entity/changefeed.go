package entity

import "github.com/xiaonanln/entitysync/engine/common"

// ChangeKind is the kind of an entity mutation
type ChangeKind uint8

const (
	// ChangeCreate is recorded when an entity is created
	ChangeCreate ChangeKind = iota
	// ChangeRemove is recorded when an entity is removed
	ChangeRemove
	// ChangePosition is recorded when an entity moves
	ChangePosition
	// ChangeDimension is recorded when an entity changes dimension
	ChangeDimension
	// ChangeData is recorded when a metadata key is set or reset
	ChangeData
)

var changeKindNames = [...]string{"Create", "Remove", "Position", "Dimension", "Data"}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "ChangeKind<?>"
}

// Change is one entry of the change feed
type Change struct {
	Kind ChangeKind
	ID   common.EntityID
	Key  string // only for ChangeData
}

// EnableChangeFeed makes the registry record every mutation for DrainChanges.
// IDs of removed entities are then held back until ReleaseRemoved is called.
func (r *Registry) EnableChangeFeed() {
	r.feedEnabled.Store(true)
}

// DisableChangeFeed stops recording mutations. Changes not drained yet are dropped and the IDs of
// their removed entities released, later removes release IDs at once.
func (r *Registry) DisableChangeFeed() {
	r.feedEnabled.Store(false)

	alloc := r.gs.Allocator()
	for _, t := range common.AllEntityTypes() {
		s := r.shard(t)
		s.Lock()
		for _, change := range s.feed {
			if change.Kind == ChangeRemove {
				alloc.Release(t, change.ID)
			}
		}
		s.feed = nil
		s.Unlock()
	}
}

// ChangeFeedEnabled returns if the change feed is enabled
func (r *Registry) ChangeFeedEnabled() bool {
	return r.feedEnabled.Load()
}

// DrainChanges returns and clears the recorded changes of the entity type, in mutation order
func (r *Registry) DrainChanges(t common.EntityType) []Change {
	s := r.shard(t)
	if s == nil {
		return nil
	}

	s.Lock()
	changes := s.feed
	s.feed = nil
	s.Unlock()
	return changes
}

// ReleaseRemoved hands the IDs of removed entities back to the allocator
func (r *Registry) ReleaseRemoved(t common.EntityType, ids []common.EntityID) {
	alloc := r.gs.Allocator()
	for _, id := range ids {
		alloc.Release(t, id)
	}
}

// record appends a change to the feed of the shard. Must be called with the shard locked.
func (r *Registry) record(s *shard, kind ChangeKind, id common.EntityID, key string) {
	if !r.feedEnabled.Load() {
		return
	}
	s.feed = append(s.feed, Change{Kind: kind, ID: id, Key: key})
}
