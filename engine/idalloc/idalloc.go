// Package idalloc issues entity IDs that are unique within an entity type.
//
// Each entity type has its own shard so that allocation for different types never contends.
// Released IDs are kept in an ordered free list and the smallest one is reused first.
package idalloc

import (
	"math"
	"sync"

	"github.com/petar/GoLLRB/llrb"
	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

var (
	// ErrAllocatorExhausted is returned when all IDs of an entity type are in use
	ErrAllocatorExhausted = errors.New("entity id space exhausted")
)

type freeID common.EntityID

func (id freeID) Less(than llrb.Item) bool {
	return id < than.(freeID)
}

type shard struct {
	sync.Mutex
	next  common.EntityID // next never issued id
	free  *llrb.LLRB
	inUse int
}

// Allocator issues entity IDs per entity type
type Allocator struct {
	shards [common.EntityTypeCount]shard
}

// New creates a new Allocator
func New() *Allocator {
	alloc := &Allocator{}
	for i := range alloc.shards {
		alloc.shards[i].next = 1 // 0 is the nil entity ID
		alloc.shards[i].free = llrb.New()
	}
	return alloc
}

func (alloc *Allocator) shard(t common.EntityType) *shard {
	if !t.IsValid() {
		gwlog.Panicf("idalloc: invalid entity type %s", t)
	}
	return &alloc.shards[t]
}

// Allocate returns the smallest released ID of the type, or a fresh one if none was released
func (alloc *Allocator) Allocate(t common.EntityType) (common.EntityID, error) {
	s := alloc.shard(t)
	s.Lock()
	defer s.Unlock()

	if s.free.Len() > 0 {
		id := common.EntityID(s.free.DeleteMin().(freeID))
		s.inUse++
		return id, nil
	}

	if s.next == math.MaxUint64 {
		return 0, errors.Wrapf(ErrAllocatorExhausted, "allocate %s", t)
	}
	id := s.next
	s.next++
	s.inUse++
	return id, nil
}

// Release makes the ID available for reuse. Releasing an ID that is not in use has no effect.
func (alloc *Allocator) Release(t common.EntityType, id common.EntityID) bool {
	s := alloc.shard(t)
	s.Lock()
	defer s.Unlock()

	if id.IsNil() || id >= s.next || s.free.Has(freeID(id)) {
		gwlog.Debugf("idalloc: release of %s which is not in use", common.EntityKey{Type: t, ID: id})
		return false
	}

	s.free.InsertNoReplace(freeID(id))
	s.inUse--
	return true
}

// InUse returns the number of allocated and not yet released IDs of the type
func (alloc *Allocator) InUse(t common.EntityType) int {
	s := alloc.shard(t)
	s.Lock()
	n := s.inUse
	s.Unlock()
	return n
}
