// Package entity owns the records of all synced entities.
//
// The Registry is the single writer of the spatial grids: every mutation of an entity updates its
// record and its grid projection under the same lock, so dispatch always reads a consistent view.
package entity

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/gwutils"
	"github.com/xiaonanln/entitysync/engine/spatial"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xiaonanln/typeconv"
)

var (
	// ErrNotFound is returned when the entity does not exist
	ErrNotFound = errors.New("entity not found")
	// ErrGridFull is returned when the grid rejects a new entity
	ErrGridFull = spatial.ErrCellFull
	// ErrNoData is returned by typed data getters when the key is not set
	ErrNoData = errors.New("entity data not found")
)

var (
	floatType  = reflect.TypeOf(float64(0))
	stringType = reflect.TypeOf("")
	boolType   = reflect.TypeOf(false)
)

// Entity is the record of a synced entity
type Entity struct {
	ID        common.EntityID
	Type      common.EntityType
	Position  spatial.Vector3
	Dimension int32
	Range     uint32
	data      map[string]interface{}
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s<%d>", e.Type, e.ID)
}

// Snapshot is a copy of an entity record, used for create events
type Snapshot struct {
	Type      common.EntityType      `msgpack:"type"`
	ID        common.EntityID        `msgpack:"id"`
	Position  spatial.Vector3        `msgpack:"pos"`
	Dimension int32                  `msgpack:"dim"`
	Range     uint32                 `msgpack:"range"`
	Data      map[string]interface{} `msgpack:"data"`
}

func (e *Entity) snapshot() Snapshot {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return Snapshot{
		Type:      e.Type,
		ID:        e.ID,
		Position:  e.Position,
		Dimension: e.Dimension,
		Range:     e.Range,
		Data:      data,
	}
}

type shard struct {
	sync.RWMutex
	entities map[common.EntityID]*Entity
	feed     []Change
}

// Registry manages the entities of all types
type Registry struct {
	gs          *spatial.GridSet
	shards      [common.EntityTypeCount]shard
	feedEnabled xnsyncutil.AtomicBool
}

// NewRegistry creates a Registry which keeps the grids of gs up to date
func NewRegistry(gs *spatial.GridSet) *Registry {
	r := &Registry{gs: gs}
	for i := range r.shards {
		r.shards[i].entities = map[common.EntityID]*Entity{}
	}
	return r
}

// GridSet returns the grids maintained by the registry
func (r *Registry) GridSet() *spatial.GridSet {
	return r.gs
}

func (r *Registry) shard(t common.EntityType) *shard {
	if !t.IsValid() {
		return nil
	}
	return &r.shards[t]
}

func notFound(t common.EntityType, id common.EntityID) error {
	return errors.Wrapf(ErrNotFound, "%s", common.EntityKey{Type: t, ID: id})
}

// lookup returns the locked shard and the entity. The caller must unlock the shard.
func (r *Registry) lookup(t common.EntityType, id common.EntityID, write bool) (*shard, *Entity, error) {
	s := r.shard(t)
	if s == nil {
		return nil, nil, errors.Wrapf(spatial.ErrInvalidEntityType, "%s", t)
	}
	if write {
		s.Lock()
	} else {
		s.RLock()
	}
	e := s.entities[id]
	if e == nil {
		if write {
			s.Unlock()
		} else {
			s.RUnlock()
		}
		return nil, nil, notFound(t, id)
	}
	return s, e, nil
}

// Create creates an entity and inserts it into the grid of its type.
// Range 0 takes the default range of the grid. nil values in data are skipped.
func (r *Registry) Create(t common.EntityType, pos spatial.Vector3, dim int32, rng uint32, data map[string]interface{}) (common.EntityID, error) {
	s := r.shard(t)
	if s == nil {
		return 0, errors.Wrapf(spatial.ErrInvalidEntityType, "create %s", t)
	}

	grid := r.gs.Grid(t)
	if rng == 0 {
		rng = grid.Config().DefaultRange
	}

	alloc := r.gs.Allocator()
	id, err := alloc.Allocate(t)
	if err != nil {
		return 0, err
	}

	e := &Entity{
		ID:        id,
		Type:      t,
		Position:  pos,
		Dimension: dim,
		Range:     rng,
		data:      make(map[string]interface{}, len(data)),
	}
	for k, v := range data {
		if v != nil {
			e.data[k] = v
		}
	}

	s.Lock()
	defer s.Unlock()

	if err := grid.Insert(id, pos, dim, rng); err != nil {
		// the id was never visible, so it can be reused at once
		alloc.Release(t, id)
		return 0, errors.Wrapf(err, "create %s", t)
	}
	s.entities[id] = e
	r.record(s, ChangeCreate, id, "")
	return id, nil
}

// Remove removes the entity, returns false if it does not exist
func (r *Registry) Remove(t common.EntityType, id common.EntityID) bool {
	s, e, err := r.lookup(t, id, true)
	if err != nil {
		return false
	}
	defer s.Unlock()

	r.removeLocked(s, e)
	return true
}

func (r *Registry) removeLocked(s *shard, e *Entity) {
	if !r.gs.Remove(e.Type, e.ID) {
		gwlog.Panicf("%s is in registry but not in grid", e)
	}
	delete(s.entities, e.ID)

	if r.feedEnabled.Load() {
		r.record(s, ChangeRemove, e.ID, "")
	} else {
		r.gs.Allocator().Release(e.Type, e.ID)
	}
}

// RemoveAll removes all entities of all types, returns the number of removed entities
func (r *Registry) RemoveAll() int {
	n := 0
	for _, t := range common.AllEntityTypes() {
		s := r.shard(t)
		s.Lock()
		for _, e := range s.entities {
			r.removeLocked(s, e)
			n++
		}
		s.Unlock()
	}
	return n
}

// Exists returns if the entity exists
func (r *Registry) Exists(t common.EntityType, id common.EntityID) bool {
	s, _, err := r.lookup(t, id, false)
	if err != nil {
		return false
	}
	s.RUnlock()
	return true
}

// Count returns the number of entities of the type
func (r *Registry) Count(t common.EntityType) int {
	s := r.shard(t)
	if s == nil {
		return 0
	}
	s.RLock()
	n := len(s.entities)
	s.RUnlock()
	return n
}

// Entities returns the IDs of all entities of the type in ascending order
func (r *Registry) Entities(t common.EntityType) []common.EntityID {
	s := r.shard(t)
	if s == nil {
		return nil
	}
	s.RLock()
	ids := make(common.EntityIDSet, len(s.entities))
	for id := range s.entities {
		ids.Add(id)
	}
	s.RUnlock()
	return ids.ToSortedList()
}

// GetPosition returns the position of the entity
func (r *Registry) GetPosition(t common.EntityType, id common.EntityID) (spatial.Vector3, error) {
	s, e, err := r.lookup(t, id, false)
	if err != nil {
		return spatial.Vector3{}, err
	}
	defer s.RUnlock()
	return e.Position, nil
}

// SetPosition moves the entity
func (r *Registry) SetPosition(t common.EntityType, id common.EntityID, pos spatial.Vector3) error {
	s, e, err := r.lookup(t, id, true)
	if err != nil {
		return err
	}
	defer s.Unlock()

	if !r.gs.Move(t, id, pos) {
		gwlog.Panicf("%s is in registry but not in grid", e)
	}
	if e.Position != pos {
		e.Position = pos
		r.record(s, ChangePosition, id, "")
	}
	return nil
}

// GetDimension returns the dimension of the entity
func (r *Registry) GetDimension(t common.EntityType, id common.EntityID) (int32, error) {
	s, e, err := r.lookup(t, id, false)
	if err != nil {
		return 0, err
	}
	defer s.RUnlock()
	return e.Dimension, nil
}

// SetDimension changes the dimension of the entity
func (r *Registry) SetDimension(t common.EntityType, id common.EntityID, dim int32) error {
	s, e, err := r.lookup(t, id, true)
	if err != nil {
		return err
	}
	defer s.Unlock()

	if !r.gs.SetDimension(t, id, dim) {
		gwlog.Panicf("%s is in registry but not in grid", e)
	}
	if e.Dimension != dim {
		e.Dimension = dim
		r.record(s, ChangeDimension, id, "")
	}
	return nil
}

// GetRange returns the visibility range of the entity
func (r *Registry) GetRange(t common.EntityType, id common.EntityID) (uint32, error) {
	s, e, err := r.lookup(t, id, false)
	if err != nil {
		return 0, err
	}
	defer s.RUnlock()
	return e.Range, nil
}

// GetData returns the value of the metadata key and if the key is set
func (r *Registry) GetData(t common.EntityType, id common.EntityID, key string) (interface{}, bool, error) {
	s, e, err := r.lookup(t, id, false)
	if err != nil {
		return nil, false, err
	}
	defer s.RUnlock()
	v, ok := e.data[key]
	return v, ok, nil
}

// UpdateData sets or unsets the metadata key
func (r *Registry) UpdateData(t common.EntityType, id common.EntityID, key string, data Data) error {
	s, e, err := r.lookup(t, id, true)
	if err != nil {
		return err
	}
	defer s.Unlock()

	if v, ok := data.Get(); ok {
		e.data[key] = v
	} else if _, ok := e.data[key]; ok {
		delete(e.data, key)
	} else {
		return nil
	}
	r.record(s, ChangeData, id, key)
	return nil
}

// SetData sets the metadata key to v
func (r *Registry) SetData(t common.EntityType, id common.EntityID, key string, v interface{}) error {
	return r.UpdateData(t, id, key, Value(v))
}

// ResetData deletes the metadata key
func (r *Registry) ResetData(t common.EntityType, id common.EntityID, key string) error {
	return r.UpdateData(t, id, key, Unset())
}

func (r *Registry) getDataValue(t common.EntityType, id common.EntityID, key string) (interface{}, error) {
	v, ok, err := r.GetData(t, id, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrNoData, "%s.%s", common.EntityKey{Type: t, ID: id}, key)
	}
	return v, nil
}

// GetDataInt returns the metadata value converted to int64
func (r *Registry) GetDataInt(t common.EntityType, id common.EntityID, key string) (ret int64, err error) {
	v, err := r.getDataValue(t, id, key)
	if err != nil {
		return 0, err
	}
	err = gwutils.CatchPanic(func() error {
		ret = typeconv.Int(v)
		return nil
	})
	return
}

// GetDataFloat returns the metadata value converted to float64
func (r *Registry) GetDataFloat(t common.EntityType, id common.EntityID, key string) (ret float64, err error) {
	v, err := r.getDataValue(t, id, key)
	if err != nil {
		return 0, err
	}
	err = gwutils.CatchPanic(func() error {
		ret = typeconv.Convert(v, floatType).Float()
		return nil
	})
	return
}

// GetDataStr returns the metadata value converted to string
func (r *Registry) GetDataStr(t common.EntityType, id common.EntityID, key string) (ret string, err error) {
	v, err := r.getDataValue(t, id, key)
	if err != nil {
		return "", err
	}
	err = gwutils.CatchPanic(func() error {
		ret = typeconv.Convert(v, stringType).String()
		return nil
	})
	return
}

// GetDataBool returns the metadata value converted to bool
func (r *Registry) GetDataBool(t common.EntityType, id common.EntityID, key string) (ret bool, err error) {
	v, err := r.getDataValue(t, id, key)
	if err != nil {
		return false, err
	}
	err = gwutils.CatchPanic(func() error {
		ret = typeconv.Convert(v, boolType).Bool()
		return nil
	})
	return
}

// DataKeys returns the metadata keys of the entity in ascending order
func (r *Registry) DataKeys(t common.EntityType, id common.EntityID) ([]string, error) {
	s, e, err := r.lookup(t, id, false)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		keys = append(keys, k)
	}
	s.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// Snapshot returns a copy of the entity record
func (r *Registry) Snapshot(t common.EntityType, id common.EntityID) (Snapshot, bool) {
	s, e, err := r.lookup(t, id, false)
	if err != nil {
		return Snapshot{}, false
	}
	defer s.RUnlock()
	return e.snapshot(), true
}
