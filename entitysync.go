package entitysync

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/dispatcher"
	"github.com/xiaonanln/entitysync/engine/entity"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/gwutils"
	"github.com/xiaonanln/entitysync/engine/idalloc"
	"github.com/xiaonanln/entitysync/engine/opmon"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

// Facade is the host API of entity sync
type Facade struct {
	cfg   *config.EntitySyncConfig
	alloc *idalloc.Allocator
	gs    *spatial.GridSet
	reg   *entity.Registry
	disp  *dispatcher.Dispatcher
}

// New creates the allocator, grids, registry and dispatcher. A nil cfg uses the built-in defaults.
func New(cfg *config.EntitySyncConfig) (*Facade, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	alloc := idalloc.New()
	gs, err := spatial.NewGridSet(cfg.Grids, alloc)
	if err != nil {
		return nil, errors.Wrap(err, "create grids")
	}
	reg := entity.NewRegistry(gs)

	f := &Facade{
		cfg:   cfg,
		alloc: alloc,
		gs:    gs,
		reg:   reg,
		disp:  dispatcher.New(reg, gs),
	}
	for _, t := range common.AllEntityTypes() {
		gwlog.Infof("entitysync: %s %s", t, cfg.Grids[t])
	}
	return f, nil
}

// EntityTypeOf converts a raw entity type number of a host to EntityType
func EntityTypeOf(t int64) (common.EntityType, bool) {
	if t < 0 || t >= common.EntityTypeCount {
		return 0, false
	}
	return common.EntityType(t), true
}

// Config returns the config of the facade
func (f *Facade) Config() *config.EntitySyncConfig {
	return f.cfg
}

// Registry returns the entity registry
func (f *Facade) Registry() *entity.Registry {
	return f.reg
}

// Dispatcher returns the dispatcher, which transports use to add clients
func (f *Facade) Dispatcher() *dispatcher.Dispatcher {
	return f.disp
}

// Start starts the dispatch workers
func (f *Facade) Start(ctx context.Context) {
	f.disp.Start(ctx)
}

// Flush runs a dispatch tick of every entity type
func (f *Facade) Flush() {
	for _, t := range common.AllEntityTypes() {
		f.disp.Tick(t)
	}
}

// Shutdown removes all entities, dispatches the removes and stops the dispatcher
func (f *Facade) Shutdown() {
	gwutils.RunPanicless(func() {
		n := f.reg.RemoveAll()
		f.Flush()
		gwlog.Infof("entitysync: removed %d entities", n)
	})
	f.disp.Stop()
}

func warnInvalidEntity(op string, t common.EntityType, id common.EntityID) {
	gwlog.Warnf("entitysync: %s was called with invalid entity %s", op, common.EntityKey{Type: t, ID: id})
}

// call runs f and reports a missing entity or a panic as a warning. Returns false on any failure.
func call(op string, t common.EntityType, id common.EntityID, f func() error) bool {
	var err error
	if gwutils.RunPanicless(func() {
		err = f()
	}) {
		return false
	}
	if err != nil {
		if errors.Cause(err) == entity.ErrNotFound || errors.Cause(err) == spatial.ErrInvalidEntityType {
			warnInvalidEntity(op, t, id)
		} else {
			gwlog.Errorf("entitysync: %s %s failed: %v", op, common.EntityKey{Type: t, ID: id}, err)
		}
		return false
	}
	return true
}

// CreateEntity creates an entity. Range 0 uses the default range of the type.
// Returns false if the grid cell of the position is full or the type is invalid.
func (f *Facade) CreateEntity(t common.EntityType, pos spatial.Vector3, dim int32, rng uint32, data map[string]interface{}) (id common.EntityID, ok bool) {
	op := opmon.StartOperation("Facade.CreateEntity")
	defer op.Finish(consts.FACADE_CREATE_WARN_THRESHOLD)

	gwutils.RunPanicless(func() {
		var err error
		id, err = f.reg.Create(t, pos, dim, rng, data)
		switch errors.Cause(err) {
		case nil:
			ok = true
		case spatial.ErrInvalidEntityType:
			gwlog.Warnf("entitysync: CreateEntity was called with invalid entity type %s", t)
		case entity.ErrGridFull:
			gwlog.Warnf("entitysync: CreateEntity %s at %s failed: %v", t, pos, err)
		default:
			gwlog.Errorf("entitysync: CreateEntity %s failed: %v", t, err)
		}
	})
	if !ok {
		id = 0
	}
	return
}

// RemoveEntity removes the entity
func (f *Facade) RemoveEntity(t common.EntityType, id common.EntityID) bool {
	return call("RemoveEntity", t, id, func() error {
		if !f.reg.Remove(t, id) {
			return errors.WithStack(entity.ErrNotFound)
		}
		return nil
	})
}

// RemoveAllEntities removes the entities of all types, returns the number of removed entities
func (f *Facade) RemoveAllEntities() (n int) {
	gwutils.RunPanicless(func() {
		n = f.reg.RemoveAll()
	})
	return
}

// EntityExists returns if the entity exists
func (f *Facade) EntityExists(t common.EntityType, id common.EntityID) (exists bool) {
	gwutils.RunPanicless(func() {
		exists = f.reg.Exists(t, id)
	})
	return
}

// SetEntityPosition moves the entity
func (f *Facade) SetEntityPosition(t common.EntityType, id common.EntityID, pos spatial.Vector3) bool {
	return call("SetEntityPosition", t, id, func() error {
		return f.reg.SetPosition(t, id, pos)
	})
}

// GetEntityPosition returns the position of the entity, or the zero position if it does not exist
func (f *Facade) GetEntityPosition(t common.EntityType, id common.EntityID) (pos spatial.Vector3) {
	call("GetEntityPosition", t, id, func() (err error) {
		pos, err = f.reg.GetPosition(t, id)
		return
	})
	return
}

// GetEntityRange returns the range of the entity, or 0 if it does not exist
func (f *Facade) GetEntityRange(t common.EntityType, id common.EntityID) (rng uint32) {
	call("GetEntityRange", t, id, func() (err error) {
		rng, err = f.reg.GetRange(t, id)
		return
	})
	return
}

// SetEntityDimension changes the dimension of the entity
func (f *Facade) SetEntityDimension(t common.EntityType, id common.EntityID, dim int32) bool {
	return call("SetEntityDimension", t, id, func() error {
		return f.reg.SetDimension(t, id, dim)
	})
}

// GetEntityDimension returns the dimension of the entity, or 0 if it does not exist
func (f *Facade) GetEntityDimension(t common.EntityType, id common.EntityID) (dim int32) {
	call("GetEntityDimension", t, id, func() (err error) {
		dim, err = f.reg.GetDimension(t, id)
		return
	})
	return
}

// SetEntityData sets the metadata key of the entity. A nil value resets the key.
func (f *Facade) SetEntityData(t common.EntityType, id common.EntityID, key string, value interface{}) bool {
	return call("SetEntityData", t, id, func() error {
		return f.reg.UpdateData(t, id, key, entity.DataOf(value))
	})
}

// GetEntityData returns the value of the metadata key, or nil if the entity or the key does not exist
func (f *Facade) GetEntityData(t common.EntityType, id common.EntityID, key string) (value interface{}) {
	call("GetEntityData", t, id, func() error {
		v, ok, err := f.reg.GetData(t, id, key)
		if err != nil {
			return err
		}
		if !ok {
			gwlog.Warnf("entitysync: GetEntityData was called with invalid data key %s of %s", key, common.EntityKey{Type: t, ID: id})
			return nil
		}
		value = v
		return nil
	})
	return
}

// ResetEntityData deletes the metadata key of the entity
func (f *Facade) ResetEntityData(t common.EntityType, id common.EntityID, key string) bool {
	return call("ResetEntityData", t, id, func() error {
		return f.reg.UpdateData(t, id, key, entity.Unset())
	})
}

// Summary describes entity counts, grid occupancy and clients, used by the status reporter
func (f *Facade) Summary() string {
	var b strings.Builder
	for _, t := range common.AllEntityTypes() {
		stats := f.gs.Grid(t).Stats()
		fmt.Fprintf(&b, "%s=%d(cells=%d,max=%d) ", t, stats.Entities, stats.OccupiedCells, stats.MaxOccupancy)
	}
	fmt.Fprintf(&b, "clients=%d", f.disp.ClientCount())
	return b.String()
}
