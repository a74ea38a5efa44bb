package spatial

import (
	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/idalloc"
)

// GridSet holds one grid per entity type and routes every call to the grid of the type
type GridSet struct {
	grids [common.EntityTypeCount]*Grid
	alloc *idalloc.Allocator
}

// NewGridSet creates the grids of all entity types from their configs
func NewGridSet(configs [common.EntityTypeCount]*config.GridConfig, alloc *idalloc.Allocator) (*GridSet, error) {
	gs := &GridSet{alloc: alloc}
	for _, t := range common.AllEntityTypes() {
		if configs[t] == nil {
			return nil, errors.Errorf("grid config of %s is missing", t)
		}
		grid, err := NewGrid(t, configs[t])
		if err != nil {
			return nil, err
		}
		gs.grids[t] = grid
	}
	return gs, nil
}

// Grid returns the grid of the entity type, or nil for invalid types
func (gs *GridSet) Grid(t common.EntityType) *Grid {
	if !t.IsValid() {
		return nil
	}
	return gs.grids[t]
}

// Allocator returns the id allocator shared by the grids
func (gs *GridSet) Allocator() *idalloc.Allocator {
	return gs.alloc
}

func (gs *GridSet) grid(t common.EntityType) (*Grid, error) {
	if !t.IsValid() {
		return nil, errors.WithStack(ErrInvalidEntityType)
	}
	return gs.grids[t], nil
}

// Insert inserts the entity into the grid of its type
func (gs *GridSet) Insert(t common.EntityType, id common.EntityID, pos Vector3, dim int32, rng uint32) error {
	g, err := gs.grid(t)
	if err != nil {
		return err
	}
	return g.Insert(id, pos, dim, rng)
}

// Remove removes the entity from the grid of its type
func (gs *GridSet) Remove(t common.EntityType, id common.EntityID) bool {
	g, err := gs.grid(t)
	if err != nil {
		return false
	}
	return g.Remove(id)
}

// Move moves the entity in the grid of its type
func (gs *GridSet) Move(t common.EntityType, id common.EntityID, pos Vector3) bool {
	g, err := gs.grid(t)
	if err != nil {
		return false
	}
	return g.Move(id, pos)
}

// SetDimension changes the dimension of the entity in the grid of its type
func (gs *GridSet) SetDimension(t common.EntityType, id common.EntityID, dim int32) bool {
	g, err := gs.grid(t)
	if err != nil {
		return false
	}
	return g.SetDimension(id, dim)
}

// QueryRadius queries the grid of the type, see Grid.QueryRadius
func (gs *GridSet) QueryRadius(t common.EntityType, center Vector3, radius float64, filter DimensionFilter) ([]common.EntityID, error) {
	g, err := gs.grid(t)
	if err != nil {
		return nil, err
	}
	return g.QueryRadius(center, radius, filter), nil
}

// QueryVisible queries the grid of the type, see Grid.QueryVisible
func (gs *GridSet) QueryVisible(t common.EntityType, center Vector3, filter DimensionFilter) ([]common.EntityID, error) {
	g, err := gs.grid(t)
	if err != nil {
		return nil, err
	}
	return g.QueryVisible(center, filter), nil
}
