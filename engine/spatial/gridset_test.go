package spatial

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/idalloc"
)

func TestGridSet(t *testing.T) {
	alloc := idalloc.New()
	gs, err := NewGridSet(config.Default().Grids, alloc)
	assert.Equal(t, nil, err)
	assert.Equal(t, alloc, gs.Allocator())

	for _, et := range common.AllEntityTypes() {
		assert.Equal(t, et, gs.Grid(et).EntityType())
	}
	assert.Equal(t, 350, gs.Grid(common.Object).Config().MaxEntitiesPerCell)
	assert.Equal(t, 125, gs.Grid(common.Marker).Config().MaxEntitiesPerCell)
	assert.T(t, gs.Grid(common.EntityType(7)) == nil, "invalid type has no grid")

	// the same id in different types does not collide
	assert.Equal(t, nil, gs.Insert(common.Object, 1, Vector3{}, 0, 100))
	assert.Equal(t, nil, gs.Insert(common.Marker, 1, Vector3{}, 0, 100))
	assert.T(t, gs.Move(common.Marker, 1, Vector3{500, 0, 0}), "move marker")

	ids, err := gs.QueryVisible(common.Object, Vector3{50, 0, 0}, InDimension(0))
	assert.Equal(t, nil, err)
	assert.Equal(t, []common.EntityID{1}, ids)
	ids, _ = gs.QueryVisible(common.Marker, Vector3{50, 0, 0}, InDimension(0))
	assert.Equal(t, 0, len(ids))
	ids, _ = gs.QueryRadius(common.Marker, Vector3{50, 0, 0}, 500, AllDimensions)
	assert.Equal(t, []common.EntityID{1}, ids)

	assert.T(t, gs.SetDimension(common.Object, 1, 3), "set dimension")
	ids, _ = gs.QueryVisible(common.Object, Vector3{50, 0, 0}, InDimension(0))
	assert.Equal(t, 0, len(ids))

	assert.T(t, gs.Remove(common.Object, 1), "remove object")
	assert.Equal(t, 0, gs.Grid(common.Object).Len())
	assert.Equal(t, 1, gs.Grid(common.Marker).Len())

	err = gs.Insert(common.EntityType(5), 1, Vector3{}, 0, 100)
	assert.T(t, errors.Cause(err) == ErrInvalidEntityType, "insert into invalid type")
	_, err = gs.QueryVisible(common.EntityType(5), Vector3{}, AllDimensions)
	assert.T(t, errors.Cause(err) == ErrInvalidEntityType, "query invalid type")
	assert.T(t, !gs.Remove(common.EntityType(5), 1), "remove from invalid type")
}

func TestGridSetMissingConfig(t *testing.T) {
	var configs [common.EntityTypeCount]*config.GridConfig
	_, err := NewGridSet(configs, idalloc.New())
	assert.NotEqual(t, nil, err)
}
