package entity

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/idalloc"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

func newTestRegistry(t *testing.T) *Registry {
	cfg := config.Default()
	gs, err := spatial.NewGridSet(cfg.Grids, idalloc.New())
	require.NoError(t, err)
	return NewRegistry(gs)
}

func TestCreate(t *testing.T) {
	r := newTestRegistry(t)

	id, err := r.Create(common.Marker, spatial.Vector3{X: 1, Y: 2, Z: 3}, 5, 0, map[string]interface{}{
		"color": "red",
		"empty": nil,
	})
	require.NoError(t, err)
	assert.Equal(t, common.EntityID(1), id)
	assert.True(t, r.Exists(common.Marker, id))
	assert.False(t, r.Exists(common.Object, id))
	assert.Equal(t, 1, r.Count(common.Marker))

	pos, err := r.GetPosition(common.Marker, id)
	require.NoError(t, err)
	assert.Equal(t, spatial.Vector3{X: 1, Y: 2, Z: 3}, pos)

	dim, err := r.GetDimension(common.Marker, id)
	require.NoError(t, err)
	assert.Equal(t, int32(5), dim)

	rng, err := r.GetRange(common.Marker, id)
	require.NoError(t, err)
	assert.Equal(t, r.GridSet().Grid(common.Marker).Config().DefaultRange, rng)

	keys, err := r.DataKeys(common.Marker, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, keys)

	assert.True(t, r.GridSet().Grid(common.Marker).Contains(id))
}

func TestCreateInvalidType(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create(common.EntityType(4), spatial.Vector3{}, 0, 0, nil)
	assert.Equal(t, spatial.ErrInvalidEntityType, errors.Cause(err))
}

func TestCreateGridFull(t *testing.T) {
	cfg := config.Default()
	cfg.Grids[common.TextLabel].MaxEntitiesPerCell = 2
	alloc := idalloc.New()
	gs, err := spatial.NewGridSet(cfg.Grids, alloc)
	require.NoError(t, err)
	r := NewRegistry(gs)

	for i := 0; i < 2; i++ {
		_, err := r.Create(common.TextLabel, spatial.Vector3{}, 0, 0, nil)
		require.NoError(t, err)
	}
	_, err = r.Create(common.TextLabel, spatial.Vector3{X: 1}, 0, 0, nil)
	assert.Equal(t, ErrGridFull, errors.Cause(err))
	assert.Equal(t, 2, r.Count(common.TextLabel))
	// the id of the failed create is not leaked
	assert.Equal(t, 2, alloc.InUse(common.TextLabel))

	id, err := r.Create(common.TextLabel, spatial.Vector3{X: 1000}, 0, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, common.EntityID(3), id)
}

func TestNotFound(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.GetPosition(common.Object, 9999)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Equal(t, ErrNotFound, errors.Cause(r.SetPosition(common.Object, 9999, spatial.Vector3{})))
	_, err = r.GetDimension(common.Object, 9999)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Equal(t, ErrNotFound, errors.Cause(r.SetDimension(common.Object, 9999, 1)))
	_, err = r.GetRange(common.Object, 9999)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	_, _, err = r.GetData(common.Object, 9999, "key")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
	assert.Equal(t, ErrNotFound, errors.Cause(r.SetData(common.Object, 9999, "key", 1)))
	assert.Equal(t, ErrNotFound, errors.Cause(r.ResetData(common.Object, 9999, "key")))
	assert.False(t, r.Remove(common.Object, 9999))
	_, ok := r.Snapshot(common.Object, 9999)
	assert.False(t, ok)
}

func TestRemoveReleasesID(t *testing.T) {
	r := newTestRegistry(t)
	alloc := r.GridSet().Allocator()

	id1, _ := r.Create(common.Character, spatial.Vector3{}, 0, 0, nil)
	id2, _ := r.Create(common.Character, spatial.Vector3{}, 0, 0, nil)
	assert.True(t, r.Remove(common.Character, id1))
	assert.False(t, r.Remove(common.Character, id1))
	assert.False(t, r.GridSet().Grid(common.Character).Contains(id1))
	assert.Equal(t, 1, alloc.InUse(common.Character))

	id3, _ := r.Create(common.Character, spatial.Vector3{}, 0, 0, nil)
	assert.Equal(t, id1, id3)
	assert.NotEqual(t, id2, id3)
}

func TestSetPosition(t *testing.T) {
	r := newTestRegistry(t)
	grid := r.GridSet().Grid(common.Object)

	id, _ := r.Create(common.Object, spatial.Vector3{}, 0, 0, nil)
	require.NoError(t, r.SetPosition(common.Object, id, spatial.Vector3{X: 1000, Y: -1000}))
	pos, _ := r.GetPosition(common.Object, id)
	assert.Equal(t, spatial.Vector3{X: 1000, Y: -1000}, pos)

	cell, ok := grid.CellOf(id)
	require.True(t, ok)
	assert.Equal(t, grid.CellIndex(pos), cell)

	ids := grid.QueryRadius(spatial.Vector3{X: 1000, Y: -1000}, 1, spatial.AllDimensions)
	assert.Equal(t, []common.EntityID{id}, ids)
}

func TestSetDimension(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Create(common.Object, spatial.Vector3{}, 0, 0, nil)
	require.NoError(t, r.SetDimension(common.Object, id, -3))
	dim, _ := r.GetDimension(common.Object, id)
	assert.Equal(t, int32(-3), dim)

	ids := r.GridSet().Grid(common.Object).QueryVisible(spatial.Vector3{}, spatial.InDimension(1))
	assert.Empty(t, ids)
	ids = r.GridSet().Grid(common.Object).QueryVisible(spatial.Vector3{}, spatial.InDimension(-3))
	assert.Equal(t, []common.EntityID{id}, ids)
}

func TestData(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Create(common.Character, spatial.Vector3{}, 0, 0, map[string]interface{}{"hp": 100})

	v, ok, err := r.GetData(common.Character, id, "hp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	require.NoError(t, r.SetData(common.Character, id, "name", "bob"))
	v, ok, _ = r.GetData(common.Character, id, "name")
	assert.True(t, ok)
	assert.Equal(t, "bob", v)

	// DataOf(nil) resets the key
	require.NoError(t, r.UpdateData(common.Character, id, "name", DataOf(nil)))
	_, ok, _ = r.GetData(common.Character, id, "name")
	assert.False(t, ok)

	// an explicit nil value is stored
	require.NoError(t, r.UpdateData(common.Character, id, "nothing", Value(nil)))
	v, ok, _ = r.GetData(common.Character, id, "nothing")
	assert.True(t, ok)
	assert.Nil(t, v)

	require.NoError(t, r.ResetData(common.Character, id, "missing"))
}

func TestTypedData(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Create(common.Object, spatial.Vector3{}, 0, 0, map[string]interface{}{
		"int":   int32(7),
		"float": 1.5,
		"str":   "hello",
		"bool":  true,
	})

	i, err := r.GetDataInt(common.Object, id, "int")
	require.NoError(t, err)
	assert.Equal(t, int64(7), i)

	f, err := r.GetDataFloat(common.Object, id, "float")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	s, err := r.GetDataStr(common.Object, id, "str")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	b, err := r.GetDataBool(common.Object, id, "bool")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = r.GetDataInt(common.Object, id, "missing")
	assert.Equal(t, ErrNoData, errors.Cause(err))
	_, err = r.GetDataInt(common.Object, 9999, "int")
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestSnapshotIsCopy(t *testing.T) {
	r := newTestRegistry(t)
	id, _ := r.Create(common.TextLabel, spatial.Vector3{X: 5}, 2, 50, map[string]interface{}{"text": "hi"})

	snap, ok := r.Snapshot(common.TextLabel, id)
	require.True(t, ok)
	assert.Equal(t, Snapshot{
		Type:      common.TextLabel,
		ID:        id,
		Position:  spatial.Vector3{X: 5},
		Dimension: 2,
		Range:     50,
		Data:      map[string]interface{}{"text": "hi"},
	}, snap)

	snap.Data["text"] = "changed"
	v, _, _ := r.GetData(common.TextLabel, id, "text")
	assert.Equal(t, "hi", v)
}

func TestRemoveAll(t *testing.T) {
	r := newTestRegistry(t)
	for _, et := range common.AllEntityTypes() {
		for i := 0; i < 10; i++ {
			_, err := r.Create(et, spatial.Vector3{X: spatial.Coord(i * 10)}, 0, 0, nil)
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 40, r.RemoveAll())
	for _, et := range common.AllEntityTypes() {
		assert.Equal(t, 0, r.Count(et))
		assert.Equal(t, 0, r.GridSet().Grid(et).Len())
		assert.Equal(t, 0, r.GridSet().Allocator().InUse(et))
	}
	assert.Equal(t, 0, r.RemoveAll())
}

func TestChangeFeed(t *testing.T) {
	r := newTestRegistry(t)
	r.EnableChangeFeed()
	require.True(t, r.ChangeFeedEnabled())
	alloc := r.GridSet().Allocator()

	id, _ := r.Create(common.Marker, spatial.Vector3{}, 0, 0, nil)
	require.NoError(t, r.SetPosition(common.Marker, id, spatial.Vector3{X: 1}))
	require.NoError(t, r.SetPosition(common.Marker, id, spatial.Vector3{X: 1})) // unchanged, not recorded
	require.NoError(t, r.SetDimension(common.Marker, id, 2))
	require.NoError(t, r.SetData(common.Marker, id, "k", "v"))
	require.NoError(t, r.ResetData(common.Marker, id, "k"))
	require.NoError(t, r.ResetData(common.Marker, id, "k")) // not set, not recorded
	assert.True(t, r.Remove(common.Marker, id))

	assert.Equal(t, []Change{
		{Kind: ChangeCreate, ID: id},
		{Kind: ChangePosition, ID: id},
		{Kind: ChangeDimension, ID: id},
		{Kind: ChangeData, ID: id, Key: "k"},
		{Kind: ChangeData, ID: id, Key: "k"},
		{Kind: ChangeRemove, ID: id},
	}, r.DrainChanges(common.Marker))
	assert.Empty(t, r.DrainChanges(common.Marker))
	assert.Empty(t, r.DrainChanges(common.Object))

	// the removed id is held back until released
	assert.Equal(t, 1, alloc.InUse(common.Marker))
	id2, _ := r.Create(common.Marker, spatial.Vector3{}, 0, 0, nil)
	assert.NotEqual(t, id, id2)

	r.ReleaseRemoved(common.Marker, []common.EntityID{id})
	id3, _ := r.Create(common.Marker, spatial.Vector3{}, 0, 0, nil)
	assert.Equal(t, id, id3)
}

func TestDisableChangeFeed(t *testing.T) {
	r := newTestRegistry(t)
	r.EnableChangeFeed()
	alloc := r.GridSet().Allocator()

	id, _ := r.Create(common.Object, spatial.Vector3{}, 0, 0, nil)
	assert.True(t, r.Remove(common.Object, id))
	assert.Equal(t, 1, alloc.InUse(common.Object))

	// pending removes are released with the feed
	r.DisableChangeFeed()
	assert.False(t, r.ChangeFeedEnabled())
	assert.Equal(t, 0, alloc.InUse(common.Object))
	assert.Empty(t, r.DrainChanges(common.Object))

	id2, _ := r.Create(common.Object, spatial.Vector3{}, 0, 0, nil)
	assert.Equal(t, id, id2)
	assert.True(t, r.Remove(common.Object, id2))
	assert.Equal(t, 0, alloc.InUse(common.Object))
	assert.Empty(t, r.DrainChanges(common.Object))
}

func TestConcurrentMutations(t *testing.T) {
	cfg := config.Default()
	for _, gc := range cfg.Grids {
		gc.MaxEntitiesPerCell = 10000
	}
	gs, err := spatial.NewGridSet(cfg.Grids, idalloc.New())
	require.NoError(t, err)
	r := NewRegistry(gs)
	var wg sync.WaitGroup
	for _, et := range common.AllEntityTypes() {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(et common.EntityType, w int) {
				defer wg.Done()
				var ids []common.EntityID
				for i := 0; i < 200; i++ {
					id, err := r.Create(et, spatial.Vector3{X: spatial.Coord(w * 100), Y: spatial.Coord(i)}, int32(w), 0, nil)
					if err != nil {
						t.Error(err)
						return
					}
					ids = append(ids, id)
					r.SetPosition(et, id, spatial.Vector3{X: spatial.Coord(i), Y: spatial.Coord(w * 100)})
					r.SetData(et, id, "i", i)
				}
				for i, id := range ids {
					if i%2 == 0 {
						r.Remove(et, id)
					}
				}
			}(et, w)
		}
	}
	wg.Wait()

	for _, et := range common.AllEntityTypes() {
		assert.Equal(t, 400, r.Count(et))
		assert.Equal(t, 400, r.GridSet().Grid(et).Len())
	}
}
