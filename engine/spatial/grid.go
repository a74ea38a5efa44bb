// Package spatial indexes entity positions in capacity bounded grid cells.
//
// A Grid covers one entity type. Cells are keyed by their index and only allocated when occupied.
// Queries visit the cells overlapping the bounding box of the query sphere and then check the
// precise 3D distance of every candidate.
package spatial

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

var (
	// ErrCellFull is returned when the target cell of an insert is at capacity
	ErrCellFull = errors.New("grid cell is full")
	// ErrDuplicateID is returned when inserting an id which is already in the grid
	ErrDuplicateID = errors.New("entity already in grid")
	// ErrInvalidEntityType is returned for entity types without a grid
	ErrInvalidEntityType = errors.New("invalid entity type")
)

type gridEntry struct {
	pos  Vector3
	dim  int32
	rng  uint32
	cell int
}

// GridStats describes the occupancy of a grid
type GridStats struct {
	Entities      int
	OccupiedCells int
	MaxOccupancy  int
	MaxRange      uint32
}

// Grid is the spatial index of one entity type
type Grid struct {
	sync.RWMutex

	entityType common.EntityType
	cfg        config.GridConfig
	cols       int
	rows       int
	bands      int

	cells    map[int][]common.EntityID
	entries  map[common.EntityID]*gridEntry
	ranges   map[uint32]int // number of entries per range
	maxRange uint32
}

// NewGrid creates the grid of the entity type. The geometry is fixed for the lifetime of the grid.
func NewGrid(t common.EntityType, cfg *config.GridConfig) (*Grid, error) {
	if !t.IsValid() {
		return nil, errors.Wrapf(ErrInvalidEntityType, "new grid %s", t)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "new grid %s", t)
	}

	g := &Grid{
		entityType: t,
		cfg:        *cfg,
		cols:       int(math.Ceil(cfg.Width / cfg.CellWidth)),
		rows:       int(math.Ceil(cfg.Length / cfg.CellLength)),
		bands:      1,
		cells:      map[int][]common.EntityID{},
		entries:    map[common.EntityID]*gridEntry{},
		ranges:     map[uint32]int{},
	}
	if cfg.Height > 0 && cfg.CellHeight > 0 {
		g.bands = int(math.Ceil(cfg.Height / cfg.CellHeight))
	}
	if g.cols > math.MaxInt32/g.rows/g.bands {
		return nil, errors.Errorf("new grid %s: too many cells %dx%dx%d", t, g.cols, g.rows, g.bands)
	}
	return g, nil
}

// EntityType returns the entity type of the grid
func (g *Grid) EntityType() common.EntityType {
	return g.entityType
}

// Config returns the config the grid was created with
func (g *Grid) Config() config.GridConfig {
	return g.cfg
}

func axisIndex(v float64, offset float64, cellSize float64, n int) int {
	i := int(math.Floor((v + offset) / cellSize))
	if i < 0 {
		return 0
	} else if i >= n {
		return n - 1
	}
	return i
}

func (g *Grid) cellCoords(pos Vector3) (cx, cy, cz int) {
	cx = axisIndex(float64(pos.X), g.cfg.OffsetX, g.cfg.CellWidth, g.cols)
	cy = axisIndex(float64(pos.Y), g.cfg.OffsetY, g.cfg.CellLength, g.rows)
	if g.bands > 1 {
		cz = axisIndex(float64(pos.Z), g.cfg.OffsetZ, g.cfg.CellHeight, g.bands)
	}
	return
}

func (g *Grid) cellIndexOf(cx, cy, cz int) int {
	return (cz*g.rows+cy)*g.cols + cx
}

// cellIndex maps the position to its cell, clamping positions outside the grid to the border cells
func (g *Grid) cellIndex(pos Vector3) int {
	cx, cy, cz := g.cellCoords(pos)
	if consts.DEBUG_GRID && !g.inside(pos) {
		gwlog.Debugf("%s: position %s outside grid clamped to cell (%d, %d, %d)", g, pos, cx, cy, cz)
	}
	return g.cellIndexOf(cx, cy, cz)
}

func (g *Grid) inside(pos Vector3) bool {
	x, y := float64(pos.X)+g.cfg.OffsetX, float64(pos.Y)+g.cfg.OffsetY
	if x < 0 || x >= g.cfg.Width || y < 0 || y >= g.cfg.Length {
		return false
	}
	if g.bands > 1 {
		z := float64(pos.Z) + g.cfg.OffsetZ
		return z >= 0 && z < g.cfg.Height
	}
	return true
}

func (g *Grid) String() string {
	return "Grid<" + g.entityType.String() + ">"
}

// Insert puts the entity into the cell of its position
func (g *Grid) Insert(id common.EntityID, pos Vector3, dim int32, rng uint32) error {
	g.Lock()
	defer g.Unlock()

	if _, ok := g.entries[id]; ok {
		return errors.Wrapf(ErrDuplicateID, "%s insert %d", g, id)
	}

	cell := g.cellIndex(pos)
	if len(g.cells[cell]) >= g.cfg.MaxEntitiesPerCell {
		return errors.Wrapf(ErrCellFull, "%s insert %d at %s", g, id, pos)
	}

	g.entries[id] = &gridEntry{pos: pos, dim: dim, rng: rng, cell: cell}
	g.cells[cell] = append(g.cells[cell], id)
	g.addRange(rng)
	return nil
}

// Remove removes the entity from the grid, returns false if it is not in the grid
func (g *Grid) Remove(id common.EntityID) bool {
	g.Lock()
	defer g.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return false
	}
	g.removeFromCell(id, e.cell)
	g.delRange(e.rng)
	delete(g.entries, id)
	return true
}

// Move relocates the entity. The entity is never observed in two cells or in none.
func (g *Grid) Move(id common.EntityID, pos Vector3) bool {
	g.Lock()
	defer g.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return false
	}

	e.pos = pos
	cell := g.cellIndex(pos)
	if cell == e.cell {
		return true
	}

	if n := len(g.cells[cell]); n >= g.cfg.MaxEntitiesPerCell {
		gwlog.Warnf("%s: entity %d moved into full cell %d (%d entities)", g, id, cell, n+1)
	}
	g.removeFromCell(id, e.cell)
	g.cells[cell] = append(g.cells[cell], id)
	e.cell = cell
	return true
}

// SetDimension changes the dimension of the entity
func (g *Grid) SetDimension(id common.EntityID, dim int32) bool {
	g.Lock()
	defer g.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return false
	}
	e.dim = dim
	return true
}

func (g *Grid) removeFromCell(id common.EntityID, cell int) {
	ids := g.cells[cell]
	for i, other := range ids {
		if other == id {
			last := len(ids) - 1
			ids[i] = ids[last]
			ids = ids[:last]
			break
		}
	}
	if len(ids) == 0 {
		delete(g.cells, cell)
	} else {
		g.cells[cell] = ids
	}
}

func (g *Grid) addRange(rng uint32) {
	g.ranges[rng]++
	if rng > g.maxRange {
		g.maxRange = rng
	}
}

func (g *Grid) delRange(rng uint32) {
	if g.ranges[rng] <= 1 {
		delete(g.ranges, rng)
	} else {
		g.ranges[rng]--
		return
	}

	if rng == g.maxRange {
		g.maxRange = 0
		for r := range g.ranges {
			if r > g.maxRange {
				g.maxRange = r
			}
		}
	}
}

// visit calls f for every entity in the cells overlapping the box around center
func (g *Grid) visit(center Vector3, radius float64, f func(id common.EntityID, e *gridEntry)) {
	r := Coord(radius)
	minX, minY, minZ := g.cellCoords(Vector3{center.X - r, center.Y - r, center.Z - r})
	maxX, maxY, maxZ := g.cellCoords(Vector3{center.X + r, center.Y + r, center.Z + r})

	for cz := minZ; cz <= maxZ; cz++ {
		for cy := minY; cy <= maxY; cy++ {
			for cx := minX; cx <= maxX; cx++ {
				for _, id := range g.cells[g.cellIndexOf(cx, cy, cz)] {
					f(id, g.entries[id])
				}
			}
		}
	}
}

// QueryRadius returns the entities within radius of center which pass the dimension filter
func (g *Grid) QueryRadius(center Vector3, radius float64, filter DimensionFilter) []common.EntityID {
	g.RLock()
	defer g.RUnlock()

	var result []common.EntityID
	radiusSquare := radius * radius
	g.visit(center, radius, func(id common.EntityID, e *gridEntry) {
		if filter.Match(e.dim) && center.distanceSquare(e.pos) <= radiusSquare {
			result = append(result, id)
		}
	})
	return result
}

// QueryVisible returns the entities which can be seen from center, i.e. whose own range reaches
// center, and which pass the dimension filter
func (g *Grid) QueryVisible(center Vector3, filter DimensionFilter) []common.EntityID {
	g.RLock()
	defer g.RUnlock()

	var result []common.EntityID
	g.visit(center, float64(g.maxRange), func(id common.EntityID, e *gridEntry) {
		rng := float64(e.rng)
		if filter.Match(e.dim) && center.distanceSquare(e.pos) <= rng*rng {
			result = append(result, id)
		}
	})
	return result
}

// CellOf returns the cell index of the entity
func (g *Grid) CellOf(id common.EntityID) (int, bool) {
	g.RLock()
	defer g.RUnlock()

	e, ok := g.entries[id]
	if !ok {
		return 0, false
	}
	return e.cell, true
}

// CellIndex returns the index of the cell containing the position
func (g *Grid) CellIndex(pos Vector3) int {
	cx, cy, cz := g.cellCoords(pos)
	return g.cellIndexOf(cx, cy, cz)
}

// Contains returns if the entity is in the grid
func (g *Grid) Contains(id common.EntityID) bool {
	g.RLock()
	_, ok := g.entries[id]
	g.RUnlock()
	return ok
}

// Len returns the number of entities in the grid
func (g *Grid) Len() int {
	g.RLock()
	n := len(g.entries)
	g.RUnlock()
	return n
}

// Stats returns the occupancy of the grid
func (g *Grid) Stats() GridStats {
	g.RLock()
	defer g.RUnlock()

	stats := GridStats{
		Entities:      len(g.entries),
		OccupiedCells: len(g.cells),
		MaxRange:      g.maxRange,
	}
	for _, ids := range g.cells {
		if len(ids) > stats.MaxOccupancy {
			stats.MaxOccupancy = len(ids)
		}
	}
	return stats
}
