package detour

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gorustyt/vnavmesh/common"
)

const (
	NullArea     uint8 = 0  // Cell has no walkable floor.
	WalkableArea uint8 = 63 // Cell has a floor an agent can stand on.
)

// Navmesh is the navigation data of one region: a walkable surface and, for
// regions where flying is allowed, a voxel volume. It is not modified once the
// builder hands it over.
type Navmesh struct {
	Version int32 // customization version the data was built with
	Mesh    *Mesh
	Volume  *VoxelMap
}

type MeshParams struct {
	Origin         common.Vec3 ///< Minimum corner of the grid.
	CellSize       float32     ///< Cell size on the xz-plane.
	TileSize       int32       ///< Tile width and depth in cells.
	Width          int32       ///< Grid width in cells.
	Depth          int32       ///< Grid depth in cells.
	WalkableHeight float32     ///< Clearance an agent needs above the floor.
	WalkableClimb  float32     ///< Max floor height difference between neighbouring cells.
}

// MeshTile holds the floor of a TileSize x TileSize block of cells. Tiles on
// the far edges of the grid can be smaller.
type MeshTile struct {
	X, Z    int32
	Width   int32
	Depth   int32
	Heights []float32
	Areas   []uint8
}

// Mesh is a tiled single-layer heightfield. A cell is walkable when its area
// is not NullArea; its floor is at Heights.
type Mesh struct {
	Params MeshParams
	TilesX int32
	TilesZ int32
	Tiles  []*MeshTile
}

func NewMesh(params MeshParams) *Mesh {
	m := &Mesh{Params: params}
	m.TilesX = int32(common.CeilDiv(int(params.Width), int(params.TileSize)))
	m.TilesZ = int32(common.CeilDiv(int(params.Depth), int(params.TileSize)))
	m.Tiles = make([]*MeshTile, m.TilesX*m.TilesZ)
	return m
}

// TileDims returns the size in cells of tile (tx, tz).
func (m *Mesh) TileDims(tx, tz int32) (w, d int32) {
	ts := m.Params.TileSize
	return min(ts, m.Params.Width-tx*ts), min(ts, m.Params.Depth-tz*ts)
}

// TileAt returns tile (tx, tz), or nil when it is missing or out of range.
func (m *Mesh) TileAt(tx, tz int32) *MeshTile {
	if tx < 0 || tz < 0 || tx >= m.TilesX || tz >= m.TilesZ {
		return nil
	}
	return m.Tiles[tx+tz*m.TilesX]
}

// AddTile stores a tile, replacing any previous tile at the same location.
func (m *Mesh) AddTile(tile *MeshTile) error {
	if tile.X < 0 || tile.Z < 0 || tile.X >= m.TilesX || tile.Z >= m.TilesZ {
		return errors.Wrapf(ErrInvalidParam, "tile %d,%d outside %dx%d grid", tile.X, tile.Z, m.TilesX, m.TilesZ)
	}
	w, d := m.TileDims(tile.X, tile.Z)
	if tile.Width != w || tile.Depth != d || len(tile.Heights) != int(w*d) || len(tile.Areas) != int(w*d) {
		return errors.Wrapf(ErrInvalidParam, "tile %d,%d has wrong dimensions", tile.X, tile.Z)
	}
	m.Tiles[tile.X+tile.Z*m.TilesX] = tile
	return nil
}

// CalcTileLoc returns the tile containing pos.
func (m *Mesh) CalcTileLoc(pos common.Vec3) (tx, tz int32) {
	ts := float32(m.Params.TileSize) * m.Params.CellSize
	tx = int32(math.Floor(float64((pos[0] - m.Params.Origin[0]) / ts)))
	tz = int32(math.Floor(float64((pos[2] - m.Params.Origin[2]) / ts)))
	return tx, tz
}

// CellCoords returns the cell coordinates of pos; they may lie outside the grid.
func (m *Mesh) CellCoords(pos common.Vec3) (cx, cz int32) {
	cx = int32(math.Floor(float64((pos[0] - m.Params.Origin[0]) / m.Params.CellSize)))
	cz = int32(math.Floor(float64((pos[2] - m.Params.Origin[2]) / m.Params.CellSize)))
	return cx, cz
}

// CellOf returns the cell containing pos.
func (m *Mesh) CellOf(pos common.Vec3) (cx, cz int32, ok bool) {
	cx, cz = m.CellCoords(pos)
	return cx, cz, m.InBounds(cx, cz)
}

func (m *Mesh) InBounds(cx, cz int32) bool {
	return cx >= 0 && cz >= 0 && cx < m.Params.Width && cz < m.Params.Depth
}

// Cell returns the floor height and area of a cell. Cells outside the grid or
// in missing tiles are NullArea.
func (m *Mesh) Cell(cx, cz int32) (height float32, area uint8) {
	if !m.InBounds(cx, cz) {
		return 0, NullArea
	}
	ts := m.Params.TileSize
	tile := m.TileAt(cx/ts, cz/ts)
	if tile == nil {
		return 0, NullArea
	}
	i := common.Index2(int(cx%ts), int(cz%ts), int(tile.Width))
	return tile.Heights[i], tile.Areas[i]
}

func (m *Mesh) Walkable(cx, cz int32) bool {
	_, area := m.Cell(cx, cz)
	return area != NullArea
}

// CellCenter returns the center of a cell at floor height.
func (m *Mesh) CellCenter(cx, cz int32) common.Vec3 {
	h, _ := m.Cell(cx, cz)
	return common.Vec3{
		m.Params.Origin[0] + (float32(cx)+0.5)*m.Params.CellSize,
		h,
		m.Params.Origin[2] + (float32(cz)+0.5)*m.Params.CellSize,
	}
}

// NumWalkable counts walkable cells over all tiles.
func (m *Mesh) NumWalkable() (n int) {
	for _, tile := range m.Tiles {
		if tile == nil {
			continue
		}
		for _, a := range tile.Areas {
			if a != NullArea {
				n++
			}
		}
	}
	return n
}
