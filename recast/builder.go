// Package recast builds navmeshes from scene snapshots. The scene is split
// into square tiles that are built one at a time; the finished tiles form a
// single-layer walkable surface and, for flyable territories, a voxel volume.
package recast

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
	"github.com/gorustyt/vnavmesh/scene"
)

var ErrEmptyScene = errors.New("recast: scene has no colliders")

// Builder turns one snapshot into a navmesh. It is not safe for concurrent use.
type Builder struct {
	cust      Customization
	colliders []scene.Collider
	border    int32
	mesh      *detour.Mesh
	volume    *detour.VoxelMap
	built     []bool
}

func NewBuilder(s *scene.Snapshot, cust Customization) (*Builder, error) {
	if err := cust.Validate(); err != nil {
		return nil, err
	}
	if len(s.Colliders) == 0 {
		return nil, ErrEmptyScene
	}
	bmin, bmax := s.Bounds()
	b := &Builder{
		cust:      cust,
		colliders: s.Colliders,
		border:    int32(math.Ceil(float64(cust.AgentRadius / cust.CellSize))),
	}
	width, err := gridSize(bmax[0]-bmin[0], cust.CellSize)
	if err != nil {
		return nil, err
	}
	depth, err := gridSize(bmax[2]-bmin[2], cust.CellSize)
	if err != nil {
		return nil, err
	}
	if int64(width)*int64(depth) > detour.MaxGridCells {
		return nil, errors.Wrapf(detour.ErrInvalidParam, "grid of %dx%d cells is too large", width, depth)
	}
	b.mesh = detour.NewMesh(detour.MeshParams{
		Origin:         bmin,
		CellSize:       cust.CellSize,
		TileSize:       cust.TileSize,
		Width:          width,
		Depth:          depth,
		WalkableHeight: cust.AgentHeight,
		WalkableClimb:  cust.AgentClimb,
	})
	b.built = make([]bool, len(b.mesh.Tiles))
	if cust.Flyable {
		var sx, sy, sz int32
		if sx, err = gridSize(bmax[0]-bmin[0], cust.VoxelSize); err != nil {
			return nil, err
		}
		// room to fly over the top
		if sy, err = gridSize(bmax[1]-bmin[1]+cust.AgentHeight, cust.VoxelHeight); err != nil {
			return nil, err
		}
		if sz, err = gridSize(bmax[2]-bmin[2], cust.VoxelSize); err != nil {
			return nil, err
		}
		if _, ok := detour.VoxelCount(sx, sy, sz); !ok {
			return nil, errors.Wrapf(detour.ErrInvalidParam, "volume of %dx%dx%d voxels is too large", sx, sy, sz)
		}
		b.volume = detour.NewVoxelMap(detour.VoxelParams{
			Origin:      bmin,
			VoxelSize:   cust.VoxelSize,
			VoxelHeight: cust.VoxelHeight,
			SizeX:       sx,
			SizeY:       sy,
			SizeZ:       sz,
		})
	}
	return b, nil
}

func gridSize(extent, cellSize float32) (int32, error) {
	n := math.Ceil(float64(extent / cellSize))
	if !(n <= math.MaxInt32) {
		return 0, errors.Wrapf(detour.ErrInvalidParam, "extent %v does not fit cells of %v", extent, cellSize)
	}
	return max(1, int32(n)), nil
}

func (b *Builder) NumTilesX() int { return int(b.mesh.TilesX) }

func (b *Builder) NumTilesZ() int { return int(b.mesh.TilesZ) }

// BuildTile builds tile (x, z). Tiles may be built in any order and rebuilding
// a tile replaces it.
func (b *Builder) BuildTile(x, z int) error {
	tx, tz := int32(x), int32(z)
	if tx < 0 || tz < 0 || tx >= b.mesh.TilesX || tz >= b.mesh.TilesZ {
		return errors.Wrapf(detour.ErrInvalidParam, "tile %d,%d outside %dx%d grid", x, z, b.mesh.TilesX, b.mesh.TilesZ)
	}
	params := &b.mesh.Params
	w, d := b.mesh.TileDims(tx, tz)
	x0, z0 := tx*params.TileSize, tz*params.TileSize

	hf := newHeightfield(x0-b.border, z0-b.border, w+2*b.border, d+2*b.border)
	cs := params.CellSize
	tmin := common.Vec3{params.Origin[0] + float32(hf.x0)*cs, float32(math.Inf(-1)), params.Origin[2] + float32(hf.z0)*cs}
	tmax := common.Vec3{tmin[0] + float32(hf.width)*cs, float32(math.Inf(1)), tmin[2] + float32(hf.depth)*cs}
	colliders := b.overlapping(tmin, tmax)

	rasterizeColliders(hf, colliders, params)
	erodeWalkableArea(hf, b.border, b.cust.AgentRadius, b.cust.AgentClimb, cs)

	tile := &detour.MeshTile{X: tx, Z: tz, Width: w, Depth: d, Heights: make([]float32, w*d), Areas: make([]uint8, w*d)}
	for cz := int32(0); cz < d; cz++ {
		for cx := int32(0); cx < w; cx++ {
			src := hf.index(cx+b.border, cz+b.border)
			dst := common.Index2(int(cx), int(cz), int(w))
			tile.Heights[dst] = hf.heights[src]
			tile.Areas[dst] = hf.areas[src]
		}
	}
	if err := b.mesh.AddTile(tile); err != nil {
		return err
	}

	if b.volume != nil {
		vx0, vx1 := b.voxelColumns(tx, b.mesh.TilesX, b.volume.Params.SizeX)
		vz0, vz1 := b.voxelColumns(tz, b.mesh.TilesZ, b.volume.Params.SizeZ)
		markSolidVoxels(b.volume, b.overlapping(b.voxelMin(vx0, vz0), b.voxelMin(vx1, vz1)), vx0, vz0, vx1, vz1)
	}
	b.built[tx+tz*b.mesh.TilesX] = true
	return nil
}

// voxelColumns returns the voxel columns [v0, v1) belonging to tile t along
// one axis. Consecutive tiles partition the columns; the last tile takes the
// remainder.
func (b *Builder) voxelColumns(t, numTiles, size int32) (v0, v1 int32) {
	tileExtent := float64(b.mesh.Params.TileSize) * float64(b.mesh.Params.CellSize)
	vs := float64(b.volume.Params.VoxelSize)
	v0 = min(size, int32(math.Floor(float64(t)*tileExtent/vs)))
	if t == numTiles-1 {
		return v0, size
	}
	return v0, min(size, int32(math.Floor(float64(t+1)*tileExtent/vs)))
}

func (b *Builder) voxelMin(vx, vz int32) common.Vec3 {
	p := b.volume.Params
	return common.Vec3{p.Origin[0] + float32(vx)*p.VoxelSize, float32(math.Inf(-1)), p.Origin[2] + float32(vz)*p.VoxelSize}
}

func (b *Builder) overlapping(bmin, bmax common.Vec3) []scene.Collider {
	bmax[1] = float32(math.Inf(1))
	var res []scene.Collider
	for _, c := range b.colliders {
		if common.OverlapBounds(c.Min, c.Max, bmin, bmax) {
			res = append(res, c)
		}
	}
	return res
}

// Navmesh returns the finished navmesh. Every tile must have been built.
func (b *Builder) Navmesh() (*detour.Navmesh, error) {
	for i, ok := range b.built {
		if !ok {
			return nil, errors.Errorf("recast: tile %d,%d not built", int32(i)%b.mesh.TilesX, int32(i)/b.mesh.TilesX)
		}
	}
	return &detour.Navmesh{Version: b.cust.Version, Mesh: b.mesh, Volume: b.volume}, nil
}
