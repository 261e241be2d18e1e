package recast

import (
	"math"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
	"github.com/gorustyt/vnavmesh/scene"
)

// heightfield is the single-layer floor of a tile plus its erosion border.
// Cell (x, z) of the field is grid cell (x0+x, z0+z).
type heightfield struct {
	x0, z0       int32
	width, depth int32
	heights      []float32
	areas        []uint8
}

func newHeightfield(x0, z0, width, depth int32) *heightfield {
	return &heightfield{
		x0: x0, z0: z0, width: width, depth: depth,
		heights: make([]float32, width*depth),
		areas:   make([]uint8, width*depth),
	}
}

func (hf *heightfield) index(x, z int32) int {
	return common.Index2(int(x), int(z), int(hf.width))
}

// rasterizeColliders finds the floor of every cell of hf. The floor of a cell
// is the highest collider top under the cell center that leaves walkableHeight
// of free space above it. Cells outside the grid stay NullArea.
func rasterizeColliders(hf *heightfield, colliders []scene.Collider, params *detour.MeshParams) {
	cs := params.CellSize
	for z := int32(0); z < hf.depth; z++ {
		for x := int32(0); x < hf.width; x++ {
			gx, gz := hf.x0+x, hf.z0+z
			if gx < 0 || gz < 0 || gx >= params.Width || gz >= params.Depth {
				continue
			}
			px := params.Origin[0] + (float32(gx)+0.5)*cs
			pz := params.Origin[2] + (float32(gz)+0.5)*cs
			if floor, ok := findFloor(colliders, px, pz, params.WalkableHeight); ok {
				i := hf.index(x, z)
				hf.heights[i] = floor
				hf.areas[i] = detour.WalkableArea
			}
		}
	}
}

func findFloor(colliders []scene.Collider, px, pz, walkableHeight float32) (floor float32, found bool) {
	for i := range colliders {
		c := &colliders[i]
		if !coversPoint(c, px, pz) {
			continue
		}
		top := c.Max[1]
		if found && top <= floor {
			continue
		}
		if hasClearance(colliders, i, px, pz, top, top+walkableHeight) {
			floor, found = top, true
		}
	}
	return floor, found
}

func coversPoint(c *scene.Collider, px, pz float32) bool {
	return px >= c.Min[0] && px <= c.Max[0] && pz >= c.Min[2] && pz <= c.Max[2]
}

// hasClearance reports whether no collider other than skip occupies the
// vertical span (bottom, top) above the point.
func hasClearance(colliders []scene.Collider, skip int, px, pz, bottom, top float32) bool {
	for i := range colliders {
		if i == skip {
			continue
		}
		c := &colliders[i]
		if coversPoint(c, px, pz) && c.Min[1] < top && c.Max[1] > bottom {
			return false
		}
	}
	return true
}

// markSolidVoxels sets every voxel in columns [vx0, vx1) x [vz0, vz1) that
// strictly overlaps a collider.
func markSolidVoxels(vol *detour.VoxelMap, colliders []scene.Collider, vx0, vz0, vx1, vz1 int32) {
	p := vol.Params
	for i := range colliders {
		c := &colliders[i]
		xMin, xMax := voxelRange(c.Min[0]-p.Origin[0], c.Max[0]-p.Origin[0], p.VoxelSize)
		yMin, yMax := voxelRange(c.Min[1]-p.Origin[1], c.Max[1]-p.Origin[1], p.VoxelHeight)
		zMin, zMax := voxelRange(c.Min[2]-p.Origin[2], c.Max[2]-p.Origin[2], p.VoxelSize)
		xMin, xMax = max(xMin, vx0), min(xMax, vx1-1)
		yMin, yMax = max(yMin, 0), min(yMax, p.SizeY-1)
		zMin, zMax = max(zMin, vz0), min(zMax, vz1-1)
		for z := zMin; z <= zMax; z++ {
			for y := yMin; y <= yMax; y++ {
				for x := xMin; x <= xMax; x++ {
					vol.SetSolid(x, y, z)
				}
			}
		}
	}
}

// voxelRange returns the first and last voxel whose extent [i*size, (i+1)*size]
// strictly overlaps (lo, hi).
func voxelRange(lo, hi, size float32) (first, last int32) {
	first = int32(math.Floor(float64(lo / size)))
	last = int32(math.Ceil(float64(hi/size))) - 1
	return first, last
}
