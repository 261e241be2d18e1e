package detour

import (
	"math"

	"github.com/gorustyt/vnavmesh/common"
)

const InvalidVoxel = -1

type VoxelParams struct {
	Origin      common.Vec3
	VoxelSize   float32 // xz extent of a voxel
	VoxelHeight float32 // y extent of a voxel
	SizeX       int32
	SizeY       int32
	SizeZ       int32
}

// VoxelMap is a solid/free occupancy grid used for flying paths.
type VoxelMap struct {
	Params VoxelParams
	Solid  []uint64
}

// VoxelCount returns sx*sy*sz, or false when a size is negative or the
// product exceeds MaxVoxelCount.
func VoxelCount(sx, sy, sz int32) (int64, bool) {
	if sx < 0 || sy < 0 || sz < 0 {
		return 0, false
	}
	n := int64(sx) * int64(sy)
	if n > MaxVoxelCount {
		return 0, false
	}
	n *= int64(sz)
	return n, n <= MaxVoxelCount
}

func NewVoxelMap(params VoxelParams) *VoxelMap {
	n := int(params.SizeX) * int(params.SizeY) * int(params.SizeZ)
	return &VoxelMap{Params: params, Solid: make([]uint64, (n+63)/64)}
}

func (v *VoxelMap) NumVoxels() int {
	return int(v.Params.SizeX) * int(v.Params.SizeY) * int(v.Params.SizeZ)
}

func (v *VoxelMap) InBounds(x, y, z int32) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Params.SizeX && y < v.Params.SizeY && z < v.Params.SizeZ
}

func (v *VoxelMap) Index(x, y, z int32) int {
	return common.Index3(int(x), int(y), int(z), int(v.Params.SizeX), int(v.Params.SizeY))
}

func (v *VoxelMap) Coords(index int) (x, y, z int32) {
	sx, sy := int(v.Params.SizeX), int(v.Params.SizeY)
	return int32(index % sx), int32((index / sx) % sy), int32(index / (sx * sy))
}

// IsSolid reports whether a voxel is blocked. Voxels outside the map are solid.
func (v *VoxelMap) IsSolid(x, y, z int32) bool {
	if !v.InBounds(x, y, z) {
		return true
	}
	i := v.Index(x, y, z)
	return v.Solid[i>>6]&(1<<(i&63)) != 0
}

func (v *VoxelMap) SetSolid(x, y, z int32) {
	i := v.Index(x, y, z)
	v.Solid[i>>6] |= 1 << (i & 63)
}

// VoxelOf returns the voxel coordinates containing pos; they may be outside the map.
func (v *VoxelMap) VoxelOf(pos common.Vec3) (x, y, z int32) {
	p := v.Params
	x = int32(math.Floor(float64((pos[0] - p.Origin[0]) / p.VoxelSize)))
	y = int32(math.Floor(float64((pos[1] - p.Origin[1]) / p.VoxelHeight)))
	z = int32(math.Floor(float64((pos[2] - p.Origin[2]) / p.VoxelSize)))
	return x, y, z
}

func (v *VoxelMap) VoxelCenter(x, y, z int32) common.Vec3 {
	p := v.Params
	return common.Vec3{
		p.Origin[0] + (float32(x)+0.5)*p.VoxelSize,
		p.Origin[1] + (float32(y)+0.5)*p.VoxelHeight,
		p.Origin[2] + (float32(z)+0.5)*p.VoxelSize,
	}
}
