package detour

import (
	"github.com/gorustyt/vnavmesh/common"
)

// meshGraph walks the surface mesh. Cells connect to their 8 neighbours when
// the floor step is within WalkableClimb; diagonal moves also need both
// adjacent orthogonal cells to be passable so paths never cut corners.
type meshGraph struct {
	mesh *Mesh
}

func (g *meshGraph) id(cx, cz int32) int32 {
	return cz*g.mesh.Params.Width + cx
}

func (g *meshGraph) coords(id int32) (cx, cz int32) {
	w := g.mesh.Params.Width
	return id % w, id / w
}

func (g *meshGraph) position(id int32) common.Vec3 {
	cx, cz := g.coords(id)
	return g.mesh.CellCenter(cx, cz)
}

// endpoint returns pos dropped onto the floor of its cell when that cell is
// the search endpoint, otherwise the center of the endpoint cell.
func (g *meshGraph) endpoint(pos common.Vec3, id int32) common.Vec3 {
	cx, cz := g.coords(id)
	if px, pz := g.mesh.CellCoords(pos); px == cx && pz == cz {
		h, _ := g.mesh.Cell(cx, cz)
		return common.Vec3{pos[0], h, pos[2]}
	}
	return g.mesh.CellCenter(cx, cz)
}

func (g *meshGraph) canStep(fromX, fromZ, toX, toZ int32) bool {
	h0, a0 := g.mesh.Cell(fromX, fromZ)
	h1, a1 := g.mesh.Cell(toX, toZ)
	if a0 == NullArea || a1 == NullArea {
		return false
	}
	return common.Abs(h1-h0) <= g.mesh.Params.WalkableClimb
}

func (g *meshGraph) neighbours(id int32, buf []int32) []int32 {
	cx, cz := g.coords(id)
	for dir := 0; dir < 8; dir++ {
		dx, dz := int32(common.GetDirOffsetX(dir)), int32(common.GetDirOffsetY(dir))
		nx, nz := cx+dx, cz+dz
		if !g.canStep(cx, cz, nx, nz) {
			continue
		}
		if dir >= 4 && (!g.canStep(cx, cz, nx, cz) || !g.canStep(cx, cz, cx, nz)) {
			continue
		}
		buf = append(buf, g.id(nx, nz))
	}
	return buf
}

// lineOfSight samples the xz segment between two cell centers and checks
// every crossed cell is walkable and reachable from the previous one.
func (g *meshGraph) lineOfSight(a, b int32) bool {
	pa, pb := g.position(a), g.position(b)
	dist := common.Vdist2D(pa, pb)
	step := g.mesh.Params.CellSize * 0.25
	n := int(dist/step) + 1
	px, pz := g.coords(a)
	for i := 1; i <= n; i++ {
		p := common.Vlerp(pa, pb, float32(i)/float32(n))
		cx, cz := g.mesh.CellCoords(p)
		if cx == px && cz == pz {
			continue
		}
		if !g.canStep(px, pz, cx, cz) {
			return false
		}
		if cx != px && cz != pz && (!g.canStep(px, pz, cx, pz) || !g.canStep(px, pz, px, cz)) {
			return false
		}
		px, pz = cx, cz
	}
	return true
}

// volumeGraph walks free voxels with 26-connectivity. A diagonal step also
// needs every voxel on the axis-aligned routes to its target to be free, so
// paths never slip between voxels that only share an edge or a corner.
type volumeGraph struct {
	vol *VoxelMap
}

func (g *volumeGraph) position(id int32) common.Vec3 {
	x, y, z := g.vol.Coords(int(id))
	return g.vol.VoxelCenter(x, y, z)
}

// canStep reports whether the voxel at offset (dx, dy, dz), each in [-1, 1],
// is reachable from (x, y, z).
func (g *volumeGraph) canStep(x, y, z, dx, dy, dz int32) bool {
	for sz := min(dz, 0); sz <= max(dz, 0); sz++ {
		for sy := min(dy, 0); sy <= max(dy, 0); sy++ {
			for sx := min(dx, 0); sx <= max(dx, 0); sx++ {
				if (sx != 0 || sy != 0 || sz != 0) && g.vol.IsSolid(x+sx, y+sy, z+sz) {
					return false
				}
			}
		}
	}
	return true
}

func (g *volumeGraph) neighbours(id int32, buf []int32) []int32 {
	x, y, z := g.vol.Coords(int(id))
	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				if !g.canStep(x, y, z, dx, dy, dz) {
					continue
				}
				buf = append(buf, int32(g.vol.Index(x+dx, y+dy, z+dz)))
			}
		}
	}
	return buf
}

// lineOfSight samples the segment between two voxel centers at half-voxel
// steps; every voxel change between samples must be a legal step.
func (g *volumeGraph) lineOfSight(a, b int32) bool {
	pa, pb := g.position(a), g.position(b)
	p := g.vol.Params
	step := min(p.VoxelSize, p.VoxelHeight) * 0.5
	n := int(common.Vdist(pa, pb)/step) + 1
	px, py, pz := g.vol.Coords(int(a))
	for i := 1; i <= n; i++ {
		x, y, z := g.vol.VoxelOf(common.Vlerp(pa, pb, float32(i)/float32(n)))
		dx, dy, dz := x-px, y-py, z-pz
		if dx == 0 && dy == 0 && dz == 0 {
			continue
		}
		if max(common.Abs(dx), common.Abs(dy), common.Abs(dz)) > 1 || !g.canStep(px, py, pz, dx, dy, dz) {
			return false
		}
		px, py, pz = x, y, z
	}
	return true
}
