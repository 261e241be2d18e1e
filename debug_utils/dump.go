// Package debug_utils exports navmesh data as Wavefront OBJ for inspection in
// a 3D viewer.
package debug_utils

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/common/rw"
	"github.com/gorustyt/vnavmesh/detour"
)

// floorOffset lifts mesh faces off the floor so they do not z-fight with the
// level geometry.
const floorOffset = 0.1

var errNilWriter = errors.New("debug_utils: nil writer")

// DumpNavmeshToObj writes the walkable surface and, if present, the solid
// voxels of nm.
func DumpNavmeshToObj(nm *detour.Navmesh, w *rw.ReaderWriter) error {
	if w == nil {
		return errNilWriter
	}
	if nm == nil || nm.Mesh == nil {
		return errors.Wrap(detour.ErrInvalidParam, "debug_utils: navmesh has no mesh")
	}
	w.WriteString(fmt.Sprintf("# vnavmesh navmesh, version %d\n", nm.Version))
	base := dumpMesh(nm.Mesh, w, 0)
	if nm.Volume != nil {
		dumpVolume(nm.Volume, w, base)
	}
	return nil
}

// DumpMeshToObj writes one quad per walkable cell, grouped by tile.
func DumpMeshToObj(m *detour.Mesh, w *rw.ReaderWriter) error {
	if w == nil {
		return errNilWriter
	}
	w.WriteString("# vnavmesh mesh\n")
	dumpMesh(m, w, 0)
	return nil
}

// DumpPathToObj writes a path as a polyline. Its line uses relative vertex
// indices, so it can follow any other dump in the same file.
func DumpPathToObj(points []common.Vec3, w *rw.ReaderWriter) error {
	if w == nil {
		return errNilWriter
	}
	if len(points) < 2 {
		return errors.Wrapf(detour.ErrInvalidParam, "debug_utils: path has %d points", len(points))
	}
	w.WriteString("o Path\n")
	for _, p := range points {
		writeVertex(w, p)
	}
	w.WriteString("l")
	for i := range points {
		w.WriteString(fmt.Sprintf(" %d", i-len(points)))
	}
	w.WriteString("\n")
	return nil
}

// dumpMesh returns the number of vertices written; OBJ indices are global and
// 1-based, so later objects continue from base.
func dumpMesh(m *detour.Mesh, w *rw.ReaderWriter, base int) int {
	w.WriteString("o NavMesh\n")
	cs := m.Params.CellSize
	for _, tile := range m.Tiles {
		if tile == nil {
			continue
		}
		w.WriteString(fmt.Sprintf("g tile_%d_%d\n", tile.X, tile.Z))
		x0, z0 := tile.X*m.Params.TileSize, tile.Z*m.Params.TileSize
		for cz := z0; cz < z0+tile.Depth; cz++ {
			for cx := x0; cx < x0+tile.Width; cx++ {
				h, area := m.Cell(cx, cz)
				if area == detour.NullArea {
					continue
				}
				x := m.Params.Origin[0] + float32(cx)*cs
				z := m.Params.Origin[2] + float32(cz)*cs
				y := h + floorOffset
				writeVertex(w, common.Vec3{x, y, z})
				writeVertex(w, common.Vec3{x, y, z + cs})
				writeVertex(w, common.Vec3{x + cs, y, z + cs})
				writeVertex(w, common.Vec3{x + cs, y, z})
				w.WriteString(fmt.Sprintf("f %d %d %d %d\n", base+1, base+2, base+3, base+4))
				base += 4
			}
		}
	}
	return base
}

// boxFaces lists the corners of each face of a box whose corners are numbered
// by bit: 1 = +x, 2 = +y, 4 = +z.
var boxFaces = [6][4]int{
	{0, 1, 3, 2}, // -z
	{4, 6, 7, 5}, // +z
	{0, 4, 5, 1}, // -y
	{2, 3, 7, 6}, // +y
	{0, 2, 6, 4}, // -x
	{1, 5, 7, 3}, // +x
}

func dumpVolume(v *detour.VoxelMap, w *rw.ReaderWriter, base int) int {
	w.WriteString("o Volume\n")
	p := v.Params
	for i := 0; i < v.NumVoxels(); i++ {
		x, y, z := v.Coords(i)
		if !v.IsSolid(x, y, z) {
			continue
		}
		lo := common.Vec3{
			p.Origin[0] + float32(x)*p.VoxelSize,
			p.Origin[1] + float32(y)*p.VoxelHeight,
			p.Origin[2] + float32(z)*p.VoxelSize,
		}
		for c := 0; c < 8; c++ {
			corner := lo
			if c&1 != 0 {
				corner[0] += p.VoxelSize
			}
			if c&2 != 0 {
				corner[1] += p.VoxelHeight
			}
			if c&4 != 0 {
				corner[2] += p.VoxelSize
			}
			writeVertex(w, corner)
		}
		for _, f := range boxFaces {
			w.WriteString(fmt.Sprintf("f %d %d %d %d\n", base+f[0]+1, base+f[1]+1, base+f[2]+1, base+f[3]+1))
		}
		base += 8
	}
	return base
}

func writeVertex(w *rw.ReaderWriter, v common.Vec3) {
	w.WriteString(fmt.Sprintf("v %f %f %f\n", v[0], v[1], v[2]))
}
