package recast

import (
	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
)

// erodeWalkableArea clears every walkable cell that lies within radius of a
// boundary cell. A boundary cell has no floor, or a floor that differs from a
// cardinal neighbour's by more than climb. Only cells inside the border are
// written; the border supplies their neighbourhood, so the result does not
// depend on which tile is built first.
func erodeWalkableArea(hf *heightfield, border int32, radius, climb, cellSize float32) {
	if radius <= 0 {
		return
	}
	// Mark boundary cells.
	boundary := make([]bool, len(hf.areas))
	for z := int32(0); z < hf.depth; z++ {
		for x := int32(0); x < hf.width; x++ {
			i := hf.index(x, z)
			if hf.areas[i] == detour.NullArea {
				boundary[i] = true
				continue
			}
			for direction := 0; direction < 4; direction++ {
				nx := x + int32(common.GetDirOffsetX(direction))
				nz := z + int32(common.GetDirOffsetY(direction))
				if nx < 0 || nz < 0 || nx >= hf.width || nz >= hf.depth {
					continue
				}
				ni := hf.index(nx, nz)
				if hf.areas[ni] != detour.NullArea && common.Abs(hf.heights[ni]-hf.heights[i]) > climb {
					boundary[i] = true
					break
				}
			}
		}
	}

	r2 := radius * radius
	var eroded []int
	for z := border; z < hf.depth-border; z++ {
		for x := border; x < hf.width-border; x++ {
			i := hf.index(x, z)
			if hf.areas[i] != detour.NullArea && nearBoundary(hf, boundary, x, z, border, r2, cellSize) {
				eroded = append(eroded, i)
			}
		}
	}
	for _, i := range eroded {
		hf.areas[i] = detour.NullArea
	}
}

func nearBoundary(hf *heightfield, boundary []bool, x, z, border int32, r2, cellSize float32) bool {
	for dz := -border; dz <= border; dz++ {
		for dx := -border; dx <= border; dx++ {
			if common.Sqr(float32(dx)*cellSize)+common.Sqr(float32(dz)*cellSize) > r2 {
				continue
			}
			if boundary[hf.index(x+dx, z+dz)] {
				return true
			}
		}
	}
	return false
}
