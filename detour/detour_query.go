package detour

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gorustyt/vnavmesh/common"
)

// searchGraph is the part of a navigation structure a search walks over.
// Node ids are cell or voxel indices.
type searchGraph interface {
	neighbours(id int32, buf []int32) []int32
	position(id int32) common.Vec3
	lineOfSight(a, b int32) bool
}

// Query answers path requests against one Navmesh. It keeps no per-search
// state, so any number of goroutines may use it at once.
type Query struct {
	nav      *Navmesh
	maxNodes int
}

func NewQuery(nav *Navmesh) *Query {
	return &Query{nav: nav, maxNodes: DefaultMaxNodes}
}

// SetMaxNodes limits the nodes a single search may visit.
func (q *Query) SetMaxNodes(n int) {
	q.maxNodes = n
}

func (q *Query) Navmesh() *Navmesh { return q.nav }

// PathfindMesh finds a walking path over the surface mesh. With useRaycast the
// search links a node to its grandparent whenever the straight segment is
// walkable; with useStringPulling the result is reduced to the waypoints where
// the direction has to change.
func (q *Query) PathfindMesh(ctx context.Context, from, to common.Vec3, useRaycast, useStringPulling bool) ([]common.Vec3, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := q.nav.Mesh
	sx, sz, ok := q.FindNearestMeshCell(from)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidParam, "no walkable cell near start %v", from)
	}
	ex, ez, ok := q.FindNearestMeshCell(to)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidParam, "no walkable cell near end %v", to)
	}
	g := &meshGraph{mesh: m}
	start, goal := g.id(sx, sz), g.id(ex, ez)

	path, err := q.findPath(ctx, g, start, goal, useRaycast, useStringPulling)
	if err != nil {
		return nil, err
	}
	return finishPath(g, path, g.endpoint(from, start), g.endpoint(to, goal)), nil
}

// PathfindVolume finds a flying path through the voxel volume.
func (q *Query) PathfindVolume(ctx context.Context, from, to common.Vec3, useRaycast, useStringPulling bool) ([]common.Vec3, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.nav.Volume == nil {
		return nil, ErrNoVolume
	}
	start := q.FindNearestVolumeVoxel(from)
	if start == InvalidVoxel {
		return nil, errors.Wrapf(ErrInvalidParam, "no free voxel near start %v", from)
	}
	goal := q.FindNearestVolumeVoxel(to)
	if goal == InvalidVoxel {
		return nil, errors.Wrapf(ErrInvalidParam, "no free voxel near end %v", to)
	}
	g := &volumeGraph{vol: q.nav.Volume}

	path, err := q.findPath(ctx, g, int32(start), int32(goal), useRaycast, useStringPulling)
	if err != nil {
		return nil, err
	}
	return finishPath(g, path, from, to), nil
}

func (q *Query) findPath(ctx context.Context, g searchGraph, start, goal int32, useRaycast, useStringPulling bool) ([]int32, error) {
	path, err := q.search(ctx, g, start, goal, useRaycast)
	if err != nil {
		return nil, err
	}
	if useStringPulling {
		return pullString(ctx, g, path)
	}
	return path, nil
}

// search runs A* from start to goal. In any-angle mode (raycast shortcuts) a
// neighbour is connected straight to the current node's parent when the
// parent can see it.
func (q *Query) search(ctx context.Context, g searchGraph, start, goal int32, anyAngle bool) ([]int32, error) {
	if start == goal {
		return []int32{start}, nil
	}
	goalPos := g.position(goal)
	heuristic := func(id int32) float32 { return common.Vdist(g.position(id), goalPos) }

	pool := NewDtNodePool(q.maxNodes)
	openList := NewNodeQueue(func(a, b *DtNode) bool { return a.Total < b.Total })

	startNode := pool.GetNode(start)
	startNode.Total = heuristic(start)
	startNode.Flags = DT_NODE_OPEN
	openList.Offer(startNode)

	var buf []int32
	outOfNodes := false
	for iter := 0; !openList.Empty(); iter++ {
		if iter%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// Remove node from open list and put it in closed list.
		bestNode := openList.Poll()
		bestNode.Flags &^= DT_NODE_OPEN
		bestNode.Flags |= DT_NODE_CLOSED

		// Reached the goal, stop searching.
		if bestNode.Id == goal {
			return pathToNode(bestNode), nil
		}

		buf = g.neighbours(bestNode.Id, buf[:0])
		for _, neighbourRef := range buf {
			// do not expand back to where we came from.
			if bestNode.Parent != nil && neighbourRef == bestNode.Parent.Id {
				continue
			}
			neighbourNode := pool.GetNode(neighbourRef)
			if neighbourNode == nil {
				outOfNodes = true
				continue
			}
			if neighbourNode.Flags&DT_NODE_CLOSED != 0 {
				continue
			}

			parent := bestNode
			if anyAngle && bestNode.Parent != nil && g.lineOfSight(bestNode.Parent.Id, neighbourRef) {
				parent = bestNode.Parent
			}
			cost := parent.Cost + common.Vdist(g.position(parent.Id), g.position(neighbourRef))

			// The node is already in open list and the new result is worse, skip.
			if neighbourNode.Flags&DT_NODE_OPEN != 0 && cost >= neighbourNode.Cost {
				continue
			}
			neighbourNode.Parent = parent
			neighbourNode.Cost = cost
			neighbourNode.Total = cost + heuristic(neighbourRef)

			if neighbourNode.Flags&DT_NODE_OPEN != 0 {
				openList.Update(neighbourNode)
			} else {
				neighbourNode.Flags |= DT_NODE_OPEN
				openList.Offer(neighbourNode)
			}
		}
	}
	if outOfNodes {
		return nil, errors.Wrap(ErrNoPath, "out of nodes")
	}
	return nil, ErrNoPath
}

func pathToNode(endNode *DtNode) []int32 {
	n := 0
	for node := endNode; node != nil; node = node.Parent {
		n++
	}
	path := make([]int32, n)
	for node := endNode; node != nil; node = node.Parent {
		n--
		path[n] = node.Id
	}
	return path
}

// pullString keeps only the waypoints needed to stay on walkable ground:
// from each kept point it jumps to the farthest later point still in sight.
func pullString(ctx context.Context, g searchGraph, path []int32) ([]int32, error) {
	if len(path) < 3 {
		return path, nil
	}
	out := []int32{path[0]}
	for i := 0; i < len(path)-1; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		j := len(path) - 1
		for ; j > i+1; j-- {
			if g.lineOfSight(path[i], path[j]) {
				break
			}
		}
		out = append(out, path[j])
		i = j
	}
	return out, nil
}

// finishPath converts node ids to points, replacing the first and last with
// the exact endpoints.
func finishPath(g searchGraph, path []int32, from, to common.Vec3) []common.Vec3 {
	points := make([]common.Vec3, 0, len(path)+1)
	points = append(points, from)
	for i := 1; i < len(path)-1; i++ {
		points = append(points, g.position(path[i]))
	}
	if to != from {
		points = append(points, to)
	}
	return points
}

// FindNearestMeshCell returns the walkable cell closest to pos, searching
// outward ring by ring.
func (q *Query) FindNearestMeshCell(pos common.Vec3) (cx, cz int32, ok bool) {
	m := q.nav.Mesh
	px, pz := m.CellCoords(pos)
	var best float32
	for r := int32(0); r <= nearestSearchRadius && !ok; r++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if max(common.Abs(dx), common.Abs(dz)) != r {
					continue
				}
				x, z := px+dx, pz+dz
				if !m.Walkable(x, z) {
					continue
				}
				d := common.Vdist(pos, m.CellCenter(x, z))
				if !ok || d < best {
					cx, cz, best, ok = x, z, d, true
				}
			}
		}
	}
	return cx, cz, ok
}

// FindPointOnFloor projects pos onto the floor of the cell below it.
func (q *Query) FindPointOnFloor(pos common.Vec3) (common.Vec3, bool) {
	m := q.nav.Mesh
	cx, cz, ok := m.CellOf(pos)
	if !ok {
		return common.Vec3{}, false
	}
	h, area := m.Cell(cx, cz)
	if area == NullArea {
		return common.Vec3{}, false
	}
	return common.Vec3{pos[0], h, pos[2]}, true
}

// FindNearestVolumeVoxel returns the index of the free voxel closest to pos,
// or InvalidVoxel.
func (q *Query) FindNearestVolumeVoxel(pos common.Vec3) int {
	v := q.nav.Volume
	if v == nil {
		return InvalidVoxel
	}
	px, py, pz := v.VoxelOf(pos)
	best, bestDist := InvalidVoxel, float32(0)
	for r := int32(0); r <= nearestSearchRadius/2 && best == InvalidVoxel; r++ {
		for dz := -r; dz <= r; dz++ {
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if max(common.Abs(dx), common.Abs(dy), common.Abs(dz)) != r {
						continue
					}
					x, y, z := px+dx, py+dy, pz+dz
					if v.IsSolid(x, y, z) {
						continue
					}
					d := common.Vdist(pos, v.VoxelCenter(x, y, z))
					if best == InvalidVoxel || d < bestDist {
						best, bestDist = v.Index(x, y, z), d
					}
				}
			}
		}
	}
	return best
}
