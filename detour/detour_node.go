package detour

import (
	"container/heap"
)

const (
	DT_NODE_OPEN   = 0x01
	DT_NODE_CLOSED = 0x02
)

type DtNode struct {
	Cost   float32 ///< Cost up to the node.
	Total  float32 ///< Cost up to the node plus the heuristic.
	Parent *DtNode ///< Parent node; may not be adjacent when found using raycast.
	Flags  uint32  ///< Node flags. A combination of DT_NODE_OPEN and DT_NODE_CLOSED.
	Id     int32   ///< Cell or voxel the node corresponds to.
	_index int     // position in the open list heap
}

func (node *DtNode) SetIndex(index int) {
	node._index = index
}

func (node *DtNode) GetIndex() int {
	return node._index
}

type NodeQueueIndex interface {
	SetIndex(index int)
	GetIndex() int
}

type NodeQueue[T any] interface {
	Poll() T         // pops the top of the heap
	Update(any) bool // restores heap order after an element changed
	Offer(T)         // pushes an element
	Empty() bool
}

// priority queue
type nodeQueue[T any] struct {
	data []T
	less func(t1, t2 T) bool
}

func NewNodeQueue[T any](less func(t1, t2 T) bool) NodeQueue[T] {
	q := &nodeQueue[T]{less: less}
	heap.Init(q)
	return q
}

func (q *nodeQueue[T]) Poll() T { return heap.Pop(q).(T) }

func (q *nodeQueue[T]) Update(value any) bool {
	if v, ok := value.(NodeQueueIndex); ok {
		heap.Fix(q, v.GetIndex())
		return true
	}
	return false
}

func (q *nodeQueue[T]) Offer(value T) { heap.Push(q, value) }

func (q *nodeQueue[T]) Push(x any) {
	q.data = append(q.data, x.(T))
	if v, ok := x.(NodeQueueIndex); ok {
		v.SetIndex(len(q.data) - 1)
	}
}

func (q *nodeQueue[T]) Pop() (res any) {
	n := len(q.data)
	res = q.data[n-1]
	var zero T
	q.data[n-1] = zero
	q.data = q.data[:n-1]
	if v, ok := res.(NodeQueueIndex); ok {
		v.SetIndex(-1)
	}
	return res
}

func (q *nodeQueue[T]) Len() int {
	return len(q.data)
}

func (q *nodeQueue[T]) Empty() bool {
	return q.Len() == 0
}

func (q *nodeQueue[T]) Less(i, j int) bool { return q.less(q.data[i], q.data[j]) }

func (q *nodeQueue[T]) Swap(i, j int) {
	q.data[i], q.data[j] = q.data[j], q.data[i]
	var vi any = q.data[i]
	var vj any = q.data[j]
	if v, ok := vi.(NodeQueueIndex); ok {
		v.SetIndex(i)
	}
	if v, ok := vj.(NodeQueueIndex); ok {
		v.SetIndex(j)
	}
}

// DtNodePool hands out one node per id, up to maxNodes.
type DtNodePool struct {
	m_nodes    map[int32]*DtNode
	m_maxNodes int
}

func NewDtNodePool(maxNodes int) *DtNodePool {
	return &DtNodePool{
		m_nodes:    make(map[int32]*DtNode),
		m_maxNodes: maxNodes,
	}
}

func (p *DtNodePool) GetNodeCount() int { return len(p.m_nodes) }

// GetNode returns the node for id, allocating it on first use. Returns nil
// once the pool is exhausted.
func (p *DtNodePool) GetNode(id int32) *DtNode {
	if node, ok := p.m_nodes[id]; ok {
		return node
	}
	if len(p.m_nodes) >= p.m_maxNodes {
		return nil
	}
	node := &DtNode{Id: id, _index: -1}
	p.m_nodes[id] = node
	return node
}

func (p *DtNodePool) FindNode(id int32) *DtNode {
	return p.m_nodes[id]
}
