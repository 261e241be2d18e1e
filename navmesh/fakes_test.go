package navmesh

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
	"github.com/gorustyt/vnavmesh/recast"
	"github.com/gorustyt/vnavmesh/scene"
)

const (
	zoneA = "ZoneA//0//0.0.0.0"
	zoneB = "ZoneB//0//0.0.0.0"
)

type fakeWorld struct {
	mu         sync.Mutex
	key        string
	captureErr error
	captures   int
}

func (w *fakeWorld) setKey(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = key
}

func (w *fakeWorld) LiveKey() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

func (w *fakeWorld) CaptureScene() (*scene.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.captures++
	if w.captureErr != nil {
		return nil, w.captureErr
	}
	return &scene.Snapshot{TerritoryID: 1, Bg: w.key}, nil
}

func (w *fakeWorld) CacheKey(s *scene.Snapshot) string {
	return strings.NewReplacer("/", "_", ".", "-").Replace(s.Bg)
}

// fakeBuilds hands out builders producing a one-cell navmesh. With gate set,
// every tile waits for a token from it.
type fakeBuilds struct {
	nx, nz   int
	gate     chan struct{}
	gateOnce sync.Once
	failTile bool
	builders atomic.Int32
	tiles    atomic.Int32
}

// openGate lets every remaining tile through.
func (f *fakeBuilds) openGate() {
	if f.gate != nil {
		f.gateOnce.Do(func() { close(f.gate) })
	}
}

func (f *fakeBuilds) factory(s *scene.Snapshot, cust recast.Customization) (Builder, error) {
	f.builders.Add(1)
	return &fakeBuilder{f: f, cust: cust}, nil
}

type fakeBuilder struct {
	f     *fakeBuilds
	cust  recast.Customization
	built int
}

func (b *fakeBuilder) NumTilesX() int { return b.f.nx }
func (b *fakeBuilder) NumTilesZ() int { return b.f.nz }

func (b *fakeBuilder) BuildTile(x, z int) error {
	if b.f.gate != nil {
		<-b.f.gate
	}
	if b.f.failTile {
		return errors.New("rasterization failed")
	}
	b.f.tiles.Add(1)
	b.built++
	return nil
}

func (b *fakeBuilder) Navmesh() (*detour.Navmesh, error) {
	if b.built != b.f.nx*b.f.nz {
		return nil, errors.New("missing tiles")
	}
	return testNavmesh(b.cust.Version), nil
}

func testNavmesh(version int32) *detour.Navmesh {
	m := detour.NewMesh(detour.MeshParams{CellSize: 1, TileSize: 1, Width: 1, Depth: 1, WalkableHeight: 2})
	if err := m.AddTile(&detour.MeshTile{Width: 1, Depth: 1, Heights: []float32{0}, Areas: []uint8{detour.WalkableArea}}); err != nil {
		panic(err)
	}
	return &detour.Navmesh{Version: version, Mesh: m}
}

type memCache struct {
	mu         sync.Mutex
	entries    map[string]*detour.Navmesh
	loads      int
	saves      int
	failWrites bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*detour.Navmesh)}
}

func (c *memCache) Exists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *memCache) Load(key string, version int32) (*detour.Navmesh, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	nm, ok := c.entries[key]
	if !ok {
		return nil, errors.New("not found")
	}
	if nm.Version != version {
		return nil, detour.ErrWrongVersion
	}
	c.loads++
	return nm, nil
}

func (c *memCache) Save(key string, nm *detour.Navmesh) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if c.failWrites {
		return errors.New("disk full")
	}
	c.entries[key] = nm
	return nil
}

func (c *memCache) counts() (loads, saves int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads, c.saves
}

// fakeQuery records the order searches start in. With hold set, a search
// blocks until it receives from release or its context is cancelled.
type fakeQuery struct {
	hold    atomic.Bool
	release chan struct{}
	// lagCancel makes a held search notice cancellation only once released
	lagCancel atomic.Bool

	mu         sync.Mutex
	started    []common.Vec3
	running    int
	maxRunning int
}

func newFakeQuery() *fakeQuery {
	return &fakeQuery{release: make(chan struct{})}
}

func (q *fakeQuery) search(ctx context.Context, from, to common.Vec3) ([]common.Vec3, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	q.started = append(q.started, to)
	q.running++
	q.maxRunning = max(q.maxRunning, q.running)
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.running--
		q.mu.Unlock()
	}()

	if q.hold.Load() && q.lagCancel.Load() {
		<-q.release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	} else if q.hold.Load() {
		select {
		case <-q.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if to[0] < 0 {
		return nil, detour.ErrNoPath
	}
	return []common.Vec3{from, to}, nil
}

func (q *fakeQuery) PathfindMesh(ctx context.Context, from, to common.Vec3, _, _ bool) ([]common.Vec3, error) {
	return q.search(ctx, from, to)
}

func (q *fakeQuery) PathfindVolume(ctx context.Context, from, to common.Vec3, _, _ bool) ([]common.Vec3, error) {
	return q.search(ctx, from, to)
}

func (q *fakeQuery) numStarted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.started)
}

type change struct {
	nm *detour.Navmesh
	q  QueryEngine
}

type fixture struct {
	world   *fakeWorld
	builds  *fakeBuilds
	cache   *memCache
	query   *fakeQuery
	m       *Manager
	changes []change
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		world:  &fakeWorld{},
		builds: &fakeBuilds{nx: 2, nz: 2},
		cache:  newMemCache(),
		query:  newFakeQuery(),
	}
	opts := Options{
		Cache:            f.cache,
		NewBuilder:       f.builds.factory,
		NewQuery:         func(*detour.Navmesh) QueryEngine { return f.query },
		Logger:           zaptest.NewLogger(t),
		AutoLoad:         true,
		UseRaycasts:      true,
		UseStringPulling: true,
	}
	for _, c := range configure {
		c(&opts)
	}
	f.m = New(f.world, opts)
	f.m.OnNavmeshChanged(func(nm *detour.Navmesh, q QueryEngine) {
		f.changes = append(f.changes, change{nm, q})
	})
	t.Cleanup(func() {
		f.builds.openGate()
		f.query.hold.Store(false)
		f.m.Close()
	})
	return f
}

// load switches the world to key and ticks until its navmesh is ready.
func (f *fixture) load(t *testing.T, key string) {
	t.Helper()
	f.world.setKey(key)
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready && f.m.CurrentKey() == key })
}

const waitTimeout = 5 * time.Second

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// tickUntil calls Update until cond holds.
func tickUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	waitFor(t, func() bool {
		m.Update()
		return cond()
	})
}

func waitDone(t *testing.T, task *PathTask) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(waitTimeout):
		t.Fatal("path task did not resolve")
	}
}

func runQuery(t *testing.T, m *Manager, from, to common.Vec3, flying bool) []common.Vec3 {
	t.Helper()
	task := m.QueryPath(from, to, flying, context.Background())
	require.NotNil(t, task)
	tickUntil(t, m, func() bool { return task.isDone() })
	points, err := task.Result()
	require.NoError(t, err)
	return points
}
