package navmesh

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gorustyt/vnavmesh/cache"
	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
	"github.com/gorustyt/vnavmesh/recast"
	"github.com/gorustyt/vnavmesh/scene"
)

func TestFirstLoadNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	m := f.m
	assert.Equal(t, Unloaded, m.State())
	assert.Equal(t, float32(-1), m.LoadTaskProgress())

	m.Update()
	assert.Equal(t, Unloaded, m.State(), "no region yet")

	f.load(t, zoneA)
	require.Len(t, f.changes, 1)
	assert.NotNil(t, f.changes[0].nm)
	assert.Same(t, f.query, f.changes[0].q)
	assert.Same(t, m.Navmesh(), f.changes[0].nm)
	assert.Equal(t, zoneA, m.CurrentKey())
	assert.Equal(t, float32(-1), m.LoadTaskProgress())
	assert.False(t, m.PathfindInProgress())
	assert.NoError(t, m.LastError())

	// steady state: nothing more happens
	for i := 0; i < 5; i++ {
		m.Update()
	}
	assert.Len(t, f.changes, 1)
	assert.EqualValues(t, 1, f.builds.builders.Load())
}

func TestReloadRejectedWhileLoading(t *testing.T) {
	f := newFixture(t)
	f.builds.gate = make(chan struct{})
	f.world.setKey(zoneA)
	f.m.Update()
	require.Equal(t, Loading, f.m.State())

	err := f.m.Reload(true)
	assert.ErrorIs(t, err, ErrAlreadyLoading)
	err = f.m.Reload(false)
	assert.ErrorIs(t, err, ErrAlreadyLoading)

	f.builds.openGate()
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	assert.EqualValues(t, 1, f.builds.builders.Load())
	assert.Len(t, f.changes, 1)
}

func TestLoadProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.builds.gate = make(chan struct{})
	f.world.setKey(zoneA)
	f.m.Update()
	require.Equal(t, Loading, f.m.State())
	assert.Equal(t, float32(0), f.m.LoadTaskProgress())
	assert.Equal(t, "Navmesh: 0%", f.m.Status())

	prev := float32(0)
	for i := 1; i <= 4; i++ {
		f.builds.gate <- struct{}{}
		want := float32(i) / 4
		waitFor(t, func() bool { return f.m.LoadTaskProgress() == want })
		assert.GreaterOrEqual(t, f.m.LoadTaskProgress(), prev)
		prev = want
		f.m.Update()
	}
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	assert.Equal(t, float32(-1), f.m.LoadTaskProgress())
}

func TestReloadUsesCache(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)
	_, saves := f.cache.counts()
	require.Equal(t, 1, saves)
	require.EqualValues(t, 4, f.builds.tiles.Load())

	require.NoError(t, f.m.Reload(true))
	assert.Equal(t, Loading, f.m.State())
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })

	loads, saves := f.cache.counts()
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, saves, "cache hit is not written back")
	assert.EqualValues(t, 1, f.builds.builders.Load())
	assert.EqualValues(t, 4, f.builds.tiles.Load())
	// loaded, unloaded by the reload, loaded again
	require.Len(t, f.changes, 3)
	assert.Nil(t, f.changes[1].nm)
	assert.Nil(t, f.changes[1].q)
	assert.NotNil(t, f.changes[2].nm)
}

func TestRebuildBypassesCache(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)

	require.NoError(t, f.m.Reload(false))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })

	loads, saves := f.cache.counts()
	assert.Equal(t, 0, loads)
	assert.Equal(t, 2, saves, "rebuilt navmesh is still written")
	assert.EqualValues(t, 2, f.builds.builders.Load())
}

func TestCustomizationVersionMismatchRebuilds(t *testing.T) {
	def := recast.DefaultCustomization()
	f := newFixture(t, func(o *Options) { o.Customizations = recast.NewRegistry(def) })
	f.load(t, zoneA)

	def.Version++
	f.m.customizations = recast.NewRegistry(def)
	require.NoError(t, f.m.Reload(true))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })

	assert.EqualValues(t, 2, f.builds.builders.Load())
	assert.Equal(t, def.Version, f.m.Navmesh().Version)
}

func TestAutoLoadDisabledOnlyUnloads(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.AutoLoad = false })
	f.world.setKey(zoneA)
	for i := 0; i < 3; i++ {
		f.m.Update()
	}
	assert.Equal(t, Unloaded, f.m.State())
	assert.Zero(t, f.world.captures)

	f.m.AutoLoad = true
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })

	f.m.AutoLoad = false
	f.world.setKey(zoneB)
	f.m.Update()
	assert.Equal(t, Unloaded, f.m.State())
	assert.Nil(t, f.m.Navmesh())
	assert.Nil(t, f.m.Query())
	assert.Equal(t, "", f.m.CurrentKey())
	require.Len(t, f.changes, 2)
	assert.Nil(t, f.changes[1].nm)

	for i := 0; i < 3; i++ {
		f.m.Update()
	}
	assert.Equal(t, Unloaded, f.m.State())
	assert.EqualValues(t, 1, f.builds.builders.Load())
}

func TestZoneTransition(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)
	first := f.m.Navmesh()

	f.query.hold.Store(true)
	running := f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background())
	queued := f.m.QueryPath(common.Vec3{}, common.Vec3{2, 0, 0}, false, context.Background())
	f.m.Update()
	waitFor(t, func() bool { return f.query.numStarted() == 1 })

	// mid-transition the world reports no region
	f.world.setKey("")
	f.m.Update()
	assert.Equal(t, Unloaded, f.m.State())
	assert.True(t, queued.Cancelled())
	waitDone(t, running)
	assert.True(t, running.Cancelled())
	require.Len(t, f.changes, 2)
	assert.Nil(t, f.changes[1].nm)
	assert.Nil(t, f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background()))

	f.load(t, zoneB)
	assert.NotSame(t, first, f.m.Navmesh())
	require.Len(t, f.changes, 3)
	assert.NotNil(t, f.changes[2].nm)
}

func TestPathQueriesRunInOrder(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)
	f.query.hold.Store(true)

	var tasks []*PathTask
	for i := 1; i <= 3; i++ {
		task := f.m.QueryPath(common.Vec3{}, common.Vec3{float32(i), 0, 0}, false, context.Background())
		require.NotNil(t, task)
		tasks = append(tasks, task)
	}
	assert.Equal(t, 3, f.m.NumQueuedPathfindRequests())
	assert.False(t, f.m.PathfindInProgress())

	for i, task := range tasks {
		tickUntil(t, f.m, func() bool { return f.query.numStarted() == i+1 })
		assert.True(t, f.m.PathfindInProgress())
		assert.Equal(t, 2-i, f.m.NumQueuedPathfindRequests())
		_, err := task.Result()
		assert.ErrorIs(t, err, ErrPending)

		f.query.release <- struct{}{}
		waitDone(t, task)
		points, err := task.Result()
		require.NoError(t, err)
		assert.Equal(t, []common.Vec3{{}, {float32(i + 1), 0, 0}}, points)
	}
	f.m.Update()
	assert.False(t, f.m.PathfindInProgress())

	assert.Equal(t, []common.Vec3{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}}, f.query.started)
	assert.Equal(t, 1, f.query.maxRunning)
}

func TestCancelAllQueries(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.m.CancelAllQueries(), ErrNotReady)
	assert.Nil(t, f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background()))

	f.load(t, zoneA)
	f.query.hold.Store(true)
	var tasks []*PathTask
	for i := 1; i <= 3; i++ {
		tasks = append(tasks, f.m.QueryPath(common.Vec3{}, common.Vec3{float32(i), 0, 0}, false, context.Background()))
	}
	tickUntil(t, f.m, func() bool { return f.query.numStarted() == 1 })

	require.NoError(t, f.m.CancelAllQueries())
	assert.Zero(t, f.m.NumQueuedPathfindRequests())
	for _, task := range tasks {
		waitDone(t, task)
		assert.True(t, task.Cancelled())
		_, err := task.Result()
		assert.ErrorIs(t, err, context.Canceled)
	}

	// later requests are unaffected
	f.query.hold.Store(false)
	after := f.m.QueryPath(common.Vec3{}, common.Vec3{4, 0, 0}, false, context.Background())
	tickUntil(t, f.m, func() bool { return after.isDone() })
	points, err := after.Result()
	require.NoError(t, err)
	assert.Len(t, points, 2)
	assert.Equal(t, 2, f.query.numStarted(), "cancelled queued requests never ran")
	assert.Equal(t, Ready, f.m.State())
}

func TestReloadCancelsQueries(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)
	var tasks []*PathTask
	for i := 1; i <= 3; i++ {
		tasks = append(tasks, f.m.QueryPath(common.Vec3{}, common.Vec3{float32(i), 0, 0}, false, context.Background()))
	}

	require.NoError(t, f.m.Reload(true))
	for _, task := range tasks {
		waitDone(t, task)
		assert.True(t, task.Cancelled())
	}
	require.Len(t, f.changes, 2)
	assert.Nil(t, f.changes[1].nm)
	assert.Nil(t, f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background()))
	assert.Zero(t, f.query.numStarted())
}

func TestReloadWaitsForCancelledSearch(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)
	f.query.hold.Store(true)
	f.query.lagCancel.Store(true)

	old := f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background())
	tickUntil(t, f.m, func() bool { return f.query.numStarted() == 1 })

	require.NoError(t, f.m.Reload(true))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	f.query.hold.Store(false)
	next := f.m.QueryPath(common.Vec3{}, common.Vec3{2, 0, 0}, false, context.Background())
	require.NotNil(t, next)
	for i := 0; i < 5; i++ {
		f.m.Update()
	}
	assert.Equal(t, 1, f.query.numStarted())
	assert.True(t, f.m.PathfindInProgress())

	f.query.release <- struct{}{}
	waitDone(t, old)
	assert.True(t, old.Cancelled())
	tickUntil(t, f.m, func() bool { return next.isDone() })
	points, err := next.Result()
	require.NoError(t, err)
	assert.Equal(t, []common.Vec3{{}, {2, 0, 0}}, points)
	assert.Equal(t, 1, f.query.maxRunning)
}

func TestExternalCancellation(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)
	f.query.hold.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, ctx)
	second := f.m.QueryPath(common.Vec3{}, common.Vec3{2, 0, 0}, true, context.Background())
	tickUntil(t, f.m, func() bool { return f.query.numStarted() == 1 })

	cancel()
	waitDone(t, first)
	assert.True(t, first.Cancelled())
	assert.False(t, second.isDone())

	f.query.hold.Store(false)
	tickUntil(t, f.m, func() bool { return second.isDone() })
	assert.False(t, second.Cancelled())
	points, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.Vec3{2, 0, 0}, points[len(points)-1])
}

func TestExternalCancellationWhileQueued(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)

	ctx, cancel := context.WithCancel(context.Background())
	task := f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, ctx)
	cancel()
	waitDone(t, task)
	assert.True(t, task.Cancelled())

	f.m.Update()
	assert.Zero(t, f.query.numStarted())
	assert.False(t, f.m.PathfindInProgress())
}

func TestSearchFailureOnlyAffectsItsRequest(t *testing.T) {
	f := newFixture(t)
	f.load(t, zoneA)

	bad := f.m.QueryPath(common.Vec3{}, common.Vec3{-1, 0, 0}, false, context.Background())
	good := f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background())
	tickUntil(t, f.m, func() bool { return bad.isDone() && good.isDone() })

	_, err := bad.Result()
	assert.ErrorIs(t, err, detour.ErrNoPath)
	assert.False(t, bad.Cancelled())
	_, err = good.Result()
	assert.NoError(t, err)
	assert.Equal(t, Ready, f.m.State())
}

func TestBuildFailureLeavesUnloaded(t *testing.T) {
	f := newFixture(t)
	f.builds.failTile = true
	f.world.setKey(zoneA)
	tickUntil(t, f.m, func() bool { return f.m.LastError() != nil })

	assert.Equal(t, Unloaded, f.m.State())
	var be *BuildError
	require.True(t, errors.As(f.m.LastError(), &be))
	assert.Equal(t, PhaseBuild, be.Phase)
	assert.Equal(t, zoneA, be.Key)
	assert.Empty(t, f.changes)
	_, saves := f.cache.counts()
	assert.Zero(t, saves)

	// no automatic retry for the same region
	for i := 0; i < 5; i++ {
		f.m.Update()
	}
	assert.EqualValues(t, 1, f.builds.builders.Load())

	f.builds.failTile = false
	require.NoError(t, f.m.Reload(true))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	assert.NoError(t, f.m.LastError())
}

func TestCaptureFailure(t *testing.T) {
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) { o.Metrics = metrics })
	f.world.captureErr = errors.New("layout not streamed in")
	f.world.setKey(zoneA)
	tickUntil(t, f.m, func() bool { return f.m.LastError() != nil })

	var be *BuildError
	require.True(t, errors.As(f.m.LastError(), &be))
	assert.Equal(t, PhaseCapture, be.Phase)
	assert.Zero(t, f.builds.builders.Load())
	assert.Equal(t, Unloaded, f.m.State())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.builds.WithLabelValues(sourceBuild, "error")))
}

func TestBuildPanicIsReported(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.NewBuilder = func(*scene.Snapshot, recast.Customization) (Builder, error) { panic("bad geometry") }
	})
	f.world.setKey(zoneA)
	tickUntil(t, f.m, func() bool { return f.m.LastError() != nil })

	var be *BuildError
	require.True(t, errors.As(f.m.LastError(), &be))
	assert.Equal(t, PhaseBuild, be.Phase)
	assert.Contains(t, be.Error(), "bad geometry")
}

func TestCacheWriteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.cache.failWrites = true

	f.load(t, zoneA)
	first := f.m.Navmesh()
	f.load(t, zoneB)
	f.load(t, zoneA)

	// nothing was cached, so every visit builds
	assert.EqualValues(t, 3, f.builds.builders.Load())
	assert.NotSame(t, first, f.m.Navmesh())
	_, saves := f.cache.counts()
	assert.Equal(t, 3, saves)
	assert.NoError(t, f.m.LastError())
}

func TestCorruptCacheEntryIsRebuilt(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.NewFileStore(dir)
	require.NoError(t, err)
	c, err := cache.New(store, zaptest.NewLogger(t))
	require.NoError(t, err)

	f := newFixture(t, func(o *Options) { o.Cache = c })
	key := f.world.CacheKey(&scene.Snapshot{Bg: zoneA})
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".navmesh"), []byte("garbage"), 0o644))

	f.load(t, zoneA)
	assert.EqualValues(t, 1, f.builds.builders.Load())

	// the rebuild replaced the bad entry
	require.NoError(t, f.m.Reload(true))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	assert.EqualValues(t, 1, f.builds.builders.Load())
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	var calls int
	unsubscribe := f.m.OnNavmeshChanged(func(*detour.Navmesh, QueryEngine) { calls++ })
	f.load(t, zoneA)
	assert.Equal(t, 1, calls)

	unsubscribe()
	require.NoError(t, f.m.Reload(true))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	assert.Equal(t, 1, calls)
	assert.Len(t, f.changes, 3)
}

func TestCloseWaitsForLoad(t *testing.T) {
	f := newFixture(t)
	f.builds.gate = make(chan struct{})
	f.world.setKey(zoneA)
	f.m.Update()
	require.Equal(t, Loading, f.m.State())

	go f.builds.openGate()
	f.m.Close()
	assert.Equal(t, Unloaded, f.m.State())
	assert.Nil(t, f.m.Navmesh())
	assert.Empty(t, f.changes)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Navmesh: not ready", f.m.Status())

	f.load(t, zoneA)
	assert.Equal(t, "Navmesh: ready, pathfind tasks: running 0 queued 0", f.m.Status())

	f.query.hold.Store(true)
	f.m.QueryPath(common.Vec3{}, common.Vec3{1, 0, 0}, false, context.Background())
	f.m.QueryPath(common.Vec3{}, common.Vec3{2, 0, 0}, false, context.Background())
	tickUntil(t, f.m, func() bool { return f.query.numStarted() == 1 })
	assert.Equal(t, "Navmesh: ready, pathfind tasks: running 1 queued 1", f.m.Status())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, func(o *Options) { o.Metrics = metrics })

	assert.Equal(t, float64(-1), testutil.ToFloat64(metrics.loadProgress))
	f.load(t, zoneA)
	assert.Equal(t, float64(-1), testutil.ToFloat64(metrics.loadProgress))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.builds.WithLabelValues(sourceBuild, "ok")))

	require.NoError(t, f.m.Reload(true))
	tickUntil(t, f.m, func() bool { return f.m.State() == Ready })
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.builds.WithLabelValues(sourceCache, "ok")))

	runQuery(t, f.m, common.Vec3{}, common.Vec3{1, 0, 0}, false)
	runQuery(t, f.m, common.Vec3{}, common.Vec3{1, 0, 0}, true)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.pathfinds.WithLabelValues("mesh", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.pathfinds.WithLabelValues("volume", "ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.queueLength))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors are already registered")
}

// TestCachedNavmeshAnswersLikeBuilt runs the real builder and query engine:
// a navmesh restored from the cache yields the same paths as the freshly
// built one.
func TestCachedNavmeshAnswersLikeBuilt(t *testing.T) {
	world := scene.NewStaticWorld(&scene.Zone{
		Name:      "ZoneA",
		Territory: 7,
		Bg:        "ffxiv/fst_f1/fld/f1f1/level/f1f1",
		Colliders: []scene.Collider{
			{Min: common.Vec3{0, -1, 0}, Max: common.Vec3{16, 0, 16}},
			{Min: common.Vec3{6, 0, 0}, Max: common.Vec3{7, 3, 12}},
		},
	})
	require.NoError(t, world.SetZone("ZoneA"))

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	c, err := cache.New(store, zaptest.NewLogger(t))
	require.NoError(t, err)
	cust := recast.DefaultCustomization()
	cust.Flyable = true

	var builds int
	newManager := func() *Manager {
		m := New(world, Options{
			Cache:          c,
			Customizations: recast.NewRegistry(cust),
			NewBuilder: func(s *scene.Snapshot, cust recast.Customization) (Builder, error) {
				builds++
				return recast.NewBuilder(s, cust)
			},
			Logger:           zaptest.NewLogger(t),
			AutoLoad:         true,
			UseRaycasts:      true,
			UseStringPulling: true,
		})
		t.Cleanup(m.Close)
		tickUntil(t, m, func() bool { return m.State() == Ready })
		return m
	}
	paths := func(m *Manager) [][]common.Vec3 {
		return [][]common.Vec3{
			runQuery(t, m, common.Vec3{2, 0, 2}, common.Vec3{12, 0, 2}, false),
			runQuery(t, m, common.Vec3{2, 2, 2}, common.Vec3{12, 2, 2}, true),
		}
	}

	built := newManager()
	require.Equal(t, 1, builds)
	want := paths(built)
	for _, p := range want {
		require.GreaterOrEqual(t, len(p), 2)
	}

	restored := newManager()
	assert.Equal(t, 1, builds, "second manager loads from the cache")
	assert.Equal(t, want, paths(restored))
	assert.Equal(t, detour.Encode(built.Navmesh()), detour.Encode(restored.Navmesh()))
}
