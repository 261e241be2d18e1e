// Package navmesh keeps the navmesh of the active region loaded and runs path
// requests against it.
//
// All state transitions happen in Manager.Update, which the owner calls once
// per tick from a single goroutine. Builds and searches run on their own
// goroutines and hand results back through one-shot slots read by Update.
package navmesh

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
	"github.com/gorustyt/vnavmesh/recast"
	"github.com/gorustyt/vnavmesh/scene"
)

// Builder builds a navmesh tile by tile.
type Builder interface {
	NumTilesX() int
	NumTilesZ() int
	BuildTile(x, z int) error
	Navmesh() (*detour.Navmesh, error)
}

type BuilderFactory func(s *scene.Snapshot, cust recast.Customization) (Builder, error)

// QueryEngine answers path requests against one navmesh. Both searches block
// until done and return ctx.Err() promptly once ctx is cancelled.
type QueryEngine interface {
	PathfindMesh(ctx context.Context, from, to common.Vec3, useRaycast, useStringPulling bool) ([]common.Vec3, error)
	PathfindVolume(ctx context.Context, from, to common.Vec3, useRaycast, useStringPulling bool) ([]common.Vec3, error)
}

type QueryFactory func(nm *detour.Navmesh) QueryEngine

type CustomizationSource interface {
	For(territory uint32) (recast.Customization, error)
}

// Cache persists built navmeshes. Load fails for missing or unusable entries.
type Cache interface {
	Exists(key string) bool
	Load(key string, version int32) (*detour.Navmesh, error)
	Save(key string, nm *detour.Navmesh) error
}

// ChangeFunc observes navmesh replacement. Both arguments are nil when the
// navmesh is unloaded. It runs inside Update and must not call Reload or
// QueryPath.
type ChangeFunc func(nm *detour.Navmesh, q QueryEngine)

type Options struct {
	Cache          Cache               // nil disables caching
	Customizations CustomizationSource // defaults to recast.DefaultCustomization for every territory
	NewBuilder     BuilderFactory      // defaults to recast.NewBuilder
	NewQuery       QueryFactory        // defaults to detour.NewQuery
	Logger         *zap.Logger
	Metrics        *Metrics

	AutoLoad         bool
	UseRaycasts      bool
	UseStringPulling bool
}

type State int

const (
	Unloaded State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unloaded"
	}
}

// Manager loads the navmesh matching the world's active region and runs
// asynchronous path queries against it. Apart from Close, its methods must
// be called from the goroutine that calls Update.
type Manager struct {
	AutoLoad         bool // load or build the navmesh when the region changes
	UseRaycasts      bool
	UseStringPulling bool

	world          scene.World
	cache          Cache
	customizations CustomizationSource
	newBuilder     BuilderFactory
	newQuery       QueryFactory
	log            *zap.Logger
	metrics        *Metrics

	lastKey  string
	loadTask *buildTask
	progress atomic.Uint32 // float32 bits, written by the build goroutine
	lastErr  error

	navmesh   *detour.Navmesh
	query     QueryEngine
	genCtx    context.Context // current cancellation generation; nil when unloaded
	genCancel context.CancelFunc
	queue     []*PathTask // started one by one in order after the current task
	current   *PathTask

	observers      []observer
	nextObserverID int
}

type observer struct {
	id int
	fn ChangeFunc
}

func New(world scene.World, opts Options) *Manager {
	m := &Manager{
		AutoLoad:         opts.AutoLoad,
		UseRaycasts:      opts.UseRaycasts,
		UseStringPulling: opts.UseStringPulling,
		world:            world,
		cache:            opts.Cache,
		customizations:   opts.Customizations,
		newBuilder:       opts.NewBuilder,
		newQuery:         opts.NewQuery,
		log:              opts.Logger,
		metrics:          opts.Metrics,
	}
	if m.customizations == nil {
		m.customizations = recast.NewRegistry(recast.DefaultCustomization())
	}
	if m.newBuilder == nil {
		m.newBuilder = func(s *scene.Snapshot, cust recast.Customization) (Builder, error) {
			b, err := recast.NewBuilder(s, cust)
			if err != nil {
				return nil, err
			}
			return b, nil
		}
	}
	if m.newQuery == nil {
		m.newQuery = func(nm *detour.Navmesh) QueryEngine { return detour.NewQuery(nm) }
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("navmesh")
	return m
}

// Close waits for a running load to finish and unloads everything.
func (m *Manager) Close() {
	if m.loadTask != nil {
		<-m.loadTask.done
		m.loadTask = nil
	}
	m.clearState()
}

func (m *Manager) Navmesh() *detour.Navmesh { return m.navmesh }

func (m *Manager) Query() QueryEngine { return m.query }

// LoadTaskProgress returns the fraction of the running load that is done, or
// -1 when no load is running.
func (m *Manager) LoadTaskProgress() float32 {
	if m.loadTask == nil {
		return -1
	}
	return math.Float32frombits(m.progress.Load())
}

func (m *Manager) CurrentKey() string { return m.lastKey }

func (m *Manager) PathfindInProgress() bool { return m.current != nil }

func (m *Manager) NumQueuedPathfindRequests() int { return len(m.queue) }

// LastError returns the failure of the most recent load, if it failed.
func (m *Manager) LastError() error { return m.lastErr }

func (m *Manager) State() State {
	switch {
	case m.loadTask != nil:
		return Loading
	case m.navmesh != nil:
		return Ready
	default:
		return Unloaded
	}
}

// OnNavmeshChanged registers fn and returns a function that unregisters it.
func (m *Manager) OnNavmeshChanged(fn ChangeFunc) (unsubscribe func()) {
	id := m.nextObserverID
	m.nextObserverID++
	m.observers = append(m.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) notify(nm *detour.Navmesh, q QueryEngine) {
	for _, o := range append([]observer(nil), m.observers...) {
		o.fn(nm, q)
	}
}

// Update advances the manager by one tick: it installs a finished load,
// reacts to region changes and starts the next queued path request.
func (m *Manager) Update() {
	if t := m.loadTask; t != nil {
		select {
		case <-t.done:
		default:
			// still loading; the region is checked again once the load ends
			return
		}
		m.loadTask = nil
		m.metrics.setProgress(-1)
		m.finishLoad(t)
	}

	curKey := m.world.LiveKey()
	if curKey != m.lastKey {
		if !m.AutoLoad {
			if m.lastKey == "" {
				return // nothing is loaded and auto-load is off
			}
			curKey = "" // unload only
		}
		m.log.Info("region changed", zap.String("from", m.lastKey), zap.String("to", curKey))
		m.lastKey = curKey
		_ = m.Reload(true)
		return
	}

	if m.query != nil {
		m.advanceQueue()
	}
}

func (m *Manager) finishLoad(t *buildTask) {
	if t.err != nil {
		m.lastErr = t.err
		m.log.Error("navmesh load failed", zap.String("key", t.key), zap.Error(t.err))
		return
	}
	m.lastErr = nil
	m.navmesh = t.navmesh
	m.query = m.newQuery(t.navmesh)
	m.genCtx, m.genCancel = context.WithCancel(context.Background())
	m.log.Info("navmesh ready",
		zap.String("key", t.key),
		zap.String("source", t.source),
		zap.Duration("elapsed", t.elapsed))
	m.notify(m.navmesh, m.query)
}

// Reload unloads the current navmesh and, when a region is active, starts
// loading it again. With allowCache false the cache is not read, but the
// rebuilt navmesh is still written to it.
func (m *Manager) Reload(allowCache bool) error {
	if m.loadTask != nil {
		m.log.Info("reload rejected, another load is in progress", zap.String("key", m.loadTask.key))
		return ErrAlreadyLoading
	}
	m.clearState()
	if m.lastKey == "" {
		return nil
	}

	t := newBuildTask(m.lastKey)
	m.progress.Store(math.Float32bits(0))
	m.metrics.setProgress(0)
	m.loadTask = t

	s, err := m.world.CaptureScene()
	if err != nil {
		berr := &BuildError{Phase: PhaseCapture, Key: t.key, Cause: err}
		m.metrics.buildFinished(sourceBuild, berr, time.Since(t.started))
		t.finish(nil, sourceBuild, berr)
		return nil
	}
	cacheKey := m.world.CacheKey(s)
	m.log.Info("navmesh load started",
		zap.String("key", t.key),
		zap.String("cache_key", cacheKey),
		zap.Bool("allow_cache", allowCache))
	go m.runBuild(t, s, cacheKey, allowCache)
	return nil
}

// QueryPath queues a path request and returns its handle, or nil when no
// navmesh is ready. The request runs once every earlier request has finished.
// It is cancelled by external, by CancelAllQueries, or when the navmesh is
// unloaded.
func (m *Manager) QueryPath(from, to common.Vec3, flying bool, external context.Context) *PathTask {
	q := m.query
	if m.genCtx == nil || q == nil {
		m.log.Debug("path query rejected, navmesh not ready")
		return nil
	}
	useRaycasts, useStringPulling := m.UseRaycasts, m.UseStringPulling
	fn := func(ctx context.Context) ([]common.Vec3, error) {
		if flying {
			return q.PathfindVolume(ctx, from, to, useRaycasts, useStringPulling)
		}
		return q.PathfindMesh(ctx, from, to, useRaycasts, useStringPulling)
	}
	t := newPathTask(m.genCtx, external, from, to, flying, fn, m.metrics)
	m.queue = append(m.queue, t)
	m.metrics.setQueueLength(len(m.queue))
	m.log.Debug("path query queued", zap.Stringer("id", t.ID), zap.Bool("flying", flying))
	return t
}

// CancelAllQueries cancels the running and all queued path requests. Requests
// made afterwards are not affected.
func (m *Manager) CancelAllQueries() error {
	if m.genCancel == nil {
		return ErrNotReady
	}
	m.genCancel()
	m.dropQueue()
	m.genCtx, m.genCancel = context.WithCancel(context.Background())
	return nil
}

func (m *Manager) advanceQueue() {
	if m.current != nil && m.current.isDone() {
		m.current = nil
	}
	for m.current == nil && len(m.queue) > 0 {
		t := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		if !t.start() {
			continue // cancelled while queued
		}
		m.current = t
		m.log.Debug("path query started", zap.Stringer("id", t.ID))
	}
	m.metrics.setQueueLength(len(m.queue))
}

func (m *Manager) dropQueue() {
	for _, t := range m.queue {
		t.cancelQueued()
	}
	m.queue = nil
	m.metrics.setQueueLength(0)
}

// clearState cancels all path requests and unloads the navmesh.
func (m *Manager) clearState() {
	if m.genCancel != nil {
		m.genCancel()
	}
	m.genCtx, m.genCancel = nil, nil
	m.dropQueue()
	// current stays set until its search returns, so the next navmesh never
	// runs a request alongside it

	wasLoaded := m.navmesh != nil
	m.navmesh, m.query = nil, nil
	if wasLoaded {
		m.notify(nil, nil)
	}
}
