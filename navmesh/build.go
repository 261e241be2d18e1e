package navmesh

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gorustyt/vnavmesh/common"
	"github.com/gorustyt/vnavmesh/detour"
	"github.com/gorustyt/vnavmesh/scene"
)

const (
	sourceCache = "cache"
	sourceBuild = "build"
)

// buildTask is the one-shot result slot of a load. The build goroutine writes
// the fields and closes done; Update reads them after done is closed.
type buildTask struct {
	key  string
	done chan struct{}

	navmesh *detour.Navmesh
	source  string
	err     error
	elapsed time.Duration
	started time.Time
}

func newBuildTask(key string) *buildTask {
	return &buildTask{key: key, done: make(chan struct{}), started: time.Now()}
}

func (t *buildTask) finish(nm *detour.Navmesh, source string, err error) {
	t.navmesh, t.source, t.err = nm, source, err
	t.elapsed = time.Since(t.started)
	close(t.done)
}

func (m *Manager) runBuild(t *buildTask, s *scene.Snapshot, cacheKey string, allowCache bool) {
	var (
		nm     *detour.Navmesh
		source = sourceBuild
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			nm, err = nil, &BuildError{Phase: PhaseBuild, Key: t.key, Cause: errors.Errorf("panic: %v", r)}
		}
		m.metrics.buildFinished(source, err, time.Since(t.started))
		t.finish(nm, source, err)
	}()
	nm, source, err = m.buildNavmesh(t.key, s, cacheKey, allowCache)
}

// buildNavmesh loads the navmesh from the cache or builds it from s.
func (m *Manager) buildNavmesh(key string, s *scene.Snapshot, cacheKey string, allowCache bool) (*detour.Navmesh, string, error) {
	cust, err := m.customizations.For(s.TerritoryID)
	if err != nil {
		return nil, sourceBuild, &BuildError{Phase: PhaseCustomization, Key: key, Cause: err}
	}
	log := m.log.With(zap.String("key", key), zap.String("cache_key", cacheKey))

	if allowCache && m.cache != nil && m.cache.Exists(cacheKey) {
		nm, err := m.cache.Load(cacheKey, cust.Version)
		if err == nil {
			return nm, sourceCache, nil
		}
		log.Debug("cache read failed, rebuilding", zap.Error(err))
	}

	// TODO: tiles are independent and could be built concurrently.
	builder, err := m.newBuilder(s, cust)
	if err != nil {
		return nil, sourceBuild, &BuildError{Phase: PhaseBuild, Key: key, Cause: err}
	}
	nx, nz := builder.NumTilesX(), builder.NumTilesZ()
	total := nx * nz
	done := 0
	for z := 0; z < nz; z++ {
		for x := 0; x < nx; x++ {
			if err := builder.BuildTile(x, z); err != nil {
				return nil, sourceBuild, &BuildError{Phase: PhaseBuild, Key: key, Cause: errors.Wrapf(err, "tile %d,%d", x, z)}
			}
			done++
			m.publishProgress(float32(done) / float32(total))
		}
	}
	if total == 0 {
		m.publishProgress(1)
	}

	nm, err := builder.Navmesh()
	if err != nil {
		return nil, sourceBuild, &BuildError{Phase: PhaseFinish, Key: key, Cause: err}
	}
	if m.cache != nil {
		if err := m.cache.Save(cacheKey, nm); err != nil {
			log.Warn("cache write failed, navmesh is kept for this session", zap.Error(err))
		}
	}
	return nm, sourceBuild, nil
}

func (m *Manager) publishProgress(p float32) {
	p = common.Clamp(p, 0, 1)
	m.progress.Store(math.Float32bits(p))
	m.metrics.setProgress(p)
}
