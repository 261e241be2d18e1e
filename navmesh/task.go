package navmesh

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gorustyt/vnavmesh/common"
)

const (
	taskQueued int32 = iota
	taskRunning
	taskDone
)

type pathfindFunc func(ctx context.Context) ([]common.Vec3, error)

// PathTask is the handle of one path request. It resolves exactly once, with
// a path, a search failure, or context.Canceled.
type PathTask struct {
	ID     uuid.UUID
	From   common.Vec3
	To     common.Vec3
	Flying bool

	ctx          context.Context
	cancel       context.CancelFunc
	stopExternal func() bool
	pathfind     pathfindFunc
	metrics      *Metrics

	state  atomic.Int32
	once   sync.Once
	done   chan struct{}
	points []common.Vec3
	err    error
}

// newPathTask binds a request to gen, the manager's current cancellation
// generation, and to the caller's external context.
func newPathTask(gen, external context.Context, from, to common.Vec3, flying bool, fn pathfindFunc, metrics *Metrics) *PathTask {
	t := &PathTask{
		ID:       uuid.New(),
		From:     from,
		To:       to,
		Flying:   flying,
		pathfind: fn,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
	t.ctx, t.cancel = context.WithCancel(gen)
	if external != nil {
		t.stopExternal = context.AfterFunc(external, t.cancel)
	}
	// A queued task resolves as soon as its signal fires; a running one
	// resolves when its search returns.
	context.AfterFunc(t.ctx, func() { t.cancelQueued() })
	return t
}

// Done is closed once the task has resolved.
func (t *PathTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task resolves or ctx is done.
func (t *PathTask) Wait(ctx context.Context) ([]common.Vec3, error) {
	select {
	case <-t.done:
		return t.points, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking, or ErrPending.
func (t *PathTask) Result() ([]common.Vec3, error) {
	select {
	case <-t.done:
		return t.points, t.err
	default:
		return nil, ErrPending
	}
}

// Cancelled reports whether the task resolved as cancelled.
func (t *PathTask) Cancelled() bool {
	select {
	case <-t.done:
		return t.err == context.Canceled
	default:
		return false
	}
}

func (t *PathTask) domain() string {
	if t.Flying {
		return "volume"
	}
	return "mesh"
}

// start moves a queued task to running. It fails if the task was cancelled
// while waiting.
func (t *PathTask) start() bool {
	if !t.state.CompareAndSwap(taskQueued, taskRunning) {
		return false
	}
	go t.run()
	return true
}

func (t *PathTask) run() {
	if t.ctx.Err() != nil {
		t.resolve(nil, context.Canceled)
		return
	}
	points, err := t.pathfind(t.ctx)
	switch {
	case t.ctx.Err() != nil && err != nil:
		t.resolve(nil, context.Canceled)
	case err != nil:
		t.resolve(nil, err)
	default:
		t.resolve(points, nil)
	}
}

func (t *PathTask) cancelQueued() {
	if t.state.CompareAndSwap(taskQueued, taskDone) {
		t.resolve(nil, context.Canceled)
	}
}

func (t *PathTask) resolve(points []common.Vec3, err error) {
	t.once.Do(func() {
		t.state.Store(taskDone)
		t.points, t.err = points, err
		if t.stopExternal != nil {
			t.stopExternal()
		}
		t.cancel()
		t.metrics.pathfindFinished(t.domain(), pathfindResult(err))
		close(t.done)
	})
}

func (t *PathTask) isDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func pathfindResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "failed"
	}
}
