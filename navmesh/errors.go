package navmesh

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyLoading rejects a reload while a build or cache load is running.
	ErrAlreadyLoading = errors.New("navmesh: load already in progress")
	// ErrNotReady is returned by operations that need a loaded navmesh.
	ErrNotReady = errors.New("navmesh: not ready")
	// ErrPending is returned by PathTask.Result before the task resolves.
	ErrPending = errors.New("navmesh: path task pending")
)

// Build phases reported by BuildError.
const (
	PhaseCapture       = "capture"
	PhaseCustomization = "customization"
	PhaseBuild         = "build"
	PhaseFinish        = "finish"
)

// BuildError is the failure of a build task. Partial results are discarded.
type BuildError struct {
	Phase string
	Key   string // live key of the region being built
	Cause error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("navmesh: %s failed for %q: %v", e.Phase, e.Key, e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}
