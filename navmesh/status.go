package navmesh

import (
	"fmt"
)

// Status returns a one-line summary for status bars.
func (m *Manager) Status() string {
	switch m.State() {
	case Loading:
		return fmt.Sprintf("Navmesh: %d%%", int(m.LoadTaskProgress()*100))
	case Ready:
		running := 0
		if m.current != nil {
			running = 1
		}
		return fmt.Sprintf("Navmesh: ready, pathfind tasks: running %d queued %d", running, len(m.queue))
	default:
		return "Navmesh: not ready"
	}
}
