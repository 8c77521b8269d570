package orchestrator

import "sync"

// runGuard serializes runs per project: at most one run may be in flight for
// a given project id at any time.
type runGuard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newRunGuard() *runGuard {
	return &runGuard{inFlight: make(map[string]bool)}
}

// acquire claims the project's run slot. It returns ErrRunInFlight when the
// slot is already held.
func (g *runGuard) acquire(projectID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight[projectID] {
		return ErrRunInFlight
	}
	g.inFlight[projectID] = true
	return nil
}

func (g *runGuard) release(projectID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, projectID)
}
