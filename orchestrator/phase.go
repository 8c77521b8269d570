// Package orchestrator drives the asynchronous project workflows: generation,
// the test-fix loop, and deployment. Each run persists status transitions
// through the Reporter and emits the same transitions as events.
package orchestrator

// Phase is a project's coarse lifecycle state.
type Phase string

const (
	PhaseCreating  Phase = "creating"
	PhaseTesting   Phase = "testing"
	PhaseReady     Phase = "ready"
	PhaseDeployed  Phase = "deployed"
	PhaseFailed    Phase = "failed"
	PhaseDeploying Phase = "deploying"
)

// Valid reports whether p is a member of the closed phase enumeration.
func (p Phase) Valid() bool {
	switch p {
	case PhaseCreating, PhaseTesting, PhaseReady, PhaseDeployed, PhaseFailed, PhaseDeploying:
		return true
	}
	return false
}

func (p Phase) String() string {
	return string(p)
}
