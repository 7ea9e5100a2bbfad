package models

// Phase represents the state of a session worker.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhasePolling      Phase = "polling"
	PhaseTransferring Phase = "transferring"
	PhaseReporting    Phase = "reporting"
	PhaseStopping     Phase = "stopping"
	PhaseStopped      Phase = "stopped"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseStopped || p == PhaseFailed
}
