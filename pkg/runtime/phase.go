package runtime

import "sync/atomic"

// Phase is the lifecycle state of the runtime. Transitions are owned
// exclusively by Runtime and are monotonic apart from the idempotency
// guard on ShuttingDown.
type Phase int32

const (
	PhaseUnconfigured Phase = iota
	PhaseConfiguring
	PhaseRunning
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseUnconfigured:
		return "Unconfigured"
	case PhaseConfiguring:
		return "Configuring"
	case PhaseRunning:
		return "Running"
	case PhaseShuttingDown:
		return "ShuttingDown"
	case PhaseStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type phaseValue struct {
	v atomic.Int32
}

func (p *phaseValue) get() Phase {
	return Phase(p.v.Load())
}

func (p *phaseValue) set(phase Phase) {
	p.v.Store(int32(phase))
}
