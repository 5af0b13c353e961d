package sim

import "fmt"

// FlowDefinition is one configured flow plus its per-run activation
// counters. A definition may spawn repeated instances over the simulated
// duration; each instance is an independent work item.
type FlowDefinition struct {
	Config FlowConfig

	Activated int // instances spawned so far
	Completed int // instances completed so far
}

// FlowInstance is a single activation of a flow definition: one work item
// moving from the source device to the target device.
//
// Lifecycle: Pending -> Waiting(reason) -> InProgress -> Completed, with
// Waiting escalating to Blocked once a wait-for edge exists. Instances are
// destroyed on completion or on deadlock abort.
type FlowInstance struct {
	ID    string
	Def   *FlowDefinition
	Index int // activation index within the definition (0-based)

	State      FlowState
	WaitReason WaitReason
	// WaitTarget names what the instance is waiting for: the device for
	// capacity waits, the dependency flow for dependency waits, the gate
	// for gate waits.
	WaitTarget string

	ActivatedAt  float64
	BlockedSince float64 // start of the current continuous block, -1 if not blocked
	StartedAt    float64
	CompletedAt  float64

	// waitSegStart marks the beginning of the current wait segment for
	// per-device blocked-time attribution; segments reset when the wait
	// target changes while BlockedSince does not.
	waitSegStart float64

	// HoldsSource is true while the instance occupies one unit of its
	// source device (from activation until processing starts).
	HoldsSource bool

	seq uint64 // activation sequence, FIFO tie-break under equal priority
}

// NewFlowInstance spawns activation index idx of the definition.
func NewFlowInstance(def *FlowDefinition, idx int, now float64, seq uint64) *FlowInstance {
	return &FlowInstance{
		ID:           fmt.Sprintf("%s#%d", def.Config.FlowID, idx),
		Def:          def,
		Index:        idx,
		State:        FlowPending,
		ActivatedAt:  now,
		BlockedSince: -1,
		seq:          seq,
	}
}

// Priority returns the definition's contention priority (higher first).
func (fi *FlowInstance) Priority() int {
	return fi.Def.Config.Priority
}

// FromDevice returns the source device identifier.
func (fi *FlowInstance) FromDevice() DeviceID {
	return fi.Def.Config.FromDevice
}

// ToDevice returns the target device identifier.
func (fi *FlowInstance) ToDevice() DeviceID {
	return fi.Def.Config.ToDevice
}

// markWaiting transitions the instance into a (possibly continuing) block.
// The block start is preserved across re-evaluations so the deadlock
// timeout measures continuous blockage.
func (fi *FlowInstance) markWaiting(reason WaitReason, target string, now float64) {
	fi.State = FlowWaiting
	fi.WaitReason = reason
	fi.WaitTarget = target
	if fi.BlockedSince < 0 {
		fi.BlockedSince = now
	}
}

// markInProgress transitions the instance into processing.
func (fi *FlowInstance) markInProgress(now float64) {
	fi.State = FlowInProgress
	fi.WaitReason = WaitNone
	fi.WaitTarget = ""
	fi.BlockedSince = -1
	fi.StartedAt = now
}

// markCompleted finishes the instance and bumps the definition's counter.
func (fi *FlowInstance) markCompleted(now float64) {
	fi.State = FlowCompleted
	fi.CompletedAt = now
	fi.Def.Completed++
}
