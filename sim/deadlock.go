package sim

import "github.com/sirupsen/logrus"

// DefaultDeadlockTimeout is the continuous-block threshold, in simulated
// seconds, beyond which a stalled entity is declared a timeout deadlock.
const DefaultDeadlockTimeout = 300.0

// DeadlockInfo is the structured report attached to a deadlock_detected
// run outcome.
type DeadlockInfo struct {
	DetectedAt      float64             `json:"detected_at"`
	Type            DeadlockType        `json:"deadlock_type"`
	WaitChain       []string            `json:"wait_chain,omitempty"`
	InvolvedDevices []DeviceID          `json:"involved_devices,omitempty"`
	InvolvedFlows   []string            `json:"involved_flows,omitempty"`
	BlockedFlows    []string            `json:"blocked_flows"`
	TimeoutDevices  []DeviceID          `json:"timeout_devices,omitempty"`
	WaitGraph       map[string][]string `json:"wait_graph"`
}

// DeadlockDetector observes blocked entities through the wait-for graph and
// raises the scheduler's halt signal on a circular wait or a stall timeout.
// Either condition is a terminal, non-retryable outcome for the run.
type DeadlockDetector struct {
	Timeout float64 // continuous-block threshold in simulated seconds
}

// NewDeadlockDetector creates a detector with the configured threshold.
func NewDeadlockDetector(timeout float64) *DeadlockDetector {
	if timeout <= 0 {
		timeout = DefaultDeadlockTimeout
	}
	return &DeadlockDetector{Timeout: timeout}
}

// CheckCycle runs after every event that creates or resolves a wait
// relationship. A closed path in the wait-for graph halts the run with a
// circular_wait report carrying the ordered cycle.
func (dd *DeadlockDetector) CheckCycle(sim *Simulator, now float64) bool {
	if sim.Halted() || sim.Graph.BlockedCount() == 0 {
		return false
	}
	cycle := sim.Graph.FindCycle()
	if cycle == nil {
		return false
	}

	info := &DeadlockInfo{
		DetectedAt:   now,
		Type:         DeadlockCircularWait,
		BlockedFlows: sim.blockedFlowIDs(),
		WaitGraph:    sim.Graph.Snapshot(),
	}
	for _, n := range cycle {
		info.WaitChain = append(info.WaitChain, n.String())
		switch n.Kind {
		case NodeDevice:
			info.InvolvedDevices = append(info.InvolvedDevices, DeviceID(n.Name))
		case NodeFlow:
			info.InvolvedFlows = append(info.InvolvedFlows, n.Name)
		}
	}
	logrus.Warnf("[t=%.1fs] circular wait detected: %v", now, info.WaitChain)
	sim.halt(info)
	return true
}

// CheckTimeout fires from a DeadlockScanEvent scheduled when the instance
// first blocked. If the instance has remained continuously blocked for the
// full threshold, the run halts with a timeout report listing every
// currently-blocked entity, not just the one that crossed the threshold.
func (dd *DeadlockDetector) CheckTimeout(sim *Simulator, fi *FlowInstance, now float64) bool {
	if sim.Halted() {
		return false
	}
	if fi.BlockedSince < 0 || now-fi.BlockedSince < dd.Timeout {
		return false
	}

	info := &DeadlockInfo{
		DetectedAt:   now,
		Type:         DeadlockTimeout,
		BlockedFlows: sim.blockedFlowIDs(),
		WaitGraph:    sim.Graph.Snapshot(),
	}
	seen := map[DeviceID]bool{}
	for _, blocked := range sim.blockedInstances() {
		info.InvolvedFlows = append(info.InvolvedFlows, blocked.ID)
		if blocked.WaitReason == WaitCapacity {
			dev := DeviceID(blocked.WaitTarget)
			if !seen[dev] {
				seen[dev] = true
				info.TimeoutDevices = append(info.TimeoutDevices, dev)
				info.InvolvedDevices = append(info.InvolvedDevices, dev)
			}
		}
	}
	logrus.Warnf("[t=%.1fs] stall timeout: %s blocked for %.1fs", now, fi.ID, now-fi.BlockedSince)
	sim.halt(info)
	return true
}
