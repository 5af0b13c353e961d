package sim

import "github.com/sirupsen/logrus"

// Event defines the interface for all simulation events. Each event has a
// Timestamp (simulated seconds), a Type for tracing, a Priority used to
// order simultaneous events (higher first), and an Execute method that
// advances simulation state when invoked.
type Event interface {
	Timestamp() float64
	Type() EventType
	Priority() int
	Execute(*Simulator)
}

// Fixed priorities for non-flow events at equal timestamps: gate changes
// apply first, then completions and recovery expiries free resources, then
// activations contend for them, and deadlock scans observe the settled
// state last. Flow activations use the flow's own configured priority,
// which is expected to stay well below these bands.
const (
	prioGateChange   = 1000
	prioCompletion   = 900
	prioRecoveryEnd  = 800
	prioDeadlockScan = -1000
)

// GateChangeEvent flips a global gate flag at a scheduled instant.
type GateChangeEvent struct {
	time  float64
	Gate  GateName
	Value bool
}

func (e *GateChangeEvent) Timestamp() float64 { return e.time }
func (e *GateChangeEvent) Type() EventType    { return EventTypeGateChange }
func (e *GateChangeEvent) Priority() int      { return prioGateChange }

func (e *GateChangeEvent) Execute(sim *Simulator) {
	logrus.Infof("[t=%.1fs] gate %s -> %v", e.time, e.Gate, e.Value)
	sim.Ledger.SetGate(e.Gate, e.Value)
	sim.dispatch(e.time)
}

// FlowActivationEvent spawns a new instance of a flow definition.
type FlowActivationEvent struct {
	time  float64
	Def   *FlowDefinition
	Index int
}

func (e *FlowActivationEvent) Timestamp() float64 { return e.time }
func (e *FlowActivationEvent) Type() EventType    { return EventTypeFlowActivation }
func (e *FlowActivationEvent) Priority() int      { return e.Def.Config.Priority }

func (e *FlowActivationEvent) Execute(sim *Simulator) {
	logrus.Infof("[t=%.1fs] << activation %s#%d", e.time, e.Def.Config.FlowID, e.Index)
	sim.activateFlow(e.Def, e.Index, e.time)
}

// FlowCompletedEvent finishes a processing flow instance, releasing its
// target device.
type FlowCompletedEvent struct {
	time     float64
	Instance *FlowInstance
}

func (e *FlowCompletedEvent) Timestamp() float64 { return e.time }
func (e *FlowCompletedEvent) Type() EventType    { return EventTypeFlowCompleted }
func (e *FlowCompletedEvent) Priority() int      { return prioCompletion }

func (e *FlowCompletedEvent) Execute(sim *Simulator) {
	logrus.Infof("[t=%.1fs] >> completed %s", e.time, e.Instance.ID)
	sim.completeFlow(e.Instance, e.time)
}

// RecoveryEndEvent clears a device's recovery window, making it eligible
// for allocation again.
type RecoveryEndEvent struct {
	time   float64
	Device DeviceID
}

func (e *RecoveryEndEvent) Timestamp() float64 { return e.time }
func (e *RecoveryEndEvent) Type() EventType    { return EventTypeRecoveryEnd }
func (e *RecoveryEndEvent) Priority() int      { return prioRecoveryEnd }

func (e *RecoveryEndEvent) Execute(sim *Simulator) {
	logrus.Infof("[t=%.1fs] device %s recovered", e.time, e.Device)
	sim.Ledger.EndRecovery(e.Device, e.time)
	sim.dispatch(e.time)
}

// DeadlockScanEvent re-examines one instance's continuous block once the
// timeout threshold could have elapsed. The scan is scheduled when the
// instance first blocks; if the block cleared in the meantime the event is
// a no-op.
type DeadlockScanEvent struct {
	time     float64
	Instance *FlowInstance
}

func (e *DeadlockScanEvent) Timestamp() float64 { return e.time }
func (e *DeadlockScanEvent) Type() EventType    { return EventTypeDeadlockScan }
func (e *DeadlockScanEvent) Priority() int      { return prioDeadlockScan }

func (e *DeadlockScanEvent) Execute(sim *Simulator) {
	sim.Detector.CheckTimeout(sim, e.Instance, e.time)
}
