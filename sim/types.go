package sim

// Identity types
type DeviceID string
type FlowID string
type GateName string

// DeviceState is the lifecycle state of a device, derived from its
// in-use counter, recovery window, and failure flag.
type DeviceState string

const (
	DeviceIdle       DeviceState = "idle"
	DeviceBusy       DeviceState = "busy"
	DeviceRecovering DeviceState = "recovering"
	DeviceFailed     DeviceState = "failed"
)

// FlowState is the lifecycle state of a flow instance.
type FlowState string

const (
	FlowPending    FlowState = "pending"
	FlowWaiting    FlowState = "waiting"
	FlowInProgress FlowState = "in_progress"
	FlowCompleted  FlowState = "completed"
	FlowBlocked    FlowState = "blocked"
)

// WaitReason explains why a flow instance is not eligible to start.
// The reason feeds the wait-for graph: each variant produces a different
// kind of edge.
type WaitReason string

const (
	WaitNone       WaitReason = ""
	WaitDependency WaitReason = "dependency_pending"
	WaitGate       WaitReason = "gate_inactive"
	WaitCapacity   WaitReason = "capacity_exhausted"
)

// ExecutionMode selects how simulated time maps onto wall-clock time.
type ExecutionMode string

const (
	ModeAccelerated ExecutionMode = "accelerated"
	ModeRealTime    ExecutionMode = "real-time"
)

// RunStatus is the terminal outcome of a simulation run.
type RunStatus string

const (
	StatusCompleted        RunStatus = "completed"
	StatusDeadlockDetected RunStatus = "deadlock_detected"
)

// DeadlockType distinguishes the two halt conditions the detector raises.
type DeadlockType string

const (
	DeadlockCircularWait DeadlockType = "circular_wait"
	DeadlockTimeout      DeadlockType = "timeout"
)

// EventType identifies scheduler event kinds for ordering and tracing.
type EventType string

const (
	EventTypeGateChange     EventType = "GateChange"
	EventTypeFlowActivation EventType = "FlowActivation"
	EventTypeFlowCompleted  EventType = "FlowCompleted"
	EventTypeRecoveryEnd    EventType = "RecoveryEnd"
	EventTypeDeadlockScan   EventType = "DeadlockScan"
)
