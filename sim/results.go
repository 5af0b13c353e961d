package sim

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata identifies a run in the results document.
type Metadata struct {
	Duration   float64   `json:"duration"`
	RandomSeed int64     `json:"random_seed"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// Summary aggregates run-level totals.
type Summary struct {
	TotalEvents           int     `json:"total_events"`
	TotalFlowsCompleted   int     `json:"total_flows_completed"`
	SimulationTimeSeconds float64 `json:"simulation_time_seconds"`
}

// DeviceResult is the terminal snapshot of one device.
type DeviceResult struct {
	Type           string      `json:"type,omitempty"`
	State          DeviceState `json:"state"`
	InUse          int         `json:"in_use"`
	Capacity       int         `json:"capacity"`
	BusySeconds    float64     `json:"busy_seconds"`
	BlockedSeconds float64     `json:"blocked_seconds"`
	QueuedCount    int         `json:"queued_count"`
}

// RunError carries the structured failure payload of a deadlocked run.
// Validation failures never reach a Results document; they are rejected
// before the run begins.
type RunError struct {
	Type         string        `json:"type"`
	Message      string        `json:"message"`
	DeadlockInfo *DeadlockInfo `json:"deadlock_info,omitempty"`
}

// Results is the structured document produced by a run. Deadlock is a
// first-class terminal outcome here, not an error return: partial results
// stay intact alongside the deadlock report.
type Results struct {
	Status       RunStatus                 `json:"status"`
	Metadata     Metadata                  `json:"metadata"`
	Summary      Summary                   `json:"summary"`
	DeviceStates map[DeviceID]DeviceResult `json:"device_states"`
	KPIs         *KPIReport                `json:"kpis"`
	Events       []EventRecord             `json:"events,omitempty"`
	History      []StateChange             `json:"history,omitempty"`
	Error        *RunError                 `json:"error,omitempty"`
}

// BuildResults assembles the results document from a finished simulator.
func BuildResults(sim *Simulator, status RunStatus, wallStart, wallEnd time.Time) *Results {
	res := &Results{
		Status: status,
		Metadata: Metadata{
			Duration:   sim.Duration,
			RandomSeed: sim.cfg.Simulation.RandomSeed,
			StartTime:  wallStart,
			EndTime:    wallEnd,
		},
		Summary: Summary{
			TotalEvents:           sim.totalEvents,
			TotalFlowsCompleted:   sim.completedFlows,
			SimulationTimeSeconds: sim.Clock,
		},
		DeviceStates: make(map[DeviceID]DeviceResult, len(sim.Ledger.DeviceIDs())),
		KPIs:         ComputeKPIs(sim.Ledger, sim.cfg.KPIThresholds, sim.Clock, sim.completedFlows),
	}
	for _, id := range sim.Ledger.DeviceIDs() {
		d := sim.Ledger.Device(id)
		res.DeviceStates[id] = DeviceResult{
			Type:           d.Type,
			State:          d.State(sim.Clock),
			InUse:          d.InUse,
			Capacity:       d.Capacity,
			BusySeconds:    d.BusySeconds(),
			BlockedSeconds: d.BlockedSeconds(),
			QueuedCount:    d.QueuedCount(),
		}
	}
	if sim.cfg.OutputOptions.IncludeEvents {
		res.Events = sim.eventLog
	}
	if sim.cfg.OutputOptions.IncludeHistory {
		res.History = sim.Ledger.History()
	}
	if status == StatusDeadlockDetected {
		info := sim.DeadlockInfo()
		res.Error = &RunError{
			Type:         string(info.Type),
			Message:      fmt.Sprintf("deadlock detected at t=%.1fs (%s)", info.DetectedAt, info.Type),
			DeadlockInfo: info,
		}
	}
	return res
}

// JSON renders the document with stable two-space indentation.
func (r *Results) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
