package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Device is one finite-capacity resource owned by the ResourceLedger.
// Devices are created from configuration at simulation start, mutated only
// by the scheduler's dispatch path, and never destroyed mid-run.
type Device struct {
	ID            DeviceID
	Type          string
	Capacity      int
	InUse         int
	Failed        bool
	RecoveryRange []float64 // (min,max) recovery window, nil if none
	RequiredGates []GateName

	recoveringUntil float64 // simulated instant recovery ends, 0 if not recovering

	// utilization accounting: unit-seconds accumulated on every InUse change
	busyUnitSeconds float64
	lastChange      float64

	// bottleneck accounting
	blockedSeconds float64 // total time flows spent blocked awaiting this device
	queuedCount    int     // number of distinct block episodes observed
}

// State derives the lifecycle state at the given instant.
func (d *Device) State(now float64) DeviceState {
	switch {
	case d.Failed:
		return DeviceFailed
	case d.recoveringUntil > now:
		return DeviceRecovering
	case d.InUse > 0:
		return DeviceBusy
	default:
		return DeviceIdle
	}
}

// StateChange is one entry in the per-device history timeline.
type StateChange struct {
	Time   float64     `json:"time"`
	Device DeviceID    `json:"device"`
	State  DeviceState `json:"state"`
	InUse  int         `json:"in_use"`
}

// ResourceLedger owns device capacity counters and gate flags. It is pure
// state plus invariant checks; all mutation happens inside the scheduler's
// dispatch path.
type ResourceLedger struct {
	devices map[DeviceID]*Device
	order   []DeviceID // declaration order, for deterministic iteration
	gates   map[GateName]bool
	rng     *PartitionedRNG

	history       []StateChange
	recordHistory bool
}

// NewResourceLedger builds the ledger from validated configuration.
func NewResourceLedger(cfg *Config, rng *PartitionedRNG) *ResourceLedger {
	rl := &ResourceLedger{
		devices:       make(map[DeviceID]*Device, len(cfg.Devices)),
		gates:         make(map[GateName]bool, len(cfg.Gates)),
		rng:           rng,
		recordHistory: cfg.OutputOptions.IncludeHistory,
	}
	for g, v := range cfg.Gates {
		rl.gates[g] = v
	}
	for _, dc := range cfg.Devices {
		d := &Device{
			ID:            dc.ID,
			Type:          dc.Type,
			Capacity:      dc.Capacity,
			Failed:        dc.InitialState == DeviceFailed,
			RecoveryRange: dc.RecoveryTimeRange,
			RequiredGates: dc.RequiredGates,
		}
		rl.devices[d.ID] = d
		rl.order = append(rl.order, d.ID)
	}
	return rl
}

// Device returns the ledger entry for id. The entry is live state; callers
// outside the sim package must treat it as read-only.
func (rl *ResourceLedger) Device(id DeviceID) *Device {
	return rl.devices[id]
}

// DeviceIDs returns device identifiers in declaration order.
func (rl *ResourceLedger) DeviceIDs() []DeviceID {
	return rl.order
}

// GateActive reports whether the named gate is currently true.
// Undeclared gates are inactive.
func (rl *ResourceLedger) GateActive(name GateName) bool {
	return rl.gates[name]
}

// SetGate flips a gate flag. Only scheduled GateChange events call this
// during a run.
func (rl *ResourceLedger) SetGate(name GateName, value bool) {
	rl.gates[name] = value
}

// CanAcquire reports whether the device could grant one unit at the given
// instant without mutating anything: capacity free, not failed, not in a
// recovery window, and all device-level required gates active.
func (rl *ResourceLedger) CanAcquire(id DeviceID, now float64) bool {
	d := rl.devices[id]
	if d == nil || d.Failed || d.recoveringUntil > now || d.InUse >= d.Capacity {
		return false
	}
	for _, g := range d.RequiredGates {
		if !rl.gates[g] {
			return false
		}
	}
	return true
}

// TryAcquire grants one unit of the device if CanAcquire holds, recording
// the busy-interval boundary for utilization accounting.
func (rl *ResourceLedger) TryAcquire(id DeviceID, now float64) bool {
	if !rl.CanAcquire(id, now) {
		return false
	}
	d := rl.devices[id]
	rl.settle(d, now)
	d.InUse++
	rl.checkInvariant(d)
	rl.record(d, now)
	logrus.Debugf("[t=%.1fs] acquire %s (%d/%d)", now, d.ID, d.InUse, d.Capacity)
	return true
}

// Release returns one unit of the device. If the device configures a
// recovery window, a duration is sampled and the device becomes ineligible
// until the returned instant; the second return is false when no recovery
// applies.
func (rl *ResourceLedger) Release(id DeviceID, now float64) (recoveryEnd float64, recovering bool) {
	d := rl.devices[id]
	if d == nil || d.InUse <= 0 {
		panic(fmt.Sprintf("Release: device %s has no unit in use", id))
	}
	rl.settle(d, now)
	d.InUse--
	rl.checkInvariant(d)
	if len(d.RecoveryRange) == 2 {
		dur := rl.rng.SampleRange(SubsystemRecovery, d.RecoveryRange[0], d.RecoveryRange[1])
		d.recoveringUntil = now + dur
		rl.record(d, now)
		logrus.Debugf("[t=%.1fs] release %s, recovering until %.1fs", now, d.ID, d.recoveringUntil)
		return d.recoveringUntil, true
	}
	rl.record(d, now)
	logrus.Debugf("[t=%.1fs] release %s (%d/%d)", now, d.ID, d.InUse, d.Capacity)
	return 0, false
}

// EndRecovery clears an elapsed recovery window. A RecoveryEnd event calls
// this when the sampled window expires.
func (rl *ResourceLedger) EndRecovery(id DeviceID, now float64) {
	d := rl.devices[id]
	if d == nil || d.recoveringUntil == 0 {
		return
	}
	if d.recoveringUntil <= now {
		d.recoveringUntil = 0
		rl.record(d, now)
	}
}

// AddBlockedTime accrues blocked-seconds against the device a flow was
// waiting for. Feeds bottleneck tie-breaking.
func (rl *ResourceLedger) AddBlockedTime(id DeviceID, seconds float64) {
	if d := rl.devices[id]; d != nil {
		d.blockedSeconds += seconds
	}
}

// NoteQueued counts one block episode against the device.
func (rl *ResourceLedger) NoteQueued(id DeviceID) {
	if d := rl.devices[id]; d != nil {
		d.queuedCount++
	}
}

// settle folds the elapsed interval since the last InUse change into the
// device's unit-seconds accumulator. Utilization itself is derived once at
// KPI time, not per event.
func (rl *ResourceLedger) settle(d *Device, now float64) {
	if now > d.lastChange {
		d.busyUnitSeconds += float64(d.InUse) * (now - d.lastChange)
		d.lastChange = now
	}
}

// Finalize closes all open busy intervals at the simulation end instant.
func (rl *ResourceLedger) Finalize(now float64) {
	for _, id := range rl.order {
		rl.settle(rl.devices[id], now)
	}
}

// History returns the recorded state-change timeline (nil unless
// output_options.include_history was set).
func (rl *ResourceLedger) History() []StateChange {
	return rl.history
}

func (rl *ResourceLedger) record(d *Device, now float64) {
	if !rl.recordHistory {
		return
	}
	rl.history = append(rl.history, StateChange{
		Time:   now,
		Device: d.ID,
		State:  d.State(now),
		InUse:  d.InUse,
	})
}

func (rl *ResourceLedger) checkInvariant(d *Device) {
	if d.InUse < 0 || d.InUse > d.Capacity {
		panic(fmt.Sprintf("ledger invariant violated: device %s inUse=%d capacity=%d", d.ID, d.InUse, d.Capacity))
	}
}
