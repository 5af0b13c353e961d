package sim

import "sort"

// DependencyResolver evaluates whether a flow instance may begin
// processing, and on refusal reports the reason that feeds the wait-for
// graph. It reads the ledger and the flow definitions; it never mutates
// either.
type DependencyResolver struct {
	defs   map[FlowID]*FlowDefinition
	ledger *ResourceLedger
}

// NewDependencyResolver wires the resolver to its collaborators.
func NewDependencyResolver(defs map[FlowID]*FlowDefinition, ledger *ResourceLedger) *DependencyResolver {
	return &DependencyResolver{defs: defs, ledger: ledger}
}

// Eligible returns true iff every declared dependency has completed enough
// instances, every required gate (flow-level and target-device-level) is
// active, and the target device can currently grant a unit. On refusal the
// wait reason and the awaited target (device, flow, or gate name) are
// returned.
//
// Dependency rule for repeated activations: activation index k requires
// each dependency definition to have completed at least k+1 instances. For
// single-shot flows this reduces to "dependency completed".
func (dr *DependencyResolver) Eligible(fi *FlowInstance, now float64) (bool, WaitReason, string) {
	for _, dep := range fi.Def.Config.Dependencies {
		if dr.defs[dep].Completed < fi.Index+1 {
			return false, WaitDependency, string(dep)
		}
	}
	for _, g := range fi.Def.Config.RequiredGates {
		if !dr.ledger.GateActive(g) {
			return false, WaitGate, string(g)
		}
	}
	target := dr.ledger.Device(fi.ToDevice())
	for _, g := range target.RequiredGates {
		if !dr.ledger.GateActive(g) {
			return false, WaitGate, string(g)
		}
	}
	// Processing happens in place when source and target coincide; the
	// instance already holds the unit it needs.
	if fi.FromDevice() == fi.ToDevice() && fi.HoldsSource {
		return true, WaitNone, ""
	}
	if !dr.ledger.CanAcquire(fi.ToDevice(), now) {
		return false, WaitCapacity, string(fi.ToDevice())
	}
	return true, WaitNone, ""
}

// OrderContenders sorts instances contending for resources into allocation
// order: descending priority, then earliest activation (FIFO), then
// activation sequence. This ordering is the allocation policy and must be
// preserved exactly for deterministic replay.
func OrderContenders(instances []*FlowInstance) {
	sort.SliceStable(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if a.Priority() != b.Priority() {
			return a.Priority() > b.Priority()
		}
		if a.ActivatedAt != b.ActivatedAt {
			return a.ActivatedAt < b.ActivatedAt
		}
		return a.seq < b.seq
	})
}
