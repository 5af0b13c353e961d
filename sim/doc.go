// Package sim provides the core discrete-event simulation engine for a
// resource-constrained production process: a fixed set of finite-capacity
// devices processing flows (work items moving between devices) subject to
// dependencies, global boolean gates, and randomized processing durations.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - flow.go: FlowInstance lifecycle (pending -> waiting -> in_progress -> completed)
//   - event.go: Event types that drive the simulation (activation, completion, gate change, ...)
//   - simulator.go: The event loop and the dispatch/allocation pass
//
// # Architecture
//
// The engine is single-threaded, cooperative, and event-driven: the
// Simulator is the sole mutator of all shared state. Supporting components:
//   - ledger.go: ResourceLedger, device counters, gate flags, utilization accounting
//   - resolver.go: DependencyResolver, eligibility checks with wait reasons
//   - waitgraph.go / deadlock.go: wait-for graph and the deadlock detector
//   - pacing.go: accelerated vs. real-time pacing with pause/resume
//   - kpi.go: utilization, health, bottleneck, and forecast derivation
//   - controller.go: the run/pause/resume/status surface for callers
//
// For a fixed seed and configuration, event application order is fully
// deterministic (time, priority, insertion sequence) and repeated runs
// produce identical results documents.
package sim
