package sim

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// EventRecord is one entry of the optional per-run event log.
type EventRecord struct {
	Time   float64   `json:"time"`
	Type   EventType `json:"type"`
	Detail string    `json:"detail,omitempty"`
}

// Simulator is the core engine object: it holds the simulated clock, all
// system state, and the event loop. It is the single mutator of the
// Resource Ledger, the flow definitions, and the wait-for graph; no two
// events are ever applied concurrently. Independent Simulators share
// nothing, so parallel runs in one process are safe.
type Simulator struct {
	Clock    float64
	Duration float64

	Queue    *EventQueue
	Ledger   *ResourceLedger
	Resolver *DependencyResolver
	Graph    *WaitForGraph
	Detector *DeadlockDetector
	Pacer    *PacingController
	RNG      *PartitionedRNG

	Defs     map[FlowID]*FlowDefinition
	defOrder []FlowID

	cfg *Config

	// waiting holds instances that have activated but not yet started
	// processing, kept in allocation order by each dispatch pass.
	waiting []*FlowInstance

	totalEvents    int
	completedFlows int
	eventLog       []EventRecord

	halted   bool
	deadlock *DeadlockInfo

	instanceSeq uint64

	// lock-free progress snapshot for the Status control surface
	clockBits      atomic.Uint64
	completedCount atomic.Int64
}

// NewSimulator builds an engine from a validated configuration and seeds
// the event queue with every flow activation and scheduled gate change.
func NewSimulator(cfg *Config) *Simulator {
	rng := NewPartitionedRNG(NewSimulationKey(cfg.Simulation.RandomSeed))
	ledger := NewResourceLedger(cfg, rng)

	sim := &Simulator{
		Duration: cfg.Simulation.Duration,
		Queue:    NewEventQueue(),
		Ledger:   ledger,
		Graph:    NewWaitForGraph(),
		Detector: NewDeadlockDetector(cfg.Simulation.DeadlockTimeout),
		Pacer:    NewPacingController(cfg.Simulation.ExecutionMode, cfg.Simulation.SpeedMultiplier),
		RNG:      rng,
		Defs:     make(map[FlowID]*FlowDefinition, len(cfg.Flows)),
		cfg:      cfg,
	}

	for i := range cfg.Flows {
		def := &FlowDefinition{Config: cfg.Flows[i]}
		sim.Defs[def.Config.FlowID] = def
		sim.defOrder = append(sim.defOrder, def.Config.FlowID)
	}
	sim.Resolver = NewDependencyResolver(sim.Defs, ledger)

	for _, ge := range cfg.GateEvents {
		if ge.Time <= sim.Duration {
			sim.Schedule(&GateChangeEvent{time: ge.Time, Gate: ge.Gate, Value: ge.Value})
		}
	}
	sim.scheduleActivations()
	return sim
}

// scheduleActivations pre-schedules every activation of every flow
// definition across the simulated duration, in declaration order so the
// insertion sequence is reproducible.
func (sim *Simulator) scheduleActivations() {
	start := time.Unix(0, 0).UTC()
	if sim.cfg.Simulation.StartTime != "" {
		if t, err := time.Parse(time.RFC3339, sim.cfg.Simulation.StartTime); err == nil {
			start = t.UTC()
		}
	}

	for _, id := range sim.defOrder {
		def := sim.Defs[id]
		switch {
		case def.Config.ActivationCron != "":
			sched, err := cronParser.Parse(def.Config.ActivationCron)
			if err != nil {
				// validated at load time
				panic(err)
			}
			idx := 0
			for t := sched.Next(start); !t.IsZero(); t = sched.Next(t) {
				offset := t.Sub(start).Seconds()
				if offset > sim.Duration {
					break
				}
				sim.Schedule(&FlowActivationEvent{time: offset, Def: def, Index: idx})
				idx++
			}
		case def.Config.ActivationInterval > 0:
			idx := 0
			for t := 0.0; t <= sim.Duration; t += def.Config.ActivationInterval {
				sim.Schedule(&FlowActivationEvent{time: t, Def: def, Index: idx})
				idx++
			}
		default:
			sim.Schedule(&FlowActivationEvent{time: 0, Def: def, Index: 0})
		}
	}
}

// Schedule inserts an event into the simulator's queue.
func (sim *Simulator) Schedule(ev Event) {
	sim.Queue.Schedule(ev)
}

// Run executes the event loop until the queue is empty, the configured
// duration is reached, or the deadlock detector raises a halt. It returns
// the terminal run status; results are assembled separately.
func (sim *Simulator) Run() RunStatus {
	sim.Pacer.Start()
	for sim.Queue.Len() > 0 && !sim.halted {
		next := sim.Queue.Peek()
		if next.Timestamp() > sim.Duration {
			break
		}
		sim.Pacer.WaitUntil(next.Timestamp())
		ev := sim.Queue.PopNext()

		// clock is monotonically non-decreasing by heap ordering
		sim.Clock = ev.Timestamp()
		sim.totalEvents++
		sim.logEvent(ev)
		logrus.Debugf("[t=%.1fs] executing %T", sim.Clock, ev)
		ev.Execute(sim)
		sim.publishProgress()
	}

	if !sim.halted {
		sim.drainedStallCheck()
	}
	end := sim.Clock
	if !sim.halted && end < sim.Duration {
		// a completed run covers the full configured duration even if the
		// queue drained early; the line simply sits idle for the remainder
		end = sim.Duration
	}
	sim.Clock = end
	sim.Ledger.Finalize(end)
	sim.settleAllBlocked(end)
	sim.publishProgress()

	if sim.halted {
		logrus.Warnf("[t=%.1fs] simulation halted: deadlock detected", sim.Clock)
		return StatusDeadlockDetected
	}
	logrus.Infof("[t=%.1fs] simulation ended", sim.Clock)
	return StatusCompleted
}

// drainedStallCheck catches the stall a naive event loop would hang on:
// the queue ran dry while entities were still blocked with nothing left to
// unblock them. The timeout verdict is issued at the instant the earliest
// block crosses the threshold, clamped to the configured duration.
func (sim *Simulator) drainedStallCheck() {
	blocked := sim.blockedInstances()
	if len(blocked) == 0 {
		return
	}
	oldest := blocked[0]
	for _, fi := range blocked[1:] {
		if fi.BlockedSince < oldest.BlockedSince {
			oldest = fi
		}
	}
	at := oldest.BlockedSince + sim.Detector.Timeout
	if at > sim.Duration {
		// the run ends before the stall crosses the threshold
		return
	}
	if at > sim.Clock {
		sim.Clock = at
	}
	sim.Detector.CheckTimeout(sim, oldest, at)
}

// activateFlow spawns instance idx of a definition, claims a unit of the
// source device if one is free, and runs a dispatch pass.
func (sim *Simulator) activateFlow(def *FlowDefinition, idx int, now float64) {
	def.Activated++
	fi := NewFlowInstance(def, idx, now, sim.instanceSeq)
	sim.instanceSeq++
	sim.Graph.OnActivate(fi)
	sim.waiting = append(sim.waiting, fi)
	sim.dispatch(now)
}

// completeFlow finishes a processing instance: the target unit is
// released (possibly entering recovery), the instance retires, and waiting
// flows are re-dispatched.
func (sim *Simulator) completeFlow(fi *FlowInstance, now float64) {
	recoveryEnd, recovering := sim.Ledger.Release(fi.ToDevice(), now)
	sim.Graph.OnRelease(fi, fi.ToDevice())
	if recovering && recoveryEnd <= sim.Duration {
		sim.Schedule(&RecoveryEndEvent{time: recoveryEnd, Device: fi.ToDevice()})
	}
	fi.markCompleted(now)
	sim.Graph.OnComplete(fi)
	sim.completedFlows++
	sim.dispatch(now)
}

// dispatch is the allocation pass run after every event that can change a
// block/unblock relationship. It repeatedly walks the waiting set in
// allocation order (priority desc, FIFO arrival) starting instances until
// a full pass makes no progress, then consults the deadlock detector.
func (sim *Simulator) dispatch(now float64) {
	for {
		OrderContenders(sim.waiting)
		progress := false
		remaining := sim.waiting[:0]
		for _, fi := range sim.waiting {
			if sim.halted {
				remaining = append(remaining, fi)
				continue
			}
			if sim.tryStart(fi, now) {
				progress = true
			} else {
				remaining = append(remaining, fi)
			}
		}
		sim.waiting = remaining
		if !progress || sim.halted {
			break
		}
	}
	sim.Detector.CheckCycle(sim, now)
}

// tryStart attempts to move one waiting instance forward: claim the source
// unit if not yet held, then begin processing if the resolver deems it
// eligible. Returns true when processing started.
func (sim *Simulator) tryStart(fi *FlowInstance, now float64) bool {
	if !fi.HoldsSource {
		if !sim.Ledger.TryAcquire(fi.FromDevice(), now) {
			sim.block(fi, WaitCapacity, string(fi.FromDevice()), now)
			return false
		}
		fi.HoldsSource = true
		sim.Graph.OnAcquire(fi, fi.FromDevice())
	}

	ok, reason, target := sim.Resolver.Eligible(fi, now)
	if !ok {
		sim.block(fi, reason, target, now)
		return false
	}

	if fi.FromDevice() != fi.ToDevice() {
		if !sim.Ledger.TryAcquire(fi.ToDevice(), now) {
			// lost the unit to an earlier contender in this pass
			sim.block(fi, WaitCapacity, string(fi.ToDevice()), now)
			return false
		}
		sim.Graph.OnAcquire(fi, fi.ToDevice())
		recoveryEnd, recovering := sim.Ledger.Release(fi.FromDevice(), now)
		sim.Graph.OnRelease(fi, fi.FromDevice())
		if recovering && recoveryEnd <= sim.Duration {
			sim.Schedule(&RecoveryEndEvent{time: recoveryEnd, Device: fi.FromDevice()})
		}
	}
	fi.HoldsSource = false

	sim.settleBlocked(fi, now)
	sim.Graph.Unblock(fi)
	fi.markInProgress(now)

	r := fi.Def.Config.ProcessTimeRange
	dur := sim.RNG.SampleRange(SubsystemProcess, r[0], r[1])
	logrus.Infof("[t=%.1fs] start %s on %s for %.1fs", now, fi.ID, fi.ToDevice(), dur)
	sim.Schedule(&FlowCompletedEvent{time: now + dur, Instance: fi})
	return true
}

// block records (or refreshes) an instance's wait state, its wait-for
// edge, and the deadlock scan covering the new block.
func (sim *Simulator) block(fi *FlowInstance, reason WaitReason, target string, now float64) {
	newBlock := fi.BlockedSince < 0
	if !newBlock && fi.WaitTarget != target {
		sim.settleBlocked(fi, now)
	}
	if newBlock || fi.WaitTarget != target {
		if reason == WaitCapacity {
			sim.Ledger.NoteQueued(DeviceID(target))
		}
		fi.waitSegStart = now
	}
	fi.markWaiting(reason, target, now)
	sim.Graph.Block(fi, reason, target)
	if newBlock {
		sim.Schedule(&DeadlockScanEvent{time: now + sim.Detector.Timeout, Instance: fi})
	}
}

// settleBlocked folds the instance's current capacity-wait segment into the
// awaited device's blocked-time accumulator.
func (sim *Simulator) settleBlocked(fi *FlowInstance, now float64) {
	if fi.State == FlowWaiting && fi.WaitReason == WaitCapacity && now > fi.waitSegStart {
		sim.Ledger.AddBlockedTime(DeviceID(fi.WaitTarget), now-fi.waitSegStart)
	}
}

func (sim *Simulator) settleAllBlocked(now float64) {
	for _, fi := range sim.waiting {
		sim.settleBlocked(fi, now)
	}
}

// blockedInstances returns the currently blocked flows in allocation order.
func (sim *Simulator) blockedInstances() []*FlowInstance {
	var out []*FlowInstance
	for _, fi := range sim.waiting {
		if fi.BlockedSince >= 0 {
			out = append(out, fi)
		}
	}
	OrderContenders(out)
	return out
}

func (sim *Simulator) blockedFlowIDs() []string {
	var ids []string
	for _, fi := range sim.blockedInstances() {
		ids = append(ids, fi.ID)
	}
	return ids
}

// halt raises the deadlock halt signal. The run terminates early with
// partial results intact; the outcome is terminal and non-retryable.
func (sim *Simulator) halt(info *DeadlockInfo) {
	sim.halted = true
	sim.deadlock = info
	if info.DetectedAt > sim.Clock {
		sim.Clock = info.DetectedAt
	}
}

// Halted reports whether the deadlock detector stopped the run.
func (sim *Simulator) Halted() bool {
	return sim.halted
}

// DeadlockInfo returns the structured deadlock report, nil if none.
func (sim *Simulator) DeadlockInfo() *DeadlockInfo {
	return sim.deadlock
}

// publishProgress refreshes the lock-free snapshot read by Status.
func (sim *Simulator) publishProgress() {
	sim.clockBits.Store(math.Float64bits(sim.Clock))
	sim.completedCount.Store(int64(sim.completedFlows))
}

// Progress returns the elapsed simulated seconds and the fraction of the
// configured duration covered so far. Safe to call concurrently with Run.
func (sim *Simulator) Progress() (elapsed float64, fraction float64) {
	elapsed = math.Float64frombits(sim.clockBits.Load())
	if sim.Duration > 0 {
		fraction = math.Min(elapsed/sim.Duration, 1)
	}
	return elapsed, fraction
}

func (sim *Simulator) logEvent(ev Event) {
	if !sim.cfg.OutputOptions.IncludeEvents {
		return
	}
	rec := EventRecord{Time: ev.Timestamp(), Type: ev.Type()}
	switch e := ev.(type) {
	case *GateChangeEvent:
		rec.Detail = string(e.Gate)
	case *FlowActivationEvent:
		rec.Detail = string(e.Def.Config.FlowID)
	case *FlowCompletedEvent:
		rec.Detail = e.Instance.ID
	case *RecoveryEndEvent:
		rec.Detail = string(e.Device)
	case *DeadlockScanEvent:
		rec.Detail = e.Instance.ID
	}
	sim.eventLog = append(sim.eventLog, rec)
}
