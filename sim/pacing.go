package sim

import (
	"sync"
	"time"
)

// pollSlice bounds how long a real-time wait sleeps before re-checking the
// pause flag. Wall-clock precision below this granularity is out of scope.
const pollSlice = 25 * time.Millisecond

// PacingController maps simulated time onto the host's execution pacing.
//
// Accelerated mode steps back-to-back with no artificial delay; the speed
// multiplier is ignored. Real-time mode blocks before each event at
// simulated time T until wall-clock elapsed-since-start >= T / multiplier.
//
// Pause freezes the wall-clock reference without discarding queued events;
// Resume shifts the reference by the pause duration so no simulated time is
// lost or skipped. Pause/resume are external control operations, never
// scheduler-internal events, and they are honored in both modes: a paused
// accelerated run simply stops stepping.
type PacingController struct {
	mode       ExecutionMode
	multiplier float64

	mu        sync.Mutex
	cond      *sync.Cond
	wallStart time.Time
	paused    bool
	pausedAt  time.Time
	started   bool
}

// NewPacingController creates a controller for the given mode. A zero or
// negative multiplier means 1x.
func NewPacingController(mode ExecutionMode, multiplier float64) *PacingController {
	if multiplier <= 0 {
		multiplier = 1
	}
	pc := &PacingController{mode: mode, multiplier: multiplier}
	pc.cond = sync.NewCond(&pc.mu)
	return pc
}

// Start pins the wall-clock reference instant. Called once by the
// scheduler before its first step.
func (pc *PacingController) Start() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.wallStart = time.Now()
	pc.started = true
}

// WaitUntil blocks until the controller allows the event at simulated time
// t to be processed. Only the next step blocks here, never shared engine
// state.
func (pc *PacingController) WaitUntil(t float64) {
	for {
		pc.mu.Lock()
		for pc.paused {
			pc.cond.Wait()
		}
		if pc.mode != ModeRealTime {
			pc.mu.Unlock()
			return
		}
		target := pc.wallStart.Add(time.Duration(t / pc.multiplier * float64(time.Second)))
		pc.mu.Unlock()

		d := time.Until(target)
		if d <= 0 {
			return
		}
		if d > pollSlice {
			d = pollSlice
		}
		time.Sleep(d)
	}
}

// Pause freezes pacing. Idempotent.
func (pc *PacingController) Pause() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.paused {
		return
	}
	pc.paused = true
	pc.pausedAt = time.Now()
}

// Resume recomputes the wall-clock reference so elapsed time picks up
// exactly where it left off. Idempotent.
func (pc *PacingController) Resume() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.paused {
		return
	}
	pc.wallStart = pc.wallStart.Add(time.Since(pc.pausedAt))
	pc.paused = false
	pc.cond.Broadcast()
}

// Paused reports whether pacing is currently frozen.
func (pc *PacingController) Paused() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.paused
}

// Mode returns the controller's execution mode.
func (pc *PacingController) Mode() ExecutionMode {
	return pc.mode
}
