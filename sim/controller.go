package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Caller errors for pacing-control misuse. Locally recoverable; no effect
// on other runs.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunFinished = errors.New("run already finished")
)

// RunStatusInfo is the status snapshot exposed per run.
type RunStatusInfo struct {
	Elapsed  float64 `json:"elapsed"`
	Progress float64 `json:"progress"`
	Paused   bool    `json:"paused"`
	Done     bool    `json:"done"`
}

// activeRun is one registered simulation, live or finished.
type activeRun struct {
	id      string
	sim     *Simulator
	done    chan struct{}
	results *Results
}

// Controller is the narrow control surface the surrounding API/UI layer
// relies on: run, pause, resume, status. Each run owns an independent
// Simulator; runs share nothing beyond the registry map, so independent
// runs may proceed in parallel within one process.
//
// There is deliberately no mid-run hard stop: once started, a run proceeds
// to completion, deadlock, or duration exhaustion. A caller-facing "stop"
// is a UI-level concern and an acknowledged limitation.
type Controller struct {
	mu   sync.Mutex
	runs map[string]*activeRun
}

// NewController creates an empty run registry.
func NewController() *Controller {
	return &Controller{runs: make(map[string]*activeRun)}
}

// Run validates the configuration, executes a simulation to completion in
// the calling goroutine, and returns the results document. The run is
// registered under a fresh id for the duration of execution so concurrent
// Status calls can observe it.
func (c *Controller) Run(cfg *Config) (*Results, error) {
	id, err := c.Start(cfg)
	if err != nil {
		return nil, err
	}
	return c.Wait(id)
}

// Start validates the configuration and launches a run asynchronously,
// returning its id. Pause, Resume, Wait, and Status accept the id.
func (c *Controller) Start(cfg *Config) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	run := &activeRun{
		id:   uuid.NewString(),
		sim:  NewSimulator(cfg),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.runs[run.id] = run
	c.mu.Unlock()

	go func() {
		wallStart := time.Now()
		status := run.sim.Run()
		results := BuildResults(run.sim, status, wallStart, time.Now())
		c.mu.Lock()
		run.results = results
		c.mu.Unlock()
		close(run.done)
		logrus.Infof("run %s finished: %s", run.id, status)
	}()
	return run.id, nil
}

// Wait blocks until the run finishes and returns its results document.
func (c *Controller) Wait(runID string) (*Results, error) {
	run, err := c.lookup(runID)
	if err != nil {
		return nil, err
	}
	<-run.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return run.results, nil
}

// Pause freezes the run's pacing. The ledger and queued events are
// untouched; only the stepping loop stops.
func (c *Controller) Pause(runID string) error {
	run, err := c.liveRun(runID)
	if err != nil {
		return err
	}
	run.sim.Pacer.Pause()
	return nil
}

// Resume recomputes the run's wall-clock reference and continues stepping
// exactly where it left off.
func (c *Controller) Resume(runID string) error {
	run, err := c.liveRun(runID)
	if err != nil {
		return err
	}
	run.sim.Pacer.Resume()
	return nil
}

// Status reports elapsed simulated seconds and progress for a run,
// finished or not.
func (c *Controller) Status(runID string) (RunStatusInfo, error) {
	run, err := c.lookup(runID)
	if err != nil {
		return RunStatusInfo{}, err
	}
	elapsed, fraction := run.sim.Progress()
	select {
	case <-run.done:
		return RunStatusInfo{Elapsed: elapsed, Progress: fraction, Done: true}, nil
	default:
		return RunStatusInfo{
			Elapsed:  elapsed,
			Progress: fraction,
			Paused:   run.sim.Pacer.Paused(),
		}, nil
	}
}

func (c *Controller) lookup(runID string) (*activeRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (c *Controller) liveRun(runID string) (*activeRun, error) {
	run, err := c.lookup(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
		return nil, ErrRunFinished
	default:
		return run, nil
	}
}
