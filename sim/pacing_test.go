package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacing_AcceleratedNeverSleeps(t *testing.T) {
	pc := NewPacingController(ModeAccelerated, 1)
	pc.Start()

	begin := time.Now()
	pc.WaitUntil(3600)
	assert.Less(t, time.Since(begin), 100*time.Millisecond,
		"accelerated mode steps with no artificial delay")
}

func TestPacing_RealTimeHonorsMultiplier(t *testing.T) {
	// 1 simulated second at 20x is 50ms of wall clock
	pc := NewPacingController(ModeRealTime, 20)
	pc.Start()

	begin := time.Now()
	pc.WaitUntil(1)
	elapsed := time.Since(begin)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestPacing_RealTimeDoesNotWaitForPastInstants(t *testing.T) {
	pc := NewPacingController(ModeRealTime, 1000)
	pc.Start()
	time.Sleep(20 * time.Millisecond)

	begin := time.Now()
	pc.WaitUntil(1) // wall target already behind us
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
}

func TestPacing_PauseBlocksAndResumeReleases(t *testing.T) {
	pc := NewPacingController(ModeAccelerated, 1)
	pc.Start()
	pc.Pause()
	assert.True(t, pc.Paused())

	released := make(chan struct{})
	go func() {
		pc.WaitUntil(10)
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("WaitUntil returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	pc.Resume()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntil still blocked after resume")
	}
	assert.False(t, pc.Paused())
}

func TestPacing_PauseAndResumeIdempotent(t *testing.T) {
	pc := NewPacingController(ModeRealTime, 1)
	pc.Start()

	pc.Resume() // not paused, no-op
	pc.Pause()
	pc.Pause()
	assert.True(t, pc.Paused())
	pc.Resume()
	pc.Resume()
	assert.False(t, pc.Paused())
}

func TestPacing_ResumeShiftsReferenceForward(t *testing.T) {
	// After a pause, an already-reached simulated instant must not incur the
	// pause duration again.
	pc := NewPacingController(ModeRealTime, 100)
	pc.Start()
	pc.WaitUntil(1) // ~10ms

	pc.Pause()
	time.Sleep(60 * time.Millisecond)
	pc.Resume()

	begin := time.Now()
	pc.WaitUntil(1)
	assert.Less(t, time.Since(begin), 50*time.Millisecond,
		"pause time is excluded from the wall-clock reference")
}

func TestPacing_ZeroMultiplierDefaultsToOne(t *testing.T) {
	pc := NewPacingController(ModeRealTime, 0)
	assert.Equal(t, ModeRealTime, pc.Mode())

	pc.Start()
	begin := time.Now()
	pc.WaitUntil(0.05)
	elapsed := time.Since(begin)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond, "0.05s at 1x")
}
