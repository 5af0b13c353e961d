package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completions(res *Results) []EventRecord {
	var out []EventRecord
	for _, ev := range res.Events {
		if ev.Type == EventTypeFlowCompleted {
			out = append(out, ev)
		}
	}
	return out
}

func TestRun_SingleFlowCompletes(t *testing.T) {
	res := runToResults(t, twoStationConfig())

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Summary.TotalFlowsCompleted)
	assert.Equal(t, 600.0, res.Summary.SimulationTimeSeconds)
	assert.Equal(t, DeviceIdle, res.DeviceStates["machine"].State)
}

func TestRun_CapacitySerializesContenders(t *testing.T) {
	// GIVEN two flows contending for a single-unit machine, each taking 100s
	cfg := twoStationConfig()
	cfg.OutputOptions.IncludeEvents = true
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{100, 100},
	})

	// WHEN the run executes
	res := runToResults(t, cfg)

	// THEN the second start waits for the first completion
	done := completions(res)
	require.Len(t, done, 2)
	assert.Equal(t, 100.0, done[0].Time)
	assert.Equal(t, "f1#0", done[0].Detail)
	assert.Equal(t, 200.0, done[1].Time)
	assert.Equal(t, "f2#0", done[1].Detail)
}

func TestRun_CapacityWaitAccounting(t *testing.T) {
	cfg := twoStationConfig()
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{100, 100},
	})

	res := runToResults(t, cfg)

	machine := res.DeviceStates["machine"]
	assert.InDelta(t, 200.0, machine.BusySeconds, 1e-9)
	assert.InDelta(t, 100.0, machine.BlockedSeconds, 1e-9, "f2 waited 0..100")
	assert.Equal(t, 1, machine.QueuedCount)
	assert.InDelta(t, 200.0/600.0*100, res.KPIs.CapacityUtilizationPerDevice["machine"], 1e-9)
	for id, util := range res.KPIs.CapacityUtilizationPerDevice {
		assert.LessOrEqual(t, util, 100.0, "utilization of %s", id)
	}
}

func TestRun_PriorityWinsContention(t *testing.T) {
	cfg := twoStationConfig()
	cfg.OutputOptions.IncludeEvents = true
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{100, 100}, Priority: 5,
	})

	res := runToResults(t, cfg)

	done := completions(res)
	require.Len(t, done, 2)
	assert.Equal(t, "f2#0", done[0].Detail, "higher priority starts first")
	assert.Equal(t, "f1#0", done[1].Detail)
}

func TestRun_GateOpeningUnblocksFlow(t *testing.T) {
	cfg := twoStationConfig()
	cfg.OutputOptions.IncludeEvents = true
	cfg.Gates = map[GateName]bool{"go": false}
	cfg.Flows[0].RequiredGates = []GateName{"go"}
	cfg.GateEvents = []GateEvent{{Time: 5, Gate: "go", Value: true}}

	res := runToResults(t, cfg)

	assert.Equal(t, StatusCompleted, res.Status)
	done := completions(res)
	require.Len(t, done, 1)
	assert.Equal(t, 105.0, done[0].Time, "processing starts when the gate opens")
}

func TestRun_DependencyOrdersStarts(t *testing.T) {
	cfg := twoStationConfig()
	cfg.OutputOptions.IncludeEvents = true
	cfg.Devices[1].Capacity = 2
	cfg.Flows[0].ProcessTimeRange = []float64{50, 50}
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{30, 30}, Dependencies: []FlowID{"f1"},
	})

	res := runToResults(t, cfg)

	done := completions(res)
	require.Len(t, done, 2)
	assert.Equal(t, 50.0, done[0].Time)
	assert.Equal(t, 80.0, done[1].Time, "dependent start held until f1 completed")
}

func TestRun_IntervalActivationsRepeat(t *testing.T) {
	cfg := twoStationConfig()
	cfg.Simulation.Duration = 250
	cfg.Flows[0].ProcessTimeRange = []float64{10, 10}
	cfg.Flows[0].ActivationInterval = 100

	res := runToResults(t, cfg)

	assert.Equal(t, 3, res.Summary.TotalFlowsCompleted, "activations at 0, 100, 200")
}

func TestRun_CronActivations(t *testing.T) {
	// five-field cron anchored at the epoch: every 2 minutes, first firing
	// strictly after the anchor, so t=120 and t=240 within 300s
	cfg := twoStationConfig()
	cfg.Simulation.Duration = 300
	cfg.Flows[0].ProcessTimeRange = []float64{10, 10}
	cfg.Flows[0].ActivationCron = "*/2 * * * *"

	res := runToResults(t, cfg)

	assert.Equal(t, 2, res.Summary.TotalFlowsCompleted)
}

func TestRun_RecoveryWindowDelaysNextStart(t *testing.T) {
	cfg := twoStationConfig()
	cfg.Simulation.Duration = 100
	cfg.Devices[1].RecoveryTimeRange = []float64{20, 20}
	cfg.Flows[0].ProcessTimeRange = []float64{10, 10}
	cfg.OutputOptions.IncludeEvents = true
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{10, 10},
	})

	res := runToResults(t, cfg)

	done := completions(res)
	require.Len(t, done, 2)
	assert.Equal(t, 10.0, done[0].Time)
	assert.Equal(t, 40.0, done[1].Time, "second start held through the 20s recovery window")
}

func TestRun_DeterministicAcrossRepeats(t *testing.T) {
	build := func() *Config {
		cfg := twoStationConfig()
		cfg.Devices[1].RecoveryTimeRange = []float64{5, 15}
		cfg.Flows[0].ProcessTimeRange = []float64{50, 150}
		cfg.Flows[0].ActivationInterval = 120
		cfg.OutputOptions.IncludeEvents = true
		cfg.OutputOptions.IncludeHistory = true
		return cfg
	}

	first, err := runToResults(t, build()).JSON()
	require.NoError(t, err)
	second, err := runToResults(t, build()).JSON()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second),
		"identical config and seed must reproduce the run byte for byte")
}

func TestRun_SeedChangesSampledDurations(t *testing.T) {
	build := func(seed int64) *Results {
		cfg := twoStationConfig()
		cfg.Simulation.RandomSeed = seed
		cfg.Flows[0].ProcessTimeRange = []float64{50, 150}
		cfg.OutputOptions.IncludeEvents = true
		return runToResults(t, cfg)
	}

	a := completions(build(1))
	b := completions(build(2))
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].Time, b[0].Time)
}

func TestRun_ProgressReachesFullFraction(t *testing.T) {
	cfg := mustValidate(t, twoStationConfig())
	s := NewSimulator(cfg)
	s.Run()

	elapsed, fraction := s.Progress()
	assert.Equal(t, 600.0, elapsed)
	assert.Equal(t, 1.0, fraction)
}

func TestRun_EventLogOmittedByDefault(t *testing.T) {
	res := runToResults(t, twoStationConfig())
	assert.Nil(t, res.Events)
	assert.Nil(t, res.History)
}
