package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolverFixture(t *testing.T, cfg *Config) (*DependencyResolver, map[FlowID]*FlowDefinition, *ResourceLedger) {
	t.Helper()
	mustValidate(t, cfg)
	rl := NewResourceLedger(cfg, NewPartitionedRNG(NewSimulationKey(1)))
	defs := make(map[FlowID]*FlowDefinition)
	for i := range cfg.Flows {
		defs[cfg.Flows[i].FlowID] = &FlowDefinition{Config: cfg.Flows[i]}
	}
	return NewDependencyResolver(defs, rl), defs, rl
}

func TestEligible_DependencyPending(t *testing.T) {
	cfg := twoStationConfig()
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{1, 1}, Dependencies: []FlowID{"f1"},
	})
	dr, defs, _ := resolverFixture(t, cfg)

	fi := NewFlowInstance(defs["f2"], 0, 0, 0)
	ok, reason, target := dr.Eligible(fi, 0)
	assert.False(t, ok)
	assert.Equal(t, WaitDependency, reason)
	assert.Equal(t, "f1", target)

	// dependency completes -> eligible
	defs["f1"].Completed = 1
	ok, _, _ = dr.Eligible(fi, 0)
	assert.True(t, ok)
}

func TestEligible_RepeatedActivationDependencyCount(t *testing.T) {
	// Activation index 2 needs three completed dependency instances.
	cfg := twoStationConfig()
	cfg.Flows = append(cfg.Flows, FlowConfig{
		FlowID: "f2", FromDevice: "source", ToDevice: "machine",
		ProcessTimeRange: []float64{1, 1}, Dependencies: []FlowID{"f1"},
	})
	dr, defs, _ := resolverFixture(t, cfg)

	fi := NewFlowInstance(defs["f2"], 2, 0, 0)
	defs["f1"].Completed = 2
	ok, reason, _ := dr.Eligible(fi, 0)
	assert.False(t, ok)
	assert.Equal(t, WaitDependency, reason)

	defs["f1"].Completed = 3
	ok, _, _ = dr.Eligible(fi, 0)
	assert.True(t, ok)
}

func TestEligible_GateInactive(t *testing.T) {
	cfg := twoStationConfig()
	cfg.Gates = map[GateName]bool{"QC": false}
	cfg.Flows[0].RequiredGates = []GateName{"QC"}
	dr, defs, rl := resolverFixture(t, cfg)

	fi := NewFlowInstance(defs["f1"], 0, 0, 0)
	ok, reason, target := dr.Eligible(fi, 0)
	assert.False(t, ok)
	assert.Equal(t, WaitGate, reason)
	assert.Equal(t, "QC", target)

	rl.SetGate("QC", true)
	ok, _, _ = dr.Eligible(fi, 0)
	assert.True(t, ok)
}

func TestEligible_TargetDeviceGateInactive(t *testing.T) {
	cfg := twoStationConfig()
	cfg.Gates = map[GateName]bool{"power": false}
	cfg.Devices[1].RequiredGates = []GateName{"power"}
	dr, defs, _ := resolverFixture(t, cfg)

	fi := NewFlowInstance(defs["f1"], 0, 0, 0)
	ok, reason, target := dr.Eligible(fi, 0)
	assert.False(t, ok)
	assert.Equal(t, WaitGate, reason)
	assert.Equal(t, "power", target)
}

func TestEligible_CapacityExhausted(t *testing.T) {
	cfg := twoStationConfig()
	dr, defs, rl := resolverFixture(t, cfg)
	require.True(t, rl.TryAcquire("machine", 0))

	fi := NewFlowInstance(defs["f1"], 0, 0, 0)
	ok, reason, target := dr.Eligible(fi, 0)
	assert.False(t, ok)
	assert.Equal(t, WaitCapacity, reason)
	assert.Equal(t, "machine", target)
}

func TestEligible_InPlaceProcessingWithHeldUnit(t *testing.T) {
	// from == to: the held source unit doubles as the processing unit,
	// even with the device otherwise full.
	cfg := twoStationConfig()
	cfg.Flows[0].FromDevice = "machine"
	dr, defs, rl := resolverFixture(t, cfg)
	require.True(t, rl.TryAcquire("machine", 0))

	fi := NewFlowInstance(defs["f1"], 0, 0, 0)
	fi.HoldsSource = true
	ok, _, _ := dr.Eligible(fi, 0)
	assert.True(t, ok)
}

func TestOrderContenders_PriorityThenFIFO(t *testing.T) {
	lowEarly := NewFlowInstance(&FlowDefinition{Config: FlowConfig{FlowID: "low", Priority: 1}}, 0, 10, 0)
	highLate := NewFlowInstance(&FlowDefinition{Config: FlowConfig{FlowID: "high", Priority: 5}}, 0, 50, 1)
	lowLate := NewFlowInstance(&FlowDefinition{Config: FlowConfig{FlowID: "low", Priority: 1}}, 1, 30, 2)

	contenders := []*FlowInstance{lowLate, lowEarly, highLate}
	OrderContenders(contenders)

	assert.Equal(t, []*FlowInstance{highLate, lowEarly, lowLate}, contenders,
		"descending priority first, FIFO within equal priority")
}

func TestOrderContenders_SequenceBreaksArrivalTies(t *testing.T) {
	a := NewFlowInstance(&FlowDefinition{Config: FlowConfig{FlowID: "a"}}, 0, 0, 0)
	b := NewFlowInstance(&FlowDefinition{Config: FlowConfig{FlowID: "b"}}, 0, 0, 1)
	contenders := []*FlowInstance{b, a}
	OrderContenders(contenders)
	assert.Equal(t, []*FlowInstance{a, b}, contenders)
}
