package sim

import (
	"testing"
	"time"
)

// twoStationConfig builds a minimal valid config: a source station feeding
// a machine through a single flow. Tests mutate the returned value before
// validating.
func twoStationConfig() *Config {
	return &Config{
		Simulation: SimulationSettings{
			Duration:   600,
			RandomSeed: 42,
		},
		Devices: []DeviceConfig{
			{ID: "source", Type: "buffer", Capacity: 4},
			{ID: "machine", Type: "cnc", Capacity: 1},
		},
		Flows: []FlowConfig{
			{
				FlowID:           "f1",
				FromDevice:       "source",
				ToDevice:         "machine",
				ProcessTimeRange: []float64{100, 100},
				Priority:         1,
			},
		},
	}
}

// mustValidate validates a config, failing the test on rejection.
func mustValidate(t *testing.T, cfg *Config) *Config {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config unexpectedly rejected: %v", err)
	}
	return cfg
}

// runToResults validates, runs, and assembles results for a config.
// Wall-clock metadata is zeroed so documents from identical configs are
// byte-comparable.
func runToResults(t *testing.T, cfg *Config) *Results {
	t.Helper()
	mustValidate(t, cfg)
	s := NewSimulator(cfg)
	status := s.Run()
	return BuildResults(s, status, time.Time{}, time.Time{})
}
