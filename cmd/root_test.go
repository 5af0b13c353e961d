package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sim "github.com/prodline-sim/prodline-sim/sim"
)

const sampleConfig = `
simulation:
  duration: 600
  random_seed: 42
devices:
  - id: source
    type: buffer
    capacity: 4
  - id: machine
    type: cnc
    capacity: 1
flows:
  - flow_id: f1
    from_device: source
    to_device: machine
    process_time_range: [100, 100]
`

func TestRunCommand_WritesResultsDocument(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "line.yaml")
	outPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(sampleConfig), 0o644))

	rootCmd.SetArgs([]string{"run", "-c", cfgPath, "-o", outPath})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var res sim.Results
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, sim.StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Summary.TotalFlowsCompleted)
	assert.Equal(t, int64(42), res.Metadata.RandomSeed)
}

func TestRunCommand_SeedOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "line.yaml")
	outPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(sampleConfig), 0o644))

	rootCmd.SetArgs([]string{"run", "-c", cfgPath, "-o", outPath, "--seed", "7"})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var res sim.Results
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, int64(7), res.Metadata.RandomSeed)
}
