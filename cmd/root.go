package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/prodline-sim/prodline-sim/sim"
)

var (
	configPath string // Path to the YAML/JSON configuration document
	outputPath string // Path for the JSON results document ("" = stdout)
	logLevel   string // Log verbosity level
	seed       int64  // Seed override (-1 = use config value)
	mode       string // Execution mode override ("" = use config value)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "prodline-sim",
	Short: "Discrete-event simulator for resource-constrained production lines",
}

// runCmd executes a simulation from a configuration document
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a production-line simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if configPath == "" {
			logrus.Fatalf("No configuration document provided. Exiting simulation.")
		}

		cfg, err := sim.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Configuration rejected: %v", err)
		}
		if seed >= 0 {
			cfg.Simulation.RandomSeed = seed
		}
		if mode != "" {
			cfg.Simulation.ExecutionMode = sim.ExecutionMode(mode)
		}

		logrus.Infof("Starting simulation: %d devices, %d flows, duration=%.0fs, seed=%d, mode=%s",
			len(cfg.Devices), len(cfg.Flows), cfg.Simulation.Duration,
			cfg.Simulation.RandomSeed, cfg.Simulation.ExecutionMode)

		startTime := time.Now()
		engine := sim.NewSimulator(cfg)
		status := engine.Run()
		results := sim.BuildResults(engine, status, startTime, time.Now())

		out, err := results.JSON()
		if err != nil {
			logrus.Fatalf("unable to render results: %v", err)
		}
		if outputPath == "" {
			os.Stdout.Write(out)
			os.Stdout.WriteString("\n")
		} else if err := os.WriteFile(outputPath, out, 0o644); err != nil {
			logrus.Fatalf("unable to write results to %s: %v", outputPath, err)
		}

		if status == sim.StatusDeadlockDetected {
			logrus.Warnf("Simulation ended in deadlock at t=%.1fs", results.Summary.SimulationTimeSeconds)
			os.Exit(2)
		}
		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration document (YAML or JSON)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path for the JSON results document (default: stdout)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Int64Var(&seed, "seed", -1, "Override the configured random seed (-1 keeps the config value)")
	runCmd.Flags().StringVar(&mode, "mode", "", "Override execution mode (accelerated, real-time)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
