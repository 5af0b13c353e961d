package sim

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigError reports a configuration document rejected before the
// simulation starts. It is never produced by a running simulation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SimulationSettings groups run-wide parameters.
type SimulationSettings struct {
	Duration        float64       `yaml:"duration" json:"duration" validate:"gt=0"`
	RandomSeed      int64         `yaml:"random_seed" json:"random_seed"`
	ExecutionMode   ExecutionMode `yaml:"execution_mode" json:"execution_mode" validate:"omitempty,oneof=accelerated real-time"`
	SpeedMultiplier float64       `yaml:"speed_multiplier" json:"speed_multiplier" validate:"gte=0"`
	// DeadlockTimeout is the continuous-block threshold in simulated
	// seconds. Zero means the 300s default.
	DeadlockTimeout float64 `yaml:"deadlock_timeout" json:"deadlock_timeout" validate:"gte=0"`
	// StartTime anchors cron-based flow activation schedules to a calendar
	// instant (RFC 3339). Empty means the Unix epoch.
	StartTime string `yaml:"start_time" json:"start_time"`
}

// DeviceConfig declares one finite-capacity device.
type DeviceConfig struct {
	ID                DeviceID    `yaml:"id" json:"id" validate:"required"`
	Type              string      `yaml:"type" json:"type"`
	Capacity          int         `yaml:"capacity" json:"capacity" validate:"gt=0"`
	InitialState      DeviceState `yaml:"initial_state" json:"initial_state" validate:"omitempty,oneof=idle failed"`
	RecoveryTimeRange []float64   `yaml:"recovery_time_range" json:"recovery_time_range" validate:"omitempty,len=2"`
	RequiredGates     []GateName  `yaml:"required_gates" json:"required_gates"`
}

// FlowConfig declares one flow definition. A definition may spawn repeated
// instances over the simulated duration via ActivationInterval or
// ActivationCron; by default it spawns a single instance at t=0.
type FlowConfig struct {
	FlowID           FlowID     `yaml:"flow_id" json:"flow_id" validate:"required"`
	FromDevice       DeviceID   `yaml:"from_device" json:"from_device" validate:"required"`
	ToDevice         DeviceID   `yaml:"to_device" json:"to_device" validate:"required"`
	ProcessTimeRange []float64  `yaml:"process_time_range" json:"process_time_range" validate:"len=2"`
	Priority         int        `yaml:"priority" json:"priority"`
	Dependencies     []FlowID   `yaml:"dependencies" json:"dependencies"`
	RequiredGates    []GateName `yaml:"required_gates" json:"required_gates"`

	ActivationInterval float64 `yaml:"activation_interval" json:"activation_interval" validate:"gte=0"`
	ActivationCron     string  `yaml:"activation_cron" json:"activation_cron"`
}

// GateEvent schedules an in-run gate toggle at a simulated instant.
type GateEvent struct {
	Time  float64  `yaml:"time" json:"time" validate:"gte=0"`
	Gate  GateName `yaml:"gate" json:"gate" validate:"required"`
	Value bool     `yaml:"value" json:"value"`
}

// OutputOptions selects optional sections of the results document.
type OutputOptions struct {
	IncludeEvents  bool `yaml:"include_events" json:"include_events"`
	IncludeHistory bool `yaml:"include_history" json:"include_history"`
}

// KPIThresholds holds the utilization percentages that separate health
// classes. Zero values take the defaults (85 / 60).
type KPIThresholds struct {
	Overloaded float64 `yaml:"overloaded" json:"overloaded" validate:"gte=0,lte=100"`
	High       float64 `yaml:"high" json:"high" validate:"gte=0,lte=100"`
}

// Config is the full configuration document consumed by a run.
type Config struct {
	Simulation    SimulationSettings `yaml:"simulation" json:"simulation"`
	Devices       []DeviceConfig     `yaml:"devices" json:"devices" validate:"min=1,dive"`
	Flows         []FlowConfig       `yaml:"flows" json:"flows" validate:"dive"`
	Gates         map[GateName]bool  `yaml:"gates" json:"gates"`
	GateEvents    []GateEvent        `yaml:"gate_events" json:"gate_events" validate:"dive"`
	OutputOptions OutputOptions      `yaml:"output_options" json:"output_options"`
	KPIThresholds KPIThresholds      `yaml:"kpi_thresholds" json:"kpi_thresholds"`
}

// cronParser accepts standard five-field cron expressions for flow
// activation schedules.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// LoadConfig reads and validates a YAML (or JSON) configuration document.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig unmarshals and validates a configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Message: fmt.Sprintf("unmarshal: %v", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var structValidator = validator.New()

// Validate rejects malformed configuration shapes before the engine starts:
// struct-level constraints first, then cross-reference and cycle checks.
func (c *Config) Validate() error {
	c.applyDefaults()

	if err := structValidator.Struct(c); err != nil {
		return &ConfigError{Message: err.Error()}
	}

	devices := make(map[DeviceID]*DeviceConfig, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]
		if _, dup := devices[d.ID]; dup {
			return &ConfigError{Field: string(d.ID), Message: "duplicate device id"}
		}
		devices[d.ID] = d
		if len(d.RecoveryTimeRange) == 2 && d.RecoveryTimeRange[0] > d.RecoveryTimeRange[1] {
			return &ConfigError{Field: string(d.ID), Message: "recovery_time_range min > max"}
		}
		for _, g := range d.RequiredGates {
			if _, ok := c.Gates[g]; !ok {
				return &ConfigError{Field: string(d.ID), Message: fmt.Sprintf("required gate %q not declared", g)}
			}
		}
	}

	flows := make(map[FlowID]*FlowConfig, len(c.Flows))
	for i := range c.Flows {
		f := &c.Flows[i]
		if _, dup := flows[f.FlowID]; dup {
			return &ConfigError{Field: string(f.FlowID), Message: "duplicate flow id"}
		}
		flows[f.FlowID] = f
		if _, ok := devices[f.FromDevice]; !ok {
			return &ConfigError{Field: string(f.FlowID), Message: fmt.Sprintf("unknown from_device %q", f.FromDevice)}
		}
		if _, ok := devices[f.ToDevice]; !ok {
			return &ConfigError{Field: string(f.FlowID), Message: fmt.Sprintf("unknown to_device %q", f.ToDevice)}
		}
		if f.ProcessTimeRange[0] < 0 || f.ProcessTimeRange[0] > f.ProcessTimeRange[1] {
			return &ConfigError{Field: string(f.FlowID), Message: "process_time_range min > max or negative"}
		}
		for _, g := range f.RequiredGates {
			if _, ok := c.Gates[g]; !ok {
				return &ConfigError{Field: string(f.FlowID), Message: fmt.Sprintf("required gate %q not declared", g)}
			}
		}
		if f.ActivationCron != "" {
			if _, err := cronParser.Parse(f.ActivationCron); err != nil {
				return &ConfigError{Field: string(f.FlowID), Message: fmt.Sprintf("invalid activation_cron: %v", err)}
			}
		}
	}

	for i := range c.Flows {
		for _, dep := range c.Flows[i].Dependencies {
			if _, ok := flows[dep]; !ok {
				return &ConfigError{Field: string(c.Flows[i].FlowID), Message: fmt.Sprintf("unknown dependency %q", dep)}
			}
			if dep == c.Flows[i].FlowID {
				return &ConfigError{Field: string(c.Flows[i].FlowID), Message: "flow depends on itself"}
			}
		}
	}
	if cycle := dependencyCycle(c.Flows); cycle != nil {
		return &ConfigError{Message: fmt.Sprintf("dependency cycle among flows: %v", cycle)}
	}

	for _, ge := range c.GateEvents {
		if _, ok := c.Gates[ge.Gate]; !ok {
			return &ConfigError{Field: string(ge.Gate), Message: "gate_event references undeclared gate"}
		}
	}

	if c.KPIThresholds.High > c.KPIThresholds.Overloaded {
		return &ConfigError{Field: "kpi_thresholds", Message: "high threshold exceeds overloaded threshold"}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Simulation.ExecutionMode == "" {
		c.Simulation.ExecutionMode = ModeAccelerated
	}
	if c.Simulation.SpeedMultiplier == 0 {
		c.Simulation.SpeedMultiplier = 1
	}
	if c.Simulation.DeadlockTimeout == 0 {
		c.Simulation.DeadlockTimeout = DefaultDeadlockTimeout
	}
	if c.KPIThresholds.Overloaded == 0 {
		c.KPIThresholds.Overloaded = DefaultOverloadedThreshold
	}
	if c.KPIThresholds.High == 0 {
		c.KPIThresholds.High = DefaultHighThreshold
	}
	if c.Gates == nil {
		c.Gates = map[GateName]bool{}
	}
}

// dependencyCycle runs a three-color DFS over the flow dependency edges and
// returns one cycle if the definitions do not form a DAG.
func dependencyCycle(flows []FlowConfig) []FlowID {
	deps := make(map[FlowID][]FlowID, len(flows))
	order := make([]FlowID, 0, len(flows))
	for _, f := range flows {
		deps[f.FlowID] = f.Dependencies
		order = append(order, f.FlowID)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[FlowID]int, len(flows))
	var stack []FlowID
	var found []FlowID

	var visit func(id FlowID) bool
	visit = func(id FlowID) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				// close the cycle from dep's position on the stack
				for i, s := range stack {
					if s == dep {
						found = append([]FlowID{}, stack[i:]...)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range order {
		if color[id] == white && visit(id) {
			return found
		}
	}
	return nil
}
