package sim

import (
	"fmt"
	"math"
)

// Default health-classification thresholds, in utilization percent.
// Configurable via kpi_thresholds; these are the only places the magic
// numbers live.
const (
	DefaultOverloadedThreshold = 85.0
	DefaultHighThreshold       = 60.0
)

// Health classification labels.
const (
	HealthOverloaded = "overloaded"
	HealthHigh       = "high"
	HealthNominal    = "nominal"
)

// KPIReport is the kpis section of the results document.
type KPIReport struct {
	DeviceHealth                 map[DeviceID]string  `json:"device_health"`
	CapacityUtilizationPerDevice map[DeviceID]float64 `json:"capacity_utilization_per_device"`
	ResourceBottleneck           DeviceID             `json:"resource_bottleneck,omitempty"`
	OptimizationSuggestions      []string             `json:"optimization_suggestions"`
	ThroughputPerHour            float64              `json:"throughput_per_hour"`
	ForecastCompletionsNextHour  int                  `json:"forecast_completions_next_hour"`
}

// ComputeKPIs derives the performance indicators from the terminal
// Resource Ledger and the completed-flow count. It is a pure function:
// utilization is recomputed here from accumulated busy time rather than
// maintained per-event, avoiding float drift from repeated incremental
// updates.
func ComputeKPIs(ledger *ResourceLedger, thresholds KPIThresholds, elapsed float64, completedFlows int) *KPIReport {
	if thresholds.Overloaded == 0 {
		thresholds.Overloaded = DefaultOverloadedThreshold
	}
	if thresholds.High == 0 {
		thresholds.High = DefaultHighThreshold
	}

	report := &KPIReport{
		DeviceHealth:                 make(map[DeviceID]string),
		CapacityUtilizationPerDevice: make(map[DeviceID]float64),
		OptimizationSuggestions:      []string{},
	}

	var bottleneck *Device
	var bottleneckUtil float64

	for _, id := range ledger.DeviceIDs() {
		d := ledger.Device(id)
		util := Utilization(d, elapsed)
		report.CapacityUtilizationPerDevice[id] = util
		report.DeviceHealth[id] = classify(util, thresholds)

		if d.queuedCount == 0 {
			continue
		}
		if bottleneck == nil ||
			util > bottleneckUtil ||
			(util == bottleneckUtil && d.blockedSeconds > bottleneck.blockedSeconds) {
			bottleneck = d
			bottleneckUtil = util
		}
	}

	if bottleneck != nil {
		report.ResourceBottleneck = bottleneck.ID
		report.OptimizationSuggestions = append(report.OptimizationSuggestions,
			fmt.Sprintf("device %s is the primary bottleneck: %d flows queued, %.1fs total blocked time",
				bottleneck.ID, bottleneck.queuedCount, bottleneck.blockedSeconds))
	}
	for _, id := range ledger.DeviceIDs() {
		util := report.CapacityUtilizationPerDevice[id]
		switch {
		case util > thresholds.Overloaded:
			report.OptimizationSuggestions = append(report.OptimizationSuggestions,
				fmt.Sprintf("device %s utilization %.1f%%: consider adding capacity", id, util))
		case util > thresholds.High:
			report.OptimizationSuggestions = append(report.OptimizationSuggestions,
				fmt.Sprintf("device %s utilization %.1f%%: approaching saturation, monitor closely", id, util))
		}
	}

	// simple linear extrapolation; no statistical model
	if elapsed > 0 {
		report.ThroughputPerHour = float64(completedFlows) / elapsed * 3600
		report.ForecastCompletionsNextHour = int(math.Round(report.ThroughputPerHour))
	}
	return report
}

// Utilization returns accumulated busy time as a percentage of the
// device's total capacity-seconds over the elapsed simulated time.
// Never exceeds 100.
func Utilization(d *Device, elapsed float64) float64 {
	if elapsed <= 0 || d.Capacity <= 0 {
		return 0
	}
	util := d.busyUnitSeconds / (float64(d.Capacity) * elapsed) * 100
	return math.Min(util, 100)
}

func classify(util float64, t KPIThresholds) string {
	switch {
	case util > t.Overloaded:
		return HealthOverloaded
	case util >= t.High:
		return HealthHigh
	default:
		return HealthNominal
	}
}

// BusySeconds exposes the accumulated busy unit-seconds, for reporting.
func (d *Device) BusySeconds() float64 { return d.busyUnitSeconds }

// BlockedSeconds exposes total time flows spent blocked on this device.
func (d *Device) BlockedSeconds() float64 { return d.blockedSeconds }

// QueuedCount exposes the number of block episodes observed on this device.
func (d *Device) QueuedCount() int { return d.queuedCount }
