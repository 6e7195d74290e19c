package regulator

import (
	"fmt"
	"time"
)

// ThermalState holds the two node temperatures of the thermal network, in °C.
// A state value is immutable; Step returns a fresh one.
type ThermalState struct {
	Medium float64 // heat pump medium/flow loop
	Indoor float64 // building indoor air
}

// ExogenousPoint is one future tick of inputs the controller cannot influence.
type ExogenousPoint struct {
	OutdoorTemperature float64
	Price              float64 // currency per kWh
}

// ExogenousTrajectory is chronological, index 0 being the next tick.
type ExogenousTrajectory []ExogenousPoint

// HorizonConfig shapes the look-ahead window.
type HorizonConfig struct {
	Steps int
	Dt    time.Duration
}

func (h HorizonConfig) Validate() error {
	if h.Steps < 1 || h.Dt <= 0 {
		return ErrInvalidHorizon
	}
	return nil
}

// Strategy is an integer enum selecting how the controller produces output.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	StrategyMPC
	StrategyPassthrough
)

func (s Strategy) Valid() bool {
	return s == StrategyMPC || s == StrategyPassthrough
}

func (s Strategy) String() string {
	switch s {
	case StrategyMPC:
		return "mpc"
	case StrategyPassthrough:
		return "passthrough"
	default:
		return "unknown"
	}
}

// ParseStrategy is handy for env vars / CLI.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "mpc":
		return StrategyMPC, nil
	case "passthrough":
		return StrategyPassthrough, nil
	default:
		return StrategyUnknown, fmt.Errorf("invalid strategy: %q", s)
	}
}

// Snapshot is the externally observable controller state served to the
// control-plane controllers (HTTP/MQTT/Modbus).
type Snapshot struct {
	Enabled  bool
	Strategy Strategy

	TargetTemperature float64
	ComfortFloor      float64
	ComfortCeiling    float64

	WeightComfort float64
	WeightPrice   float64
	WeightEffort  float64
	WeightBand    float64

	IndoorTemperature  float64
	MediumTemperature  float64
	OutdoorTemperature float64
	PriceNow           float64

	LastAction     float64
	LastCost       float64
	PlannedColdest float64
	PlannedHottest float64

	SensorDegraded   bool
	ForecastDegraded bool
	LastTick         time.Time
}

// TickRecord is the per-tick outcome handed to an optional persistence store.
type TickRecord struct {
	At               time.Time
	Strategy         Strategy
	Action           float64
	Cost             float64
	Indoor           float64
	Medium           float64
	Outdoor          float64
	Price            float64
	SensorDegraded   bool
	ForecastDegraded bool
}
