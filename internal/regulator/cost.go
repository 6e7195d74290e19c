package regulator

import "time"

// Weights configure the cost trade-off between comfort, energy price and
// control effort, plus the comfort target the controller tracks.
type Weights struct {
	Comfort  float64
	Price    float64
	Effort   float64
	Band     float64 // comfort band violation penalty
	Terminal float64

	TargetTemperature float64
	ComfortFloor      float64
	ComfortCeiling    float64

	// EnergyPerUnit converts one heat unit sustained for one hour into the
	// energy amount the price refers to (e.g. kWh per unit-hour). This is
	// configuration, not algorithm.
	EnergyPerUnit float64
}

func (w Weights) Validate() error {
	if w.Comfort < 0 || w.Price < 0 || w.Effort < 0 || w.Band < 0 || w.Terminal < 0 {
		return ErrNegativeWeight
	}
	if w.ComfortFloor > w.ComfortCeiling {
		return ErrInvalidComfortBand
	}
	if w.TargetTemperature < w.ComfortFloor || w.TargetTemperature > w.ComfortCeiling {
		return ErrTargetOutsideBand
	}
	return nil
}

// CostFunction scores predicted trajectories. A weight of zero removes that
// term's influence exactly.
type CostFunction struct {
	weights Weights
	dtHours float64
}

func NewCostFunction(w Weights, dt time.Duration) (*CostFunction, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if dt <= 0 {
		return nil, ErrInvalidHorizon
	}
	return &CostFunction{weights: w, dtHours: dt.Hours()}, nil
}

func (c *CostFunction) Weights() Weights { return c.weights }

// ControlEnergy converts a control action held for one tick into energy
// units consistent with the price's currency-per-energy unit.
func (c *CostFunction) ControlEnergy(control float64) float64 {
	return control * c.weights.EnergyPerUnit * c.dtHours
}

// StageCost penalizes one tick. state is the successor state produced by the
// control, so every action influences at least one stage term.
func (c *CostFunction) StageCost(state ThermalState, control, prevControl, price float64) float64 {
	w := c.weights

	dev := state.Indoor - w.TargetTemperature
	cost := w.Comfort * dev * dev
	cost += w.Price * price * c.ControlEnergy(control)

	d := control - prevControl
	cost += w.Effort * d * d

	if below := w.ComfortFloor - state.Indoor; below > 0 {
		cost += w.Band * below * below
	}
	if above := state.Indoor - w.ComfortCeiling; above > 0 {
		cost += w.Band * above * above
	}
	return cost
}

// TerminalCost penalizes ending the horizon far from the target, countering
// the edge effect of coasting toward the end of the window.
func (c *CostFunction) TerminalCost(final ThermalState) float64 {
	dev := final.Indoor - c.weights.TargetTemperature
	return c.weights.Terminal * dev * dev
}

// TotalCost sums the stage costs over the horizon plus the terminal cost.
// states must be a Rollout result for controls: len(states) == len(controls)+1.
func (c *CostFunction) TotalCost(states []ThermalState, controls []float64, prevControl float64, traj ExogenousTrajectory) float64 {
	total := 0.0
	prev := prevControl
	for k, u := range controls {
		total += c.StageCost(states[k+1], u, prev, traj[k].Price)
		prev = u
	}
	return total + c.TerminalCost(states[len(states)-1])
}
