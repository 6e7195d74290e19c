package regulator

import (
	"context"
	"log"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// ForecastProvider supplies outdoor-temperature and price sequences covering
// the horizon. A shorter-than-requested trajectory is allowed; the
// controller extends it by holding the last value.
type ForecastProvider interface {
	Forecast(ctx context.Context, steps int) (ExogenousTrajectory, error)
}

// Command is handed to the actuation collaborator once per tick.
type Command struct {
	Heat               float64 // chosen control action, heat units
	OutdoorTemperature float64 // first forecast point, for setpoint-style actuators
	PredictedIndoor    float64 // model's one-step-ahead indoor temperature
}

// Actuator applies the single chosen control action. Once applied, the
// action is not revoked within the same tick.
type Actuator interface {
	Apply(ctx context.Context, cmd Command) error
}

// TickStore persists tick outcomes. Optional; a nil store skips persistence.
type TickStore interface {
	SaveTick(ctx context.Context, rec TickRecord) error
}

// ControllerConfig is the full immutable configuration of one regulator
// instance. Everything is validated before the first tick runs.
type ControllerConfig struct {
	Thermal ThermalParameters
	Weights Weights
	Horizon HorizonConfig
	Bounds  Bounds

	Strategy Strategy // defaults to StrategyMPC

	// NeutralOutdoorTemperature backs the last-resort forecast fallback when
	// no trajectory was ever received.
	NeutralOutdoorTemperature float64

	// ForecastTimeout bounds the provider call so a slow upstream cannot
	// stall the tick. Defaults to 10s.
	ForecastTimeout time.Duration
}

// Deps are the external collaborators of the controller.
type Deps struct {
	Sensors   SensorSource
	Forecasts ForecastProvider
	Actuator  Actuator
	Store     TickStore // optional
	Log       *log.Logger
}

// Controller runs the receding-horizon loop: each tick it re-anchors the
// thermal state on fresh measurements, solves for a control sequence over
// the horizon, applies only the first action and discards the rest. It also
// implements the control-plane service used by the transport controllers.
type Controller struct {
	mu sync.Mutex

	cfg   ControllerConfig
	model *ThermalModel
	cost  *CostFunction
	opt   *Optimizer

	sensors   SensorSource
	forecasts ForecastProvider
	actuator  Actuator
	store     TickStore
	log       *log.Logger

	computing    bool
	enabled      bool
	strategy     Strategy
	weights      Weights
	prevAction   float64
	estimate     ThermalState
	haveEstimate bool
	lastOutdoor  float64
	lastTraj     ExogenousTrajectory
	snap         Snapshot
}

func NewController(cfg ControllerConfig, deps Deps) (*Controller, error) {
	if cfg.Strategy == StrategyUnknown {
		cfg.Strategy = StrategyMPC
	}
	if !cfg.Strategy.Valid() {
		return nil, ErrInvalidStrategy
	}
	if cfg.ForecastTimeout <= 0 {
		cfg.ForecastTimeout = 10 * time.Second
	}
	if err := cfg.Horizon.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, err
	}
	model, err := NewThermalModel(cfg.Thermal, cfg.Horizon.Dt)
	if err != nil {
		return nil, err
	}
	cost, err := NewCostFunction(cfg.Weights, cfg.Horizon.Dt)
	if err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(model, cost, cfg.Bounds)
	if err != nil {
		return nil, err
	}
	if deps.Log == nil {
		deps.Log = log.Default()
	}

	c := &Controller{
		cfg:       cfg,
		model:     model,
		cost:      cost,
		opt:       opt,
		sensors:   deps.Sensors,
		forecasts: deps.Forecasts,
		actuator:  deps.Actuator,
		store:     deps.Store,
		log:       deps.Log,
		enabled:   true,
		strategy:  cfg.Strategy,
		weights:   cfg.Weights,
	}
	c.snap = Snapshot{
		Enabled:           true,
		Strategy:          c.strategy,
		TargetTemperature: cfg.Weights.TargetTemperature,
		ComfortFloor:      cfg.Weights.ComfortFloor,
		ComfortCeiling:    cfg.Weights.ComfortCeiling,
		WeightComfort:     cfg.Weights.Comfort,
		WeightPrice:       cfg.Weights.Price,
		WeightEffort:      cfg.Weights.Effort,
		WeightBand:        cfg.Weights.Band,
	}
	return c, nil
}

// Run drives one tick every horizon dt until ctx is canceled. Ticks never
// overlap: Run calls Tick serially, and a tick that is still in flight when
// an external Tick arrives makes the latter reapply the previous action
// instead of starting a second optimization.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Tick(ctx); err != nil {
		c.log.Printf("regulator: tick failed: %v", err)
	}
	ticker := time.NewTicker(c.cfg.Horizon.Dt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				c.log.Printf("regulator: tick failed: %v", err)
			}
		}
	}
}

// Tick executes one receding-horizon cycle. It always produces and applies
// some control action; degraded inputs only lower optimality, never halt the
// loop.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	if c.computing {
		// Overdue or concurrent tick: reuse the previous action.
		cmd := Command{Heat: c.prevAction, OutdoorTemperature: c.lastOutdoor}
		c.mu.Unlock()
		c.log.Printf("regulator: tick overlap, reapplying previous action %.3f", cmd.Heat)
		return c.actuator.Apply(ctx, cmd)
	}
	c.computing = true
	opt := c.opt
	model := c.model
	enabled := c.enabled
	strategy := c.strategy
	weights := c.weights
	prevAction := c.prevAction
	estimate := c.estimate
	haveEstimate := c.haveEstimate
	lastOutdoor := c.lastOutdoor
	lastTraj := c.lastTraj
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.computing = false
		c.mu.Unlock()
	}()

	steps := c.cfg.Horizon.Steps

	// 1. Re-anchor on measurements, or degrade to the propagated estimate.
	state, sensorDegraded := c.currentState(ctx, model, weights, prevAction, estimate, haveEstimate, lastOutdoor)

	// 2. Fresh forecast, with the fallback chain from the error taxonomy.
	traj, forecastDegraded := c.fetchForecast(ctx, steps, lastTraj)

	// 3. Solve, unless disabled or in passthrough. A zero heat request keeps
	// the actuation mapping at the unmodified outdoor temperature, which is
	// exactly the passthrough behavior.
	action := 0.0
	totalCost := 0.0
	var predicted []ThermalState
	if enabled && strategy == StrategyMPC {
		seq, cst, err := opt.Solve(state, prevAction, traj)
		if err != nil {
			action = opt.bounds.Clip(prevAction)
			c.log.Printf("regulator: optimizer fallback, reusing clipped previous action %.3f: %v", action, err)
		} else {
			action = seq[0]
			totalCost = cst
			outdoor := make([]float64, len(traj))
			for i, pt := range traj {
				outdoor[i] = pt.OutdoorTemperature
			}
			predicted = model.Rollout(state, seq, outdoor)
		}
	}

	// 4. Apply only the first action; the rest of the plan is discarded and
	// recomputed next tick from fresh measurements.
	cmd := Command{
		Heat:               action,
		OutdoorTemperature: traj[0].OutdoorTemperature,
		PredictedIndoor:    model.Step(state, action, traj[0].OutdoorTemperature).Indoor,
	}
	if err := c.actuator.Apply(ctx, cmd); err != nil {
		c.log.Printf("regulator: actuation failed: %v", err)
	}

	// 5. Record the outcome and prepare the next tick's fallbacks.
	now := time.Now()
	rec := TickRecord{
		At:               now,
		Strategy:         strategy,
		Action:           action,
		Cost:             totalCost,
		Indoor:           state.Indoor,
		Medium:           state.Medium,
		Outdoor:          traj[0].OutdoorTemperature,
		Price:            traj[0].Price,
		SensorDegraded:   sensorDegraded,
		ForecastDegraded: forecastDegraded,
	}

	c.mu.Lock()
	c.prevAction = action
	c.estimate = state
	c.haveEstimate = true
	c.lastOutdoor = traj[0].OutdoorTemperature
	c.lastTraj = traj
	c.snap.IndoorTemperature = state.Indoor
	c.snap.MediumTemperature = state.Medium
	c.snap.OutdoorTemperature = traj[0].OutdoorTemperature
	c.snap.PriceNow = traj[0].Price
	c.snap.LastAction = action
	c.snap.LastCost = totalCost
	c.snap.SensorDegraded = sensorDegraded
	c.snap.ForecastDegraded = forecastDegraded
	c.snap.LastTick = now
	if len(predicted) > 0 {
		indoor := make([]float64, len(predicted))
		for i, s := range predicted {
			indoor[i] = s.Indoor
		}
		c.snap.PlannedColdest = floats.Min(indoor)
		c.snap.PlannedHottest = floats.Max(indoor)
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveTick(ctx, rec); err != nil {
			c.log.Printf("regulator: persisting tick failed: %v", err)
		}
	}
	return nil
}

// currentState prefers a live reading and otherwise rolls the previous
// estimate forward one step with the previously applied action. Successive
// misses accumulate model error, so each one is surfaced as a warning.
func (c *Controller) currentState(ctx context.Context, model *ThermalModel, weights Weights, prevAction float64, estimate ThermalState, haveEstimate bool, lastOutdoor float64) (ThermalState, bool) {
	readings, err := c.sensors.Current(ctx)
	if err == nil {
		return ThermalState{Medium: readings.Medium, Indoor: readings.Indoor}, false
	}
	if haveEstimate {
		propagated := model.Step(estimate, prevAction, lastOutdoor)
		c.log.Printf("regulator: warning: no sensor reading, using propagated estimate Ti=%.2f Tm=%.2f: %v",
			propagated.Indoor, propagated.Medium, err)
		return propagated, true
	}
	neutral := ThermalState{Medium: weights.TargetTemperature, Indoor: weights.TargetTemperature}
	c.log.Printf("regulator: warning: no sensor reading and no prior estimate, assuming target temperature: %v", err)
	return neutral, true
}

// fetchForecast obtains a trajectory of exactly `steps` points. Degradation
// chain: flat-extend a short trajectory, reuse the previous tick's
// trajectory, and as a last resort build a neutral one (configured outdoor
// default, zero price).
func (c *Controller) fetchForecast(ctx context.Context, steps int, lastTraj ExogenousTrajectory) (ExogenousTrajectory, bool) {
	fctx, cancel := context.WithTimeout(ctx, c.cfg.ForecastTimeout)
	defer cancel()

	traj, err := c.forecasts.Forecast(fctx, steps)
	switch {
	case err == nil && len(traj) >= steps:
		return traj[:steps], false
	case err == nil && len(traj) > 0:
		c.log.Printf("regulator: warning: forecast has %d of %d points, extending flat", len(traj), steps)
		return extendFlat(traj, steps), true
	case len(lastTraj) > 0:
		c.log.Printf("regulator: warning: forecast unavailable, reusing previous trajectory: %v", err)
		return extendFlat(lastTraj, steps), true
	default:
		c.log.Printf("regulator: warning: forecast unavailable and no previous trajectory, using neutral inputs: %v", err)
		neutral := make(ExogenousTrajectory, steps)
		for i := range neutral {
			neutral[i] = ExogenousPoint{OutdoorTemperature: c.cfg.NeutralOutdoorTemperature}
		}
		return neutral, true
	}
}

func extendFlat(traj ExogenousTrajectory, steps int) ExogenousTrajectory {
	out := make(ExogenousTrajectory, steps)
	n := copy(out, traj)
	for i := n; i < steps; i++ {
		out[i] = out[n-1]
	}
	return out[:steps]
}

// ---- control-plane service (ports.RegulatorService) ----

func (c *Controller) Get() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Controller) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = on
	c.snap.Enabled = on
}

func (c *Controller) SetTargetTemperature(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.weights
	w.TargetTemperature = v
	return c.applyWeights(w)
}

func (c *Controller) SetComfortBand(floor, ceiling float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.weights
	w.ComfortFloor = floor
	w.ComfortCeiling = ceiling
	return c.applyWeights(w)
}

func (c *Controller) SetCostWeights(comfort, price, effort, band float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.weights
	w.Comfort = comfort
	w.Price = price
	w.Effort = effort
	w.Band = band
	return c.applyWeights(w)
}

func (c *Controller) SetStrategy(s Strategy) error {
	if !s.Valid() {
		return ErrInvalidStrategy
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = s
	c.snap.Strategy = s
	return nil
}

// applyWeights validates and swaps in a new cost function and optimizer.
// Callers hold c.mu.
func (c *Controller) applyWeights(w Weights) error {
	cost, err := NewCostFunction(w, c.cfg.Horizon.Dt)
	if err != nil {
		return err
	}
	opt, err := NewOptimizer(c.model, cost, c.cfg.Bounds)
	if err != nil {
		return err
	}
	c.weights = w
	c.cost = cost
	c.opt = opt
	c.snap.TargetTemperature = w.TargetTemperature
	c.snap.ComfortFloor = w.ComfortFloor
	c.snap.ComfortCeiling = w.ComfortCeiling
	c.snap.WeightComfort = w.Comfort
	c.snap.WeightPrice = w.Price
	c.snap.WeightEffort = w.Effort
	c.snap.WeightBand = w.Band
	return nil
}
