package regulator

import "math"

// Bounds is the actuator envelope for a single control action.
type Bounds struct {
	Min      float64
	Max      float64
	MaxDelta float64 // max change between consecutive actions; 0 disables
}

func (b Bounds) Validate() error {
	if b.Min > b.Max {
		return ErrInvertedBounds
	}
	if b.MaxDelta < 0 {
		return ErrNegativeRateLimit
	}
	return nil
}

func (b Bounds) Clip(v float64) float64 {
	return math.Min(b.Max, math.Max(b.Min, v))
}

// Optimizer searches a feasible control sequence minimizing the predicted
// total cost. The search is projected coordinate descent: it starts from the
// feasible hold-previous-control baseline and only ever accepts improving
// moves clamped into the box and rate constraints, so the returned sequence
// is feasible and never costs more than the baseline. Exhausting the pass
// budget is not an error; the best candidate found so far is returned.
type Optimizer struct {
	model     *ThermalModel
	cost      *CostFunction
	bounds    Bounds
	maxPasses int
}

const defaultMaxPasses = 40

// minStep ends the refinement once moves drop below this fraction of the
// control span.
const minStepFraction = 1e-4

func NewOptimizer(model *ThermalModel, cost *CostFunction, bounds Bounds) (*Optimizer, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &Optimizer{
		model:     model,
		cost:      cost,
		bounds:    bounds,
		maxPasses: defaultMaxPasses,
	}, nil
}

// Solve returns a control sequence of length len(traj) together with its
// predicted total cost. prevControl is the action applied on the previous
// tick; it anchors the rate constraint of the first element and the effort
// term.
func (o *Optimizer) Solve(initial ThermalState, prevControl float64, traj ExogenousTrajectory) ([]float64, float64, error) {
	n := len(traj)
	if n == 0 {
		return nil, 0, ErrEmptyTrajectory
	}

	outdoor := make([]float64, n)
	for i, pt := range traj {
		outdoor[i] = pt.OutdoorTemperature
	}

	// The rate anchor is the previous action clipped to the current bounds,
	// so the hold baseline is always feasible.
	anchor := o.bounds.Clip(prevControl)
	seq := make([]float64, n)
	for i := range seq {
		seq[i] = anchor
	}

	states := o.model.Rollout(initial, seq, outdoor)
	best := o.cost.TotalCost(states, seq, anchor, traj)

	span := o.bounds.Max - o.bounds.Min
	if span <= 0 {
		return seq, best, nil
	}

	step := span / 2
	for pass := 0; pass < o.maxPasses; pass++ {
		improved := false
		for k := 0; k < n; k++ {
			for _, dir := range [2]float64{1, -1} {
				lo, hi := o.feasibleRange(seq, anchor, k)
				cand := math.Min(hi, math.Max(lo, seq[k]+dir*step))
				if cand == seq[k] {
					continue
				}
				old := seq[k]
				seq[k] = cand
				states = o.model.Rollout(initial, seq, outdoor)
				if c := o.cost.TotalCost(states, seq, anchor, traj); c < best {
					best = c
					improved = true
				} else {
					seq[k] = old
				}
			}
		}
		if !improved {
			step /= 2
			if step < span*minStepFraction {
				break
			}
		}
	}
	return seq, best, nil
}

// feasibleRange intersects the box constraint with the rate constraints
// against both neighbors of element k. The current value always lies inside
// the result because moves are made one coordinate at a time.
func (o *Optimizer) feasibleRange(seq []float64, anchor float64, k int) (float64, float64) {
	lo, hi := o.bounds.Min, o.bounds.Max
	d := o.bounds.MaxDelta
	if d <= 0 {
		return lo, hi
	}
	left := anchor
	if k > 0 {
		left = seq[k-1]
	}
	lo = math.Max(lo, left-d)
	hi = math.Min(hi, left+d)
	if k+1 < len(seq) {
		lo = math.Max(lo, seq[k+1]-d)
		hi = math.Min(hi, seq[k+1]+d)
	}
	return lo, hi
}
