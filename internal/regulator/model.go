package regulator

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ThermalParameters describe the two chained 1R1C stages of the network:
// heat pump medium loop (R1, C1) and building envelope (R2, C2). Resistances
// are in kelvin per heat unit, capacitances in heat-unit-hours per kelvin, so
// R·C is a time constant in hours. The control action is an abstract heat
// input; its conversion to billable energy lives in Weights.
type ThermalParameters struct {
	R1 float64 // medium loop to indoor
	R2 float64 // indoor to outdoor
	C1 float64 // medium loop
	C2 float64 // building mass
}

func (p ThermalParameters) Validate() error {
	if p.R1 <= 0 || p.R2 <= 0 || p.C1 <= 0 || p.C2 <= 0 {
		return ErrNonPositiveThermalParameter
	}
	return nil
}

// ThermalModel is the discrete-time state transition for the two-stage
// network:
//
//	dTm/dt = (u − (Tm − Ti)/R1) / C1
//	dTi/dt = ((Tm − Ti)/R1 − (Ti − To)/R2) / C2
//
// The continuous system x' = A·x + B·u + E·d is discretized once per
// (parameters, dt) under a zero-order hold using the exact matrix
// exponential, so Step is stable for any dt regardless of how stiff the
// R1·C1 loop is.
type ThermalModel struct {
	params ThermalParameters
	dt     time.Duration

	// x[k+1] = ad·x[k] + bd·u[k] + ed·d[k]
	ad *mat.Dense
	bd *mat.VecDense
	ed *mat.VecDense
}

func NewThermalModel(params ThermalParameters, dt time.Duration) (*ThermalModel, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if dt <= 0 {
		return nil, ErrInvalidHorizon
	}
	m := &ThermalModel{params: params, dt: dt}
	m.discretize()
	return m, nil
}

func (m *ThermalModel) Dt() time.Duration { return m.dt }

func (m *ThermalModel) discretize() {
	p := m.params
	h := m.dt.Hours()

	a11 := -1.0 / (p.R1 * p.C1)
	a12 := 1.0 / (p.R1 * p.C1)
	a21 := 1.0 / (p.R1 * p.C2)
	a22 := -(1.0/p.R1 + 1.0/p.R2) / p.C2

	a := mat.NewDense(2, 2, []float64{a11, a12, a21, a22})
	b := mat.NewVecDense(2, []float64{1.0 / p.C1, 0})
	e := mat.NewVecDense(2, []float64{0, 1.0 / (p.R2 * p.C2)})

	// Both eigenvalues are real, negative and distinct for positive
	// parameters: the discriminant (a11−a22)² + 4·a12·a21 is strictly
	// positive because the off-diagonal entries share a sign.
	tr := a11 + a22
	det := a11*a22 - a12*a21
	disc := math.Sqrt(tr*tr - 4*det)
	l1 := (tr + disc) / 2
	l2 := (tr - disc) / 2

	eye := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	// exp(A·h) from the spectral decomposition:
	// (e^{λ1·h}·(A − λ2·I) − e^{λ2·h}·(A − λ1·I)) / (λ1 − λ2)
	var p1, p2 mat.Dense
	p1.Scale(-l2, eye)
	p1.Add(a, &p1)
	p1.Scale(math.Exp(l1*h)/(l1-l2), &p1)
	p2.Scale(-l1, eye)
	p2.Add(a, &p2)
	p2.Scale(math.Exp(l2*h)/(l2-l1), &p2)

	ad := mat.NewDense(2, 2, nil)
	ad.Add(&p1, &p2)

	// Zero-order hold on the inputs: G = A⁻¹·(Ad − I), Bd = G·B, Ed = G·E.
	// A is invertible: det(A) = 1/(R1·R2·C1·C2) > 0.
	var ainv, adMinusI, g mat.Dense
	_ = ainv.Inverse(a)
	adMinusI.Scale(-1, eye)
	adMinusI.Add(ad, &adMinusI)
	g.Mul(&ainv, &adMinusI)

	bd := mat.NewVecDense(2, nil)
	bd.MulVec(&g, b)
	ed := mat.NewVecDense(2, nil)
	ed.MulVec(&g, e)

	m.ad, m.bd, m.ed = ad, bd, ed
}

// Step advances the state one tick. Pure and deterministic: the result
// depends only on the arguments and the model's fixed matrices.
func (m *ThermalModel) Step(s ThermalState, control, outdoor float64) ThermalState {
	x := mat.NewVecDense(2, []float64{s.Medium, s.Indoor})
	next := mat.NewVecDense(2, nil)
	next.MulVec(m.ad, x)
	next.AddScaledVec(next, control, m.bd)
	next.AddScaledVec(next, outdoor, m.ed)
	return ThermalState{Medium: next.AtVec(0), Indoor: next.AtVec(1)}
}

// Rollout applies Step repeatedly. The result has length len(controls)+1 and
// includes the initial state at index 0. outdoor must be at least as long as
// controls.
func (m *ThermalModel) Rollout(initial ThermalState, controls, outdoor []float64) []ThermalState {
	states := make([]ThermalState, 0, len(controls)+1)
	states = append(states, initial)
	s := initial
	for i, u := range controls {
		s = m.Step(s, u, outdoor[i])
		states = append(states, s)
	}
	return states
}

// SteadyState solves the balance equations for a constant control and
// outdoor temperature: Ti* = To + R2·u, Tm* = Ti* + R1·u.
func (m *ThermalModel) SteadyState(control, outdoor float64) ThermalState {
	p := m.params
	ti := outdoor + p.R2*control
	return ThermalState{Medium: ti + p.R1*control, Indoor: ti}
}
