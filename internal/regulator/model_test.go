package regulator

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

func assertError(t *testing.T, err error, expected error) {
	t.Helper()
	if err != expected {
		t.Fatalf("expected %v, got %v", expected, err)
	}
}

func almostEqual(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if !scalar.EqualWithinAbs(got, want, tol) {
		t.Fatalf("%s: got %v, want %v (tol %v)", name, got, want, tol)
	}
}

func testParams() ThermalParameters {
	return ThermalParameters{R1: 0.5, R2: 2.0, C1: 0.1, C2: 5.0}
}

func newTestModel(t *testing.T, dt time.Duration) *ThermalModel {
	t.Helper()
	m, err := NewThermalModel(testParams(), dt)
	if err != nil {
		t.Fatalf("NewThermalModel() failed: %v", err)
	}
	return m
}

func TestNewThermalModelValidation(t *testing.T) {
	bad := []ThermalParameters{
		{R1: 0, R2: 2, C1: 0.1, C2: 5},
		{R1: 0.5, R2: -1, C1: 0.1, C2: 5},
		{R1: 0.5, R2: 2, C1: 0, C2: 5},
		{R1: 0.5, R2: 2, C1: 0.1, C2: -5},
	}
	for _, p := range bad {
		_, err := NewThermalModel(p, 15*time.Minute)
		assertError(t, err, ErrNonPositiveThermalParameter)
	}

	_, err := NewThermalModel(testParams(), 0)
	assertError(t, err, ErrInvalidHorizon)
}

func TestStepDeterministic(t *testing.T) {
	m1 := newTestModel(t, 15*time.Minute)
	m2 := newTestModel(t, 15*time.Minute)

	s := ThermalState{Medium: 30, Indoor: 20}
	a := m1.Step(s, 3.2, -5)
	b := m2.Step(s, 3.2, -5)
	if a != b {
		t.Fatalf("identical inputs produced different states: %+v vs %+v", a, b)
	}
	if a != m1.Step(s, 3.2, -5) {
		t.Fatal("repeated Step on the same model is not reproducible")
	}
}

func TestSteadyStateIsFixedPoint(t *testing.T) {
	m := newTestModel(t, 15*time.Minute)

	for _, tc := range []struct {
		control, outdoor float64
	}{
		{0, 0},
		{1, 0},
		{2.5, -10},
		{0.7, 12},
	} {
		ss := m.SteadyState(tc.control, tc.outdoor)
		next := m.Step(ss, tc.control, tc.outdoor)
		almostEqual(t, "fixed point medium", next.Medium, ss.Medium, 1e-9)
		almostEqual(t, "fixed point indoor", next.Indoor, ss.Indoor, 1e-9)
	}
}

func TestSteadyStateBalance(t *testing.T) {
	m := newTestModel(t, 15*time.Minute)
	ss := m.SteadyState(1.0, 0)
	// Ti* = To + R2·u, Tm* = Ti* + R1·u
	almostEqual(t, "indoor", ss.Indoor, 2.0, 1e-12)
	almostEqual(t, "medium", ss.Medium, 2.5, 1e-12)
}

// The R1·C1 loop has a 3-minute time constant while the tick is 15 minutes,
// which would blow up a forward-Euler discretization. The exact hold keeps
// every step bounded and converging to the balance point.
func TestConstantInputConvergesToSteadyState(t *testing.T) {
	m := newTestModel(t, 15*time.Minute)

	const control, outdoor = 1.0, 0.0
	ss := m.SteadyState(control, outdoor)

	s := ThermalState{Medium: 15, Indoor: 15}
	prevDev := math.Abs(s.Indoor - ss.Indoor)
	for i := 0; i < 2000; i++ {
		s = m.Step(s, control, outdoor)
		dev := math.Abs(s.Indoor - ss.Indoor)
		if dev > prevDev+1e-12 {
			t.Fatalf("step %d: indoor deviation grew from %v to %v", i, prevDev, dev)
		}
		if s.Indoor < ss.Indoor-1e-9 {
			t.Fatalf("step %d: indoor %v crossed below the balance point %v", i, s.Indoor, ss.Indoor)
		}
		prevDev = dev
	}
	almostEqual(t, "converged indoor", s.Indoor, ss.Indoor, 1e-6)
	almostEqual(t, "converged medium", s.Medium, ss.Medium, 1e-6)
}

func TestStepHeatEntersMediumFirst(t *testing.T) {
	m := newTestModel(t, 15*time.Minute)

	// Start at rest with the outdoor temperature, then inject heat.
	rest := m.SteadyState(0, 5)
	next := m.Step(rest, 2.0, 5)

	dMedium := next.Medium - rest.Medium
	dIndoor := next.Indoor - rest.Indoor
	if dMedium <= 0 || dIndoor <= 0 {
		t.Fatalf("heating should raise both nodes, got dMedium=%v dIndoor=%v", dMedium, dIndoor)
	}
	if dMedium <= dIndoor {
		t.Fatalf("medium loop should respond first: dMedium=%v dIndoor=%v", dMedium, dIndoor)
	}
}

func TestRolloutShape(t *testing.T) {
	m := newTestModel(t, 15*time.Minute)

	initial := ThermalState{Medium: 25, Indoor: 20}
	controls := []float64{1, 2, 0, 1}
	outdoor := []float64{0, 0, -1, -1}

	states := m.Rollout(initial, controls, outdoor)
	if len(states) != len(controls)+1 {
		t.Fatalf("rollout length: got %d, want %d", len(states), len(controls)+1)
	}
	if states[0] != initial {
		t.Fatalf("rollout must start at the initial state, got %+v", states[0])
	}

	// Each entry must equal stepping the previous one.
	s := initial
	for i, u := range controls {
		s = m.Step(s, u, outdoor[i])
		if states[i+1] != s {
			t.Fatalf("rollout state %d diverges from Step", i+1)
		}
	}
}
