package forecast

import (
	"context"

	"github.com/etnoy/kompromiss/internal/regulator"
)

// Static serves a fixed trajectory. Used when no upstream endpoints are
// configured and in tests.
type Static struct {
	Trajectory regulator.ExogenousTrajectory
}

// NewStaticConstant builds a Static holding one repeated point.
func NewStaticConstant(outdoor, price float64, steps int) *Static {
	traj := make(regulator.ExogenousTrajectory, steps)
	for i := range traj {
		traj[i] = regulator.ExogenousPoint{OutdoorTemperature: outdoor, Price: price}
	}
	return &Static{Trajectory: traj}
}

func (s *Static) Forecast(_ context.Context, steps int) (regulator.ExogenousTrajectory, error) {
	if len(s.Trajectory) == 0 {
		return nil, ErrNoForecastData
	}
	if steps > len(s.Trajectory) {
		steps = len(s.Trajectory)
	}
	out := make(regulator.ExogenousTrajectory, steps)
	copy(out, s.Trajectory)
	return out, nil
}
