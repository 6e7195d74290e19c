// Closed-loop simulation of the regulator against the thermal model. Writes
// one CSV row per tick so the trajectory can be plotted.
package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/etnoy/kompromiss/internal/regulator"
)

type tickRow struct {
	Tick    int     `csv:"tick"`
	Outdoor float64 `csv:"outdoor"`
	Price   float64 `csv:"price"`
	Heat    float64 `csv:"heat"`
	Medium  float64 `csv:"medium"`
	Indoor  float64 `csv:"indoor"`
	Cost    float64 `csv:"cost"`
}

func simulate(ticks int, filename string) error {
	dt := 15 * time.Minute
	horizon := 24

	model, err := regulator.NewThermalModel(regulator.ThermalParameters{
		R1: 0.5, R2: 2.0, C1: 0.1, C2: 5.0,
	}, dt)
	if err != nil {
		return err
	}
	cost, err := regulator.NewCostFunction(regulator.Weights{
		Comfort:           1.0,
		Price:             0.5,
		Effort:            0.1,
		Band:              10,
		Terminal:          1.0,
		TargetTemperature: 21,
		ComfortFloor:      19,
		ComfortCeiling:    23,
		EnergyPerUnit:     1.0,
	}, dt)
	if err != nil {
		return err
	}
	opt, err := regulator.NewOptimizer(model, cost, regulator.Bounds{Min: 0, Max: 10, MaxDelta: 2})
	if err != nil {
		return err
	}

	// Diurnal outdoor swing around 0°C and a price peak in the evening.
	exogenous := func(tick int) regulator.ExogenousPoint {
		hour := float64(tick) * dt.Hours()
		return regulator.ExogenousPoint{
			OutdoorTemperature: -5 + 5*math.Sin(2*math.Pi*(hour-9)/24),
			Price:              0.5 + 0.4*math.Sin(2*math.Pi*(hour-12)/24),
		}
	}

	state := regulator.ThermalState{Medium: 25, Indoor: 19}
	prev := 0.0
	rows := make([]tickRow, 0, ticks)

	for i := 0; i < ticks; i++ {
		traj := make(regulator.ExogenousTrajectory, horizon)
		for k := range traj {
			traj[k] = exogenous(i + k)
		}

		seq, total, err := opt.Solve(state, prev, traj)
		if err != nil {
			return fmt.Errorf("tick %d: %w", i, err)
		}

		heat := seq[0]
		state = model.Step(state, heat, traj[0].OutdoorTemperature)
		prev = heat

		rows = append(rows, tickRow{
			Tick:    i,
			Outdoor: traj[0].OutdoorTemperature,
			Price:   traj[0].Price,
			Heat:    heat,
			Medium:  state.Medium,
			Indoor:  state.Indoor,
			Cost:    total,
		})
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func main() {
	if err := simulate(4*24*2, "kompromiss.csv"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
