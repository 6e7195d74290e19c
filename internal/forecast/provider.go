package forecast

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/etnoy/kompromiss/internal/regulator"
)

var ErrNoForecastData = errors.New("no forecast data available")

// Provider assembles the exogenous trajectory the regulator consumes from
// the price and weather clients. It may return fewer points than requested
// when an upstream is exhausted; the regulator extends flat in that case.
type Provider struct {
	prices  *PriceClient
	weather *WeatherClient
	step    time.Duration
	log     *log.Logger
	now     func() time.Time
}

func NewProvider(prices *PriceClient, weather *WeatherClient, step time.Duration, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	return &Provider{prices: prices, weather: weather, step: step, log: logger, now: time.Now}
}

func (p *Provider) Forecast(ctx context.Context, steps int) (regulator.ExogenousTrajectory, error) {
	from := p.now().UTC()

	pricePoints, err := p.prices.NextPrices(ctx, from, time.Duration(steps)*p.step)
	if err != nil {
		p.log.Printf("forecast: price fetch failed: %v", err)
	}

	var temps []float64
	tempPoints, err := p.weather.Temperatures(ctx)
	if err != nil {
		p.log.Printf("forecast: weather fetch failed: %v", err)
	} else {
		temps = Resample(tempPoints, from, p.step, steps)
	}

	n := steps
	if len(pricePoints) < n {
		n = len(pricePoints)
	}
	if len(temps) < n {
		n = len(temps)
	}
	if n == 0 {
		return nil, ErrNoForecastData
	}

	traj := make(regulator.ExogenousTrajectory, n)
	for i := 0; i < n; i++ {
		traj[i] = regulator.ExogenousPoint{
			OutdoorTemperature: temps[i],
			Price:              pricePoints[i].Price,
		}
	}
	return traj, nil
}
