package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// TempPoint is one forecast instant of outdoor temperature.
type TempPoint struct {
	Time        time.Time
	Temperature float64 // °C
}

// WeatherClient fetches the outdoor temperature forecast from a
// locationforecast-style API. The upstream serves hourly instants; callers
// resample to the control tick.
type WeatherClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	lat, lon   float64
}

func NewWeatherClient(baseURL, userAgent string, lat, lon float64) *WeatherClient {
	return &WeatherClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		userAgent:  userAgent,
		lat:        lat,
		lon:        lon,
	}
}

// SetHTTPClient overrides the default client (useful for testing).
func (c *WeatherClient) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

type weatherResponse struct {
	Properties struct {
		Timeseries []struct {
			Time string `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// Temperatures returns the chronological hourly outdoor temperatures.
func (c *WeatherClient) Temperatures(ctx context.Context) ([]TempPoint, error) {
	u := c.baseURL + "/compact?lat=" + formatCoord(c.lat) + "&lon=" + formatCoord(c.lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("weather endpoint returned %d: %s", resp.StatusCode, body)
	}

	var dto weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	points := make([]TempPoint, 0, len(dto.Properties.Timeseries))
	for _, ts := range dto.Properties.Timeseries {
		at, err := time.Parse(time.RFC3339, ts.Time)
		if err != nil {
			continue
		}
		points = append(points, TempPoint{Time: at.UTC(), Temperature: ts.Data.Instant.Details.AirTemperature})
	}
	return points, nil
}

// Resample expands hourly points into tick-sized steps starting at from,
// holding each hour's value. Returns at most steps points.
func Resample(points []TempPoint, from time.Time, step time.Duration, steps int) []float64 {
	if len(points) == 0 {
		return nil
	}
	out := make([]float64, 0, steps)
	for i := 0; i < steps; i++ {
		at := from.Add(time.Duration(i) * step)
		idx := 0
		for j := range points {
			if points[j].Time.After(at) {
				break
			}
			idx = j
		}
		out = append(out, points[idx].Temperature)
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
