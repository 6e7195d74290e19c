package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// PricePoint is one delivery period of the day-ahead market.
type PricePoint struct {
	Start time.Time
	Price float64 // currency per kWh
}

// PriceClient fetches day-ahead electricity prices for one bidding area at
// 15-minute resolution. The endpoint serves one calendar day per request
// keyed by area, so covering the horizon means fetching today and tomorrow
// and filtering.
type PriceClient struct {
	httpClient *http.Client
	baseURL    string
	area       string
	currency   string
}

func NewPriceClient(baseURL, area, currency string) *PriceClient {
	return &PriceClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		area:       area,
		currency:   currency,
	}
}

// SetHTTPClient overrides the default client (useful for testing).
func (c *PriceClient) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

type pricePointDTO struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Price float64 `json:"price"`
}

// PricesForDate fetches all delivery periods of one calendar day.
func (c *PriceClient) PricesForDate(ctx context.Context, date time.Time) ([]PricePoint, error) {
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	q.Set("area", c.area)
	q.Set("resolution", "15")
	if c.currency != "" {
		q.Set("currency", c.currency)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/prices?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price endpoint returned %d: %s", resp.StatusCode, body)
	}

	// Response is a mapping keyed by area: {"FI": [{start, end, price}, ...]}
	var byArea map[string][]pricePointDTO
	if err := json.NewDecoder(resp.Body).Decode(&byArea); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	points := make([]PricePoint, 0, len(byArea[c.area]))
	for _, dto := range byArea[c.area] {
		start, err := time.Parse(time.RFC3339, dto.Start)
		if err != nil {
			continue
		}
		points = append(points, PricePoint{Start: start.UTC(), Price: dto.Price})
	}
	return points, nil
}

// NextPrices returns the chronological prices starting in [from, from+span),
// fetching today and tomorrow as needed.
func (c *PriceClient) NextPrices(ctx context.Context, from time.Time, span time.Duration) ([]PricePoint, error) {
	end := from.Add(span)

	var all []PricePoint
	for _, day := range []time.Time{from, from.Add(24 * time.Hour)} {
		points, err := c.PricesForDate(ctx, day)
		if err != nil {
			if len(all) > 0 {
				// Tomorrow's auction may not have cleared yet.
				break
			}
			return nil, err
		}
		all = append(all, points...)
	}

	out := all[:0]
	for _, p := range all {
		if !p.Start.Before(from.Truncate(15*time.Minute)) && p.Start.Before(end) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
