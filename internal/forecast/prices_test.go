package forecast

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func priceFixture(area string, day time.Time, price float64) string {
	out := fmt.Sprintf("{%q: [", area)
	for i := 0; i < 96; i++ {
		start := day.Add(time.Duration(i) * 15 * time.Minute)
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("{\"start\": %q, \"end\": %q, \"price\": %g}",
			start.Format(time.RFC3339), start.Add(15*time.Minute).Format(time.RFC3339), price)
	}
	return out + "]}"
}

func TestPricesForDate(t *testing.T) {
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prices" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("date") != "2026-01-10" || q.Get("area") != "SE3" || q.Get("resolution") != "15" {
			t.Fatalf("unexpected query %v", q)
		}
		fmt.Fprint(w, priceFixture("SE3", day, 0.42))
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "SE3", "SEK")
	points, err := c.PricesForDate(context.Background(), day)
	if err != nil {
		t.Fatalf("PricesForDate() failed: %v", err)
	}
	if len(points) != 96 {
		t.Fatalf("got %d points, want 96", len(points))
	}
	if !points[0].Start.Equal(day) || points[0].Price != 0.42 {
		t.Fatalf("unexpected first point %+v", points[0])
	}
}

func TestPricesForDateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "SE3", "SEK")
	if _, err := c.PricesForDate(context.Background(), time.Now()); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestNextPricesSpansMidnight(t *testing.T) {
	today := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	tomorrow := today.Add(24 * time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("date") {
		case "2026-01-10":
			fmt.Fprint(w, priceFixture("SE3", today, 0.40))
		case "2026-01-11":
			fmt.Fprint(w, priceFixture("SE3", tomorrow, 0.80))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "SE3", "SEK")

	// 23:30 today, six hours ahead: two periods today, the rest tomorrow.
	from := today.Add(23*time.Hour + 30*time.Minute)
	points, err := c.NextPrices(context.Background(), from, 6*time.Hour)
	if err != nil {
		t.Fatalf("NextPrices() failed: %v", err)
	}
	if len(points) != 24 {
		t.Fatalf("got %d points, want 24", len(points))
	}
	if points[0].Price != 0.40 || points[len(points)-1].Price != 0.80 {
		t.Fatalf("points do not span midnight: first %+v last %+v", points[0], points[len(points)-1])
	}
	for i := 1; i < len(points); i++ {
		if !points[i-1].Start.Before(points[i].Start) {
			t.Fatalf("points out of order at %d", i)
		}
	}
}

func TestNextPricesToleratesMissingTomorrow(t *testing.T) {
	today := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") == "2026-01-10" {
			fmt.Fprint(w, priceFixture("SE3", today, 0.40))
			return
		}
		// Tomorrow's auction has not cleared.
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewPriceClient(srv.URL, "SE3", "SEK")
	from := today.Add(22 * time.Hour)
	points, err := c.NextPrices(context.Background(), from, 6*time.Hour)
	if err != nil {
		t.Fatalf("NextPrices() failed: %v", err)
	}
	// Only today's remaining two hours are available.
	if len(points) != 8 {
		t.Fatalf("got %d points, want 8", len(points))
	}
}
