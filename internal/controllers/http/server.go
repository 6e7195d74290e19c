package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/etnoy/kompromiss/internal/ports"
	"github.com/etnoy/kompromiss/internal/regulator"
)

type Server struct {
	svc      ports.RegulatorService
	srv      *http.Server
	deviceID string
}

// New returns a runnable server.
func New(svc ports.RegulatorService, addr string, deviceID string) *Server {
	mux := http.NewServeMux()
	s := &Server{svc: svc, deviceID: deviceID}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)

	// Write: one endpoint per variable
	mux.HandleFunc("POST /v1/enabled", s.handlePostEnabled)
	mux.HandleFunc("POST /v1/target_temperature", s.handlePostTargetTemperature)
	mux.HandleFunc("POST /v1/comfort_floor", s.handlePostComfortFloor)
	mux.HandleFunc("POST /v1/comfort_ceiling", s.handlePostComfortCeiling)
	mux.HandleFunc("POST /v1/weight_comfort", s.weightHandler(func(w *weightSet, v float64) { w.comfort = v }))
	mux.HandleFunc("POST /v1/weight_price", s.weightHandler(func(w *weightSet, v float64) { w.price = v }))
	mux.HandleFunc("POST /v1/weight_effort", s.weightHandler(func(w *weightSet, v float64) { w.effort = v }))
	mux.HandleFunc("POST /v1/weight_band", s.weightHandler(func(w *weightSet, v float64) { w.band = v }))
	mux.HandleFunc("POST /v1/strategy", s.handlePostStrategy)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type snapshotDTO struct {
	DeviceID           string  `json:"device_id"`
	Enabled            bool    `json:"enabled"`
	Strategy           string  `json:"strategy"`
	TargetTemperature  float64 `json:"target_temperature"`
	ComfortFloor       float64 `json:"comfort_floor"`
	ComfortCeiling     float64 `json:"comfort_ceiling"`
	WeightComfort      float64 `json:"weight_comfort"`
	WeightPrice        float64 `json:"weight_price"`
	WeightEffort       float64 `json:"weight_effort"`
	WeightBand         float64 `json:"weight_band"`
	IndoorTemperature  float64 `json:"indoor_temperature"`
	MediumTemperature  float64 `json:"medium_temperature"`
	OutdoorTemperature float64 `json:"outdoor_temperature"`
	PriceNow           float64 `json:"price_now"`
	LastAction         float64 `json:"last_action"`
	LastCost           float64 `json:"last_cost"`
	PlannedColdest     float64 `json:"planned_coldest"`
	PlannedHottest     float64 `json:"planned_hottest"`
	SensorDegraded     bool    `json:"sensor_degraded"`
	ForecastDegraded   bool    `json:"forecast_degraded"`
	LastTick           string  `json:"last_tick,omitempty"`
}

func toDTO(s regulator.Snapshot) snapshotDTO {
	dto := snapshotDTO{
		Enabled:            s.Enabled,
		Strategy:           s.Strategy.String(),
		TargetTemperature:  s.TargetTemperature,
		ComfortFloor:       s.ComfortFloor,
		ComfortCeiling:     s.ComfortCeiling,
		WeightComfort:      s.WeightComfort,
		WeightPrice:        s.WeightPrice,
		WeightEffort:       s.WeightEffort,
		WeightBand:         s.WeightBand,
		IndoorTemperature:  s.IndoorTemperature,
		MediumTemperature:  s.MediumTemperature,
		OutdoorTemperature: s.OutdoorTemperature,
		PriceNow:           s.PriceNow,
		LastAction:         s.LastAction,
		LastCost:           s.LastCost,
		PlannedColdest:     s.PlannedColdest,
		PlannedHottest:     s.PlannedHottest,
		SensorDegraded:     s.SensorDegraded,
		ForecastDegraded:   s.ForecastDegraded,
	}
	if !s.LastTick.IsZero() {
		dto.LastTick = s.LastTick.Format(time.RFC3339)
	}
	return dto
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handlePostEnabled(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v bool) error {
		s.svc.SetEnabled(v)
		return nil
	})
}

func (s *Server) handlePostTargetTemperature(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetTargetTemperature(v)
	})
}

func (s *Server) handlePostComfortFloor(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		cur := s.svc.Get()
		return s.svc.SetComfortBand(v, cur.ComfortCeiling)
	})
}

func (s *Server) handlePostComfortCeiling(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		cur := s.svc.Get()
		return s.svc.SetComfortBand(cur.ComfortFloor, v)
	})
}

type weightSet struct {
	comfort, price, effort, band float64
}

func (s *Server) weightHandler(set func(*weightSet, float64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postValue(s, w, r, func(v float64) error {
			cur := s.svc.Get()
			ws := weightSet{comfort: cur.WeightComfort, price: cur.WeightPrice, effort: cur.WeightEffort, band: cur.WeightBand}
			set(&ws, v)
			return s.svc.SetCostWeights(ws.comfort, ws.price, ws.effort, ws.band)
		})
	}
}

func (s *Server) handlePostStrategy(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "mpc"}
	postValue(s, w, r, func(v string) error {
		st, err := regulator.ParseStrategy(v)
		if err != nil {
			return err
		}
		return s.svc.SetStrategy(st)
	})
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	dto := toDTO(s.svc.Get())
	dto.DeviceID = s.deviceID
	writeJSON(w, http.StatusOK, dto)
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
