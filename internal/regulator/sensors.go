package regulator

import (
	"context"
	"sync"
	"time"
)

// SensorReadings are the live temperatures the controller re-anchors on each
// tick.
type SensorReadings struct {
	Indoor float64
	Medium float64
}

// SensorSource supplies the latest measured temperatures. Implementations
// return ErrNoFreshReading when no usable reading is available; the
// controller then degrades to its own propagated estimate.
type SensorSource interface {
	Current(ctx context.Context) (SensorReadings, error)
}

// SensorHub is a SensorSource fed by the transport controllers (MQTT sensor
// topics, Modbus writes). Readings older than maxAge are treated as missing.
type SensorHub struct {
	mu sync.Mutex

	indoor     float64
	medium     float64
	haveIndoor bool
	haveMedium bool
	updatedAt  time.Time

	maxAge time.Duration
	now    func() time.Time
}

func NewSensorHub(maxAge time.Duration) *SensorHub {
	return &SensorHub{maxAge: maxAge, now: time.Now}
}

func (h *SensorHub) ReportIndoor(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.indoor = v
	h.haveIndoor = true
	h.updatedAt = h.now()
}

func (h *SensorHub) ReportMedium(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.medium = v
	h.haveMedium = true
	h.updatedAt = h.now()
}

func (h *SensorHub) Current(_ context.Context) (SensorReadings, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.haveIndoor || !h.haveMedium {
		return SensorReadings{}, ErrNoFreshReading
	}
	if h.maxAge > 0 && h.now().Sub(h.updatedAt) > h.maxAge {
		return SensorReadings{}, ErrNoFreshReading
	}
	return SensorReadings{Indoor: h.indoor, Medium: h.medium}, nil
}
