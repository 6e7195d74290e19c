package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/etnoy/kompromiss/internal/ports"
	"github.com/etnoy/kompromiss/internal/regulator"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc  ports.RegulatorService
	sink ports.SensorSink
	cfg  Config

	client mqtt.Client
}

func New(svc ports.RegulatorService, sink ports.SensorSink, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "kompromiss/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "kompromiss-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	return &Controller{
		svc:  svc,
		sink: sink,
		cfg:  cfg,
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		// Control-plane commands and live sensor feeds.
		tok := cl.Subscribe(c.topic("set/+"), c.cfg.QoS, c.onMessage)
		tok.Wait()
		tok = cl.Subscribe(c.topic("sensors/+"), c.cfg.QoS, c.onSensor)
		tok.Wait()
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	var last regulator.Snapshot
	first := true

	// publish immediately once
	c.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			cur := c.svc.Get()
			if first || !reflect.DeepEqual(cur, last) {
				c.publishSnapshot()
				last = cur
				first = false
			}
		}
	}
}

func (c *Controller) publishSnapshot() {
	s := c.svc.Get()
	dto := snapshotDTO{
		Enabled:            s.Enabled,
		Strategy:           s.Strategy.String(),
		TargetTemperature:  s.TargetTemperature,
		ComfortFloor:       s.ComfortFloor,
		ComfortCeiling:     s.ComfortCeiling,
		IndoorTemperature:  s.IndoorTemperature,
		MediumTemperature:  s.MediumTemperature,
		OutdoorTemperature: s.OutdoorTemperature,
		PriceNow:           s.PriceNow,
		LastAction:         s.LastAction,
		PlannedColdest:     s.PlannedColdest,
		PlannedHottest:     s.PlannedHottest,
		SensorDegraded:     s.SensorDegraded,
		ForecastDegraded:   s.ForecastDegraded,
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic("snapshot"), c.cfg.QoS, c.cfg.RetainSnapshot, b)
}

type snapshotDTO struct {
	Enabled            bool    `json:"enabled"`
	Strategy           string  `json:"strategy"`
	TargetTemperature  float64 `json:"target_temperature"`
	ComfortFloor       float64 `json:"comfort_floor"`
	ComfortCeiling     float64 `json:"comfort_ceiling"`
	IndoorTemperature  float64 `json:"indoor_temperature"`
	MediumTemperature  float64 `json:"medium_temperature"`
	OutdoorTemperature float64 `json:"outdoor_temperature"`
	PriceNow           float64 `json:"price_now"`
	LastAction         float64 `json:"last_action"`
	PlannedColdest     float64 `json:"planned_coldest"`
	PlannedHottest     float64 `json:"planned_hottest"`
	SensorDegraded     bool    `json:"sensor_degraded"`
	ForecastDegraded   bool    `json:"forecast_degraded"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := c.cfg.BaseTopic + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	// Dispatch by field
	switch field {
	case "enabled":
		v, err := decodeValueStrict[bool](payload)
		if err != nil {
			return
		}
		c.svc.SetEnabled(v)

	case "target_temperature":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		_ = c.svc.SetTargetTemperature(v)

	case "comfort_floor":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		_ = c.svc.SetComfortBand(v, cur.ComfortCeiling)

	case "comfort_ceiling":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		_ = c.svc.SetComfortBand(cur.ComfortFloor, v)

	case "weight_comfort", "weight_price", "weight_effort", "weight_band":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		cur := c.svc.Get()
		comfort, price, effort, band := cur.WeightComfort, cur.WeightPrice, cur.WeightEffort, cur.WeightBand
		switch field {
		case "weight_comfort":
			comfort = v
		case "weight_price":
			price = v
		case "weight_effort":
			effort = v
		case "weight_band":
			band = v
		}
		_ = c.svc.SetCostWeights(comfort, price, effort, band)

	case "strategy":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return
		}
		st, err := regulator.ParseStrategy(s)
		if err != nil {
			return
		}
		_ = c.svc.SetStrategy(st)
	}
}

// onSensor feeds live readings into the regulator's sensor hub. Payloads are
// plain decimal numbers, matching what temperature sensors publish.
func (c *Controller) onSensor(_ mqtt.Client, msg mqtt.Message) {
	if c.sink == nil {
		return
	}
	t := msg.Topic()
	prefix := c.cfg.BaseTopic + "/sensors/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	var v float64
	if err := json.Unmarshal(bytes.TrimSpace(msg.Payload()), &v); err != nil {
		return
	}

	switch field {
	case "indoor_temperature":
		c.sink.ReportIndoor(v)
	case "medium_temperature":
		c.sink.ReportMedium(v)
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
