// Package actuator delivers the per-tick control action to the heat pump.
//
// Heat pumps driven by an outdoor-temperature curve cannot be commanded with
// an abstract heat input directly; instead the action is mapped onto a
// simulated outdoor temperature (SOT). A lower SOT makes the pump's own
// curve work harder, so full heat demand lowers the reported temperature by
// OffsetRange degrees.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/etnoy/kompromiss/internal/regulator"
)

var (
	ErrInvalidSOTRange  = errors.New("sot lower bound exceeds upper bound")
	ErrNonPositiveHeat  = errors.New("max heat must be strictly positive")
	ErrNegativeOffset   = errors.New("sot offset range must not be negative")
	ErrMissingSOTTopic  = errors.New("mqtt: command topic is required")
	ErrMissingBrokerURL = errors.New("mqtt: broker URL is required")
)

// SOTConfig maps a heat action onto a simulated outdoor temperature.
type SOTConfig struct {
	Min         float64 // coldest temperature ever reported
	Max         float64 // warmest temperature ever reported
	OffsetRange float64 // degrees subtracted at full heat demand
	MaxHeat     float64 // heat units corresponding to full demand
}

func (c SOTConfig) Validate() error {
	if c.Min > c.Max {
		return ErrInvalidSOTRange
	}
	if c.OffsetRange < 0 {
		return ErrNegativeOffset
	}
	if c.MaxHeat <= 0 {
		return ErrNonPositiveHeat
	}
	return nil
}

// Map converts a heat action into the simulated outdoor temperature. Zero
// heat passes the real outdoor temperature through unchanged (modulo the
// clamp).
func (c SOTConfig) Map(heat, outdoor float64) float64 {
	norm := heat / c.MaxHeat
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	sot := outdoor - c.OffsetRange*norm
	if sot < c.Min {
		sot = c.Min
	}
	if sot > c.Max {
		sot = c.Max
	}
	return sot
}

// MQTTConfig configures the MQTT command channel.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Username  string
	Password  string
}

// MQTT publishes the mapped SOT to a command topic as a plain decimal value,
// the format number-style subscribers expect.
type MQTT struct {
	cfg MQTTConfig
	sot SOTConfig

	client mqtt.Client
}

func NewMQTT(cfg MQTTConfig, sot SOTConfig) (*MQTT, error) {
	if err := sot.Validate(); err != nil {
		return nil, err
	}
	if cfg.BrokerURL == "" {
		return nil, ErrMissingBrokerURL
	}
	if cfg.Topic == "" {
		return nil, ErrMissingSOTTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "kompromiss-actuator"
	}
	return &MQTT{cfg: cfg, sot: sot}, nil
}

// Connect establishes the broker session. Must be called before Apply.
func (a *MQTT) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(a.cfg.BrokerURL).
		SetClientID(a.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
		opts.SetPassword(a.cfg.Password)
	}
	a.client = mqtt.NewClient(opts)
	tok := a.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (a *MQTT) Close() {
	if a.client != nil {
		a.client.Disconnect(250)
	}
}

func (a *MQTT) Apply(_ context.Context, cmd regulator.Command) error {
	sot := a.sot.Map(cmd.Heat, cmd.OutdoorTemperature)
	payload := strconv.FormatFloat(sot, 'f', 2, 64)
	tok := a.client.Publish(a.cfg.Topic, a.cfg.QoS, true, payload)
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", a.cfg.Topic, err)
	}
	return nil
}
