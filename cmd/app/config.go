// Package app loads and validates the process configuration. Precedence:
// built-in defaults, then the config file, then KOMPROMISS_* environment
// variables.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/etnoy/kompromiss/internal/actuator"
	"github.com/etnoy/kompromiss/internal/regulator"
)

const envPrefix = "KOMPROMISS_"

type Config struct {
	DeviceID string `koanf:"device_id"`

	Regulator RegulatorConfig `koanf:"regulator"`
	Thermal   ThermalConfig   `koanf:"thermal"`
	Weights   WeightsConfig   `koanf:"weights"`
	Comfort   ComfortConfig   `koanf:"comfort"`
	Bounds    BoundsConfig    `koanf:"bounds"`
	Forecast  ForecastConfig  `koanf:"forecast"`
	Store     StoreConfig     `koanf:"store"`

	Actuator struct {
		Kind   string               `koanf:"kind"` // "mqtt" | "modbus" | "log"
		SOT    SOTConfig            `koanf:"sot"`
		MQTT   ActuatorMQTTConfig   `koanf:"mqtt"`
		Modbus ActuatorModbusConfig `koanf:"modbus"`
	} `koanf:"actuator"`

	Controllers struct {
		HTTP   HTTPConfig       `koanf:"http"`
		MQTT   CtrlMQTTConfig   `koanf:"mqtt"`
		Modbus CtrlModbusConfig `koanf:"modbus"`
	} `koanf:"controllers"`
}

type RegulatorConfig struct {
	Interval                  time.Duration `koanf:"interval"`
	Steps                     int           `koanf:"steps"`
	Strategy                  string        `koanf:"strategy"` // "mpc" | "passthrough"
	NeutralOutdoorTemperature float64       `koanf:"neutral_outdoor_temperature"`
	ForecastTimeout           time.Duration `koanf:"forecast_timeout"`
}

// ThermalConfig holds the 1R1C chain parameters. Resistances are K per heat
// unit, capacities heat-unit-hours per K.
type ThermalConfig struct {
	R1 float64 `koanf:"r1"`
	R2 float64 `koanf:"r2"`
	C1 float64 `koanf:"c1"`
	C2 float64 `koanf:"c2"`
}

type WeightsConfig struct {
	Comfort       float64 `koanf:"comfort"`
	Price         float64 `koanf:"price"`
	Effort        float64 `koanf:"effort"`
	Band          float64 `koanf:"band"`
	Terminal      float64 `koanf:"terminal"`
	EnergyPerUnit float64 `koanf:"energy_per_unit"`
}

type ComfortConfig struct {
	Target  float64 `koanf:"target"`
	Floor   float64 `koanf:"floor"`
	Ceiling float64 `koanf:"ceiling"`
}

type BoundsConfig struct {
	Min      float64 `koanf:"min"`
	Max      float64 `koanf:"max"`
	MaxDelta float64 `koanf:"max_delta"`
}

type ForecastConfig struct {
	PriceURL  string  `koanf:"price_url"`
	PriceArea string  `koanf:"price_area"`
	Currency  string  `koanf:"currency"`

	WeatherURL string  `koanf:"weather_url"`
	UserAgent  string  `koanf:"user_agent"`
	Latitude   float64 `koanf:"latitude"`
	Longitude  float64 `koanf:"longitude"`

	// Static fallback used when no URLs are configured.
	StaticOutdoor float64 `koanf:"static_outdoor"`
	StaticPrice   float64 `koanf:"static_price"`
}

type StoreConfig struct {
	DSN string `koanf:"dsn"` // empty disables persistence
}

type SOTConfig struct {
	Min         float64 `koanf:"min"`
	Max         float64 `koanf:"max"`
	OffsetRange float64 `koanf:"offset_range"`
	MaxHeat     float64 `koanf:"max_heat"`
}

type ActuatorMQTTConfig struct {
	BrokerURL string `koanf:"broker_url"`
	ClientID  string `koanf:"client_id"`
	Topic     string `koanf:"topic"`
	QoS       byte   `koanf:"qos"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type ActuatorModbusConfig struct {
	Addr     string        `koanf:"addr"`
	UnitID   byte          `koanf:"unit_id"`
	Register uint16        `koanf:"register"`
	Timeout  time.Duration `koanf:"timeout"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type CtrlMQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type CtrlModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

func defaults() Config {
	var cfg Config
	cfg.DeviceID = "default"
	cfg.Regulator = RegulatorConfig{
		Interval:                  15 * time.Minute,
		Steps:                     24,
		Strategy:                  "mpc",
		NeutralOutdoorTemperature: 0,
		ForecastTimeout:           10 * time.Second,
	}
	cfg.Thermal = ThermalConfig{R1: 0.5, R2: 2.0, C1: 0.1, C2: 5.0}
	cfg.Weights = WeightsConfig{
		Comfort:       1.0,
		Price:         0.5,
		Effort:        0.1,
		Band:          10,
		Terminal:      1.0,
		EnergyPerUnit: 1.0,
	}
	cfg.Comfort = ComfortConfig{Target: 21, Floor: 19, Ceiling: 23}
	cfg.Bounds = BoundsConfig{Min: 0, Max: 10, MaxDelta: 2}
	cfg.Forecast = ForecastConfig{
		Currency:      "SEK",
		StaticOutdoor: 0,
		StaticPrice:   0.5,
	}
	cfg.Actuator.Kind = "log"
	cfg.Actuator.SOT = SOTConfig{Min: -40, Max: 22, OffsetRange: 10, MaxHeat: 10}
	cfg.Controllers.HTTP.Addr = ":8080"
	cfg.Controllers.MQTT.PublishInterval = 1 * time.Second
	cfg.Controllers.Modbus.UnitID = 1
	return cfg
}

// Load builds the effective config: defaults, file, then environment. A
// missing config file is fine; defaults plus env apply.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return Config{}, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if !cfg.Controllers.HTTP.Enabled && !cfg.Controllers.MQTT.Enabled && !cfg.Controllers.Modbus.Enabled {
		cfg.Controllers.HTTP.Enabled = true
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kyaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

// Sections whose children are themselves sections (two dots in the key).
var nestedSections = map[string]bool{
	"controllers": true,
	"actuator":    true,
}

// Flat sections: one dot, the remainder keeps its underscores.
var flatSections = map[string]bool{
	"regulator": true,
	"thermal":   true,
	"weights":   true,
	"comfort":   true,
	"bounds":    true,
	"forecast":  true,
	"store":     true,
}

// envKeyTransform maps CONTROLLERS_HTTP_ADDR to controllers.http.addr and
// WEIGHTS_ENERGY_PER_UNIT to weights.energy_per_unit. Keys that do not start
// with a known section pass through lowercased, so DEVICE_ID stays device_id.
func envKeyTransform(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	parts := strings.Split(key, "_")
	if len(parts) == 0 {
		return key
	}
	switch {
	case nestedSections[parts[0]] && len(parts) >= 3:
		return parts[0] + "." + parts[1] + "." + strings.Join(parts[2:], "_")
	case flatSections[parts[0]] && len(parts) >= 2:
		return parts[0] + "." + strings.Join(parts[1:], "_")
	default:
		return key
	}
}

// ---- conversions to domain configuration ----

func (c Config) ControllerConfig() regulator.ControllerConfig {
	strategy, _ := regulator.ParseStrategy(c.Regulator.Strategy)
	return regulator.ControllerConfig{
		Thermal: regulator.ThermalParameters{
			R1: c.Thermal.R1, R2: c.Thermal.R2,
			C1: c.Thermal.C1, C2: c.Thermal.C2,
		},
		Weights: regulator.Weights{
			Comfort:           c.Weights.Comfort,
			Price:             c.Weights.Price,
			Effort:            c.Weights.Effort,
			Band:              c.Weights.Band,
			Terminal:          c.Weights.Terminal,
			TargetTemperature: c.Comfort.Target,
			ComfortFloor:      c.Comfort.Floor,
			ComfortCeiling:    c.Comfort.Ceiling,
			EnergyPerUnit:     c.Weights.EnergyPerUnit,
		},
		Horizon: regulator.HorizonConfig{
			Steps: c.Regulator.Steps,
			Dt:    c.Regulator.Interval,
		},
		Bounds: regulator.Bounds{
			Min:      c.Bounds.Min,
			Max:      c.Bounds.Max,
			MaxDelta: c.Bounds.MaxDelta,
		},
		Strategy:                  strategy,
		NeutralOutdoorTemperature: c.Regulator.NeutralOutdoorTemperature,
		ForecastTimeout:           c.Regulator.ForecastTimeout,
	}
}

func (c Config) SOT() actuator.SOTConfig {
	return actuator.SOTConfig{
		Min:         c.Actuator.SOT.Min,
		Max:         c.Actuator.SOT.Max,
		OffsetRange: c.Actuator.SOT.OffsetRange,
		MaxHeat:     c.Actuator.SOT.MaxHeat,
	}
}

func (c Config) ActuatorMQTT() actuator.MQTTConfig {
	return actuator.MQTTConfig{
		BrokerURL: c.Actuator.MQTT.BrokerURL,
		ClientID:  c.Actuator.MQTT.ClientID,
		Topic:     c.Actuator.MQTT.Topic,
		QoS:       c.Actuator.MQTT.QoS,
		Username:  c.Actuator.MQTT.Username,
		Password:  c.Actuator.MQTT.Password,
	}
}

func (c Config) ActuatorModbus() actuator.ModbusConfig {
	return actuator.ModbusConfig{
		Addr:     c.Actuator.Modbus.Addr,
		UnitID:   c.Actuator.Modbus.UnitID,
		Register: c.Actuator.Modbus.Register,
		Timeout:  c.Actuator.Modbus.Timeout,
	}
}
