package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvKeyTransform_TopLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"DEVICE_ID", "device_id"},
		{"ADDR", "addr"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyTransform_NestedSections(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CONTROLLERS_HTTP_ADDR", "controllers.http.addr"},
		{"CONTROLLERS_MQTT_PUBLISH_INTERVAL", "controllers.mqtt.publish_interval"},
		{"CONTROLLERS_MODBUS_UNIT_ID", "controllers.modbus.unit_id"},
		{"ACTUATOR_SOT_OFFSET_RANGE", "actuator.sot.offset_range"},
		{"ACTUATOR_MQTT_BROKER_URL", "actuator.mqtt.broker_url"},
		{"CONTROLLERS_HTTP", "controllers_http"}, // not enough parts -> fallback
		{"controllers_HTTP_addr", "controllers.http.addr"},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyTransform_FlatSections(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"REGULATOR_INTERVAL", "regulator.interval"},
		{"REGULATOR_NEUTRAL_OUTDOOR_TEMPERATURE", "regulator.neutral_outdoor_temperature"},
		{"THERMAL_R1", "thermal.r1"},
		{"WEIGHTS_ENERGY_PER_UNIT", "weights.energy_per_unit"},
		{"COMFORT_CEILING", "comfort.ceiling"},
		{"BOUNDS_MAX_DELTA", "bounds.max_delta"},
		{"FORECAST_PRICE_URL", "forecast.price_url"},
		{"STORE_DSN", "store.dsn"},
		{"REGULATOR", "regulator"}, // not enough parts -> passthrough
		{"THERMAL", "thermal"},
	}

	for _, tt := range tests {
		got := envKeyTransform(tt.in)
		if got != tt.want {
			t.Fatalf("envKeyTransform(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeviceID != "default" {
		t.Fatalf("DeviceID = %q, want default", cfg.DeviceID)
	}
	if cfg.Regulator.Interval != 15*time.Minute {
		t.Fatalf("Interval = %v, want 15m", cfg.Regulator.Interval)
	}
	if cfg.Regulator.Steps != 24 {
		t.Fatalf("Steps = %d, want 24", cfg.Regulator.Steps)
	}
	if !cfg.Controllers.HTTP.Enabled {
		t.Fatal("HTTP controller should be enabled when nothing else is")
	}
	if cfg.Actuator.SOT.Min != -40 || cfg.Actuator.SOT.Max != 22 {
		t.Fatalf("unexpected SOT defaults: %+v", cfg.Actuator.SOT)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Thermal.R1 != 0.5 {
		t.Fatalf("R1 = %v, want the default 0.5", cfg.Thermal.R1)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
device_id: pump1
regulator:
  interval: 30m
  steps: 12
thermal:
  r1: 0.4
comfort:
  target: 22
controllers:
  mqtt:
    enabled: true
    broker_url: tcp://broker:1883
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeviceID != "pump1" {
		t.Fatalf("DeviceID = %q, want pump1", cfg.DeviceID)
	}
	if cfg.Regulator.Interval != 30*time.Minute {
		t.Fatalf("Interval = %v, want 30m", cfg.Regulator.Interval)
	}
	if cfg.Regulator.Steps != 12 {
		t.Fatalf("Steps = %d, want 12", cfg.Regulator.Steps)
	}
	if cfg.Thermal.R1 != 0.4 {
		t.Fatalf("R1 = %v, want 0.4", cfg.Thermal.R1)
	}
	// Untouched keys keep their defaults.
	if cfg.Thermal.R2 != 2.0 {
		t.Fatalf("R2 = %v, want the default 2.0", cfg.Thermal.R2)
	}
	if cfg.Comfort.Target != 22 {
		t.Fatalf("Target = %v, want 22", cfg.Comfort.Target)
	}
	if !cfg.Controllers.MQTT.Enabled || cfg.Controllers.MQTT.BrokerURL != "tcp://broker:1883" {
		t.Fatalf("unexpected MQTT controller config: %+v", cfg.Controllers.MQTT)
	}
	// MQTT enabled in the file, so HTTP is not force-enabled.
	if cfg.Controllers.HTTP.Enabled {
		t.Fatal("HTTP should stay disabled when MQTT is enabled")
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KOMPROMISS_DEVICE_ID", "envpump")
	t.Setenv("KOMPROMISS_COMFORT_TARGET", "20")
	t.Setenv("KOMPROMISS_CONTROLLERS_HTTP_ADDR", ":9999")
	t.Setenv("KOMPROMISS_BOUNDS_MAX_DELTA", "1.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeviceID != "envpump" {
		t.Fatalf("DeviceID = %q, want envpump", cfg.DeviceID)
	}
	if cfg.Comfort.Target != 20 {
		t.Fatalf("Target = %v, want 20", cfg.Comfort.Target)
	}
	if cfg.Controllers.HTTP.Addr != ":9999" {
		t.Fatalf("Addr = %q, want :9999", cfg.Controllers.HTTP.Addr)
	}
	if cfg.Bounds.MaxDelta != 1.5 {
		t.Fatalf("MaxDelta = %v, want 1.5", cfg.Bounds.MaxDelta)
	}
}

func TestControllerConfigConversion(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	cc := cfg.ControllerConfig()
	if cc.Horizon.Steps != 24 || cc.Horizon.Dt != 15*time.Minute {
		t.Fatalf("unexpected horizon: %+v", cc.Horizon)
	}
	if cc.Weights.TargetTemperature != 21 || cc.Weights.ComfortFloor != 19 || cc.Weights.ComfortCeiling != 23 {
		t.Fatalf("comfort settings not carried into weights: %+v", cc.Weights)
	}
	if !cc.Strategy.Valid() {
		t.Fatalf("invalid strategy after conversion: %v", cc.Strategy)
	}
}
