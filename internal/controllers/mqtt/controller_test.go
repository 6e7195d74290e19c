package mqttctrl

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/etnoy/kompromiss/internal/regulator"
	"github.com/etnoy/kompromiss/internal/testutil"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeToken struct {
	err  error
	done chan struct{}
}

func (t fakeToken) Done() <-chan struct{} {
	if t.done == nil {
		t.done = make(chan struct{})
		close(t.done)
	}
	return t.done
}

func (t fakeToken) Wait() bool                       { return true }
func (t fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t fakeToken) Error() error                     { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	publishes []publishCall
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return fakeToken{} }
func (c *fakeClient) Disconnect(_ uint)      {}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	default:
		tmp, _ := json.Marshal(v)
		b = tmp
	}
	c.publishes = append(c.publishes, publishCall{
		topic: topic, qos: qos, retain: retained, payload: b,
	})
	return fakeToken{}
}
func (c *fakeClient) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) Unsubscribe(_ ...string) mqtt.Token       { return fakeToken{} }
func (c *fakeClient) AddRoute(_ string, _ mqtt.MessageHandler) {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader  { return mqtt.ClientOptionsReader{} }

// ---- tests ----

func newTestController(t *testing.T, cfg Config) (*Controller, *testutil.FakeRegulatorService, *fakeClient) {
	t.Helper()
	svc := testutil.NewFakeRegulatorService()
	c, err := New(svc, svc, cfg)
	if err != nil {
		t.Fatal(err)
	}
	fc := &fakeClient{}
	c.client = fc
	return c, svc, fc
}

func TestNewDefaults(t *testing.T) {
	c, _, _ := newTestController(t, Config{DeviceID: "pump1"})

	if c.cfg.BrokerURL != "tcp://localhost:1883" {
		t.Fatalf("expected default BrokerURL, got %q", c.cfg.BrokerURL)
	}
	if c.cfg.BaseTopic != "kompromiss/pump1" {
		t.Fatalf("expected default BaseTopic, got %q", c.cfg.BaseTopic)
	}
	if c.cfg.ClientID != "kompromiss-pump1" {
		t.Fatalf("expected default ClientID, got %q", c.cfg.ClientID)
	}
	if c.cfg.PublishInterval != 1*time.Second {
		t.Fatalf("expected default PublishInterval, got %v", c.cfg.PublishInterval)
	}
}

func TestNewValidation(t *testing.T) {
	svc := testutil.NewFakeRegulatorService()

	if _, err := New(svc, svc, Config{}); err == nil {
		t.Fatal("expected error when DeviceID missing")
	}
	if _, err := New(svc, svc, Config{DeviceID: "x", QoS: 2}); err == nil {
		t.Fatal("expected error when QoS > 1")
	}
}

func TestTopicJoin(t *testing.T) {
	c, _, _ := newTestController(t, Config{DeviceID: "pump1", BaseTopic: "kompromiss/pump1/"})
	if got := c.topic("snapshot"); got != "kompromiss/pump1/snapshot" {
		t.Fatalf("expected topic without double slashes, got %q", got)
	}
}

func TestDecodeValueStrict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		v, err := decodeValueStrict[float64]([]byte(`{"value": 12.5}`))
		if err != nil {
			t.Fatal(err)
		}
		if v != 12.5 {
			t.Fatalf("expected 12.5, got %v", v)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		if _, err := decodeValueStrict[bool]([]byte(`{}`)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		if _, err := decodeValueStrict[string]([]byte(`{"value":"mpc","extra":1}`)); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := decodeValueStrict[string]([]byte(`{"value":`)); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestOnMessage_IgnoresWrongPrefix(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "otherprefix/set/enabled",
		payload: []byte(`{"value":true}`),
	})

	if svc.SetEnabledCalled {
		t.Fatal("expected SetEnabled not called")
	}
}

func TestOnMessage_Enabled(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/enabled",
		payload: []byte(`{"value":false}`),
	})

	if !svc.SetEnabledCalled || svc.SetEnabledArg != false {
		t.Fatalf("expected SetEnabled(false), got called=%v arg=%v", svc.SetEnabledCalled, svc.SetEnabledArg)
	}
}

func TestOnMessage_TargetTemperature(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/target_temperature",
		payload: []byte(`{"value":22.5}`),
	})

	if !svc.SetTargetCalled || svc.SetTargetArg != 22.5 {
		t.Fatalf("expected SetTargetTemperature(22.5), got called=%v arg=%v", svc.SetTargetCalled, svc.SetTargetArg)
	}
}

func TestOnMessage_ComfortFloorKeepsCeiling(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/comfort_floor",
		payload: []byte(`{"value":18}`),
	})

	if !svc.SetComfortBandCalled || svc.SetComfortBandFloor != 18 || svc.SetComfortBandCeiling != 23 {
		t.Fatalf("expected SetComfortBand(18,23), got called=%v floor=%v ceiling=%v",
			svc.SetComfortBandCalled, svc.SetComfortBandFloor, svc.SetComfortBandCeiling)
	}
}

func TestOnMessage_ComfortCeilingKeepsFloor(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/comfort_ceiling",
		payload: []byte(`{"value":24}`),
	})

	if !svc.SetComfortBandCalled || svc.SetComfortBandFloor != 19 || svc.SetComfortBandCeiling != 24 {
		t.Fatalf("expected SetComfortBand(19,24), got called=%v floor=%v ceiling=%v",
			svc.SetComfortBandCalled, svc.SetComfortBandFloor, svc.SetComfortBandCeiling)
	}
}

func TestOnMessage_WeightUpdatesSingleWeight(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/weight_effort",
		payload: []byte(`{"value":0.7}`),
	})

	if !svc.SetCostWeightsCalled {
		t.Fatal("expected SetCostWeights called")
	}
	want := [4]float64{1, 0.5, 0.7, 10}
	if svc.SetCostWeightsArgs != want {
		t.Fatalf("expected weights %v, got %v", want, svc.SetCostWeightsArgs)
	}
}

func TestOnMessage_Strategy(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/strategy",
		payload: []byte(`{"value":"passthrough"}`),
	})

	if !svc.SetStrategyCalled || svc.SetStrategyArg != regulator.StrategyPassthrough {
		t.Fatalf("expected SetStrategy(passthrough), got called=%v arg=%v", svc.SetStrategyCalled, svc.SetStrategyArg)
	}
}

func TestOnMessage_StrategyInvalid_DoesNotCallService(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/strategy",
		payload: []byte(`{"value":"weird"}`),
	})

	if svc.SetStrategyCalled {
		t.Fatal("expected SetStrategy not called")
	}
}

func TestOnSensor_FeedsReadings(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onSensor(nil, fakeMessage{
		topic:   "kompromiss/pump1/sensors/indoor_temperature",
		payload: []byte(`20.7`),
	})
	c.onSensor(nil, fakeMessage{
		topic:   "kompromiss/pump1/sensors/medium_temperature",
		payload: []byte(` 31.5 `),
	})

	if !svc.ReportIndoorCalled || svc.ReportIndoorArg != 20.7 {
		t.Fatalf("expected ReportIndoor(20.7), got called=%v arg=%v", svc.ReportIndoorCalled, svc.ReportIndoorArg)
	}
	if !svc.ReportMediumCalled || svc.ReportMediumArg != 31.5 {
		t.Fatalf("expected ReportMedium(31.5), got called=%v arg=%v", svc.ReportMediumCalled, svc.ReportMediumArg)
	}
}

func TestOnSensor_GarbagePayloadIgnored(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})

	c.onSensor(nil, fakeMessage{
		topic:   "kompromiss/pump1/sensors/indoor_temperature",
		payload: []byte(`unavailable`),
	})

	if svc.ReportIndoorCalled {
		t.Fatal("expected ReportIndoor not called")
	}
}

func TestPublishSnapshot_PublishesJSON(t *testing.T) {
	c, _, fc := newTestController(t, Config{DeviceID: "pump1", QoS: 1, RetainSnapshot: true})

	c.publishSnapshot()

	if len(fc.publishes) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(fc.publishes))
	}

	p := fc.publishes[0]
	if p.topic != "kompromiss/pump1/snapshot" {
		t.Fatalf("expected snapshot topic, got %q", p.topic)
	}
	if p.qos != 1 || p.retain != true {
		t.Fatalf("expected qos=1 retain=true, got qos=%d retain=%v", p.qos, p.retain)
	}

	var got map[string]any
	if err := json.Unmarshal(p.payload, &got); err != nil {
		t.Fatalf("invalid published json: %v payload=%s", err, string(p.payload))
	}
	if got["strategy"] != "mpc" {
		t.Fatalf("expected strategy=mpc, got %v", got["strategy"])
	}
	if got["target_temperature"] != 21.0 {
		t.Fatalf("expected target_temperature=21, got %v", got["target_temperature"])
	}
}

func TestOnMessage_ServiceError_IsIgnored(t *testing.T) {
	c, svc, _ := newTestController(t, Config{DeviceID: "pump1"})
	svc.SetTargetErr = errors.New("boom")

	c.onMessage(nil, fakeMessage{
		topic:   "kompromiss/pump1/set/target_temperature",
		payload: []byte(`{"value":25}`),
	})

	if !svc.SetTargetCalled {
		t.Fatal("expected SetTargetTemperature called")
	}
}
