package ports

import "github.com/etnoy/kompromiss/internal/regulator"

// RegulatorService is the control-plane port used by controllers (HTTP/MQTT/etc).
type RegulatorService interface {
	Get() regulator.Snapshot
	SetEnabled(bool)
	SetTargetTemperature(float64) error
	SetComfortBand(floor, ceiling float64) error
	SetCostWeights(comfort, price, effort, band float64) error
	SetStrategy(regulator.Strategy) error
}

// SensorSink receives live temperature readings arriving over a transport.
type SensorSink interface {
	ReportIndoor(float64)
	ReportMedium(float64)
}
