package testutil

import "github.com/etnoy/kompromiss/internal/regulator"

// FakeRegulatorService is a reusable fake implementing ports.RegulatorService.
// Put ONLY what multiple test packages need here.
type FakeRegulatorService struct {
	S regulator.Snapshot

	SetEnabledCalled bool
	SetEnabledArg    bool

	SetTargetCalled bool
	SetTargetArg    float64
	SetTargetErr    error

	SetComfortBandCalled  bool
	SetComfortBandFloor   float64
	SetComfortBandCeiling float64
	SetComfortBandErr     error

	SetCostWeightsCalled bool
	SetCostWeightsArgs   [4]float64
	SetCostWeightsErr    error

	SetStrategyCalled bool
	SetStrategyArg    regulator.Strategy
	SetStrategyErr    error

	ReportIndoorCalled bool
	ReportIndoorArg    float64

	ReportMediumCalled bool
	ReportMediumArg    float64
}

func NewFakeRegulatorService() *FakeRegulatorService {
	return &FakeRegulatorService{
		S: regulator.Snapshot{
			Enabled:           true,
			Strategy:          regulator.StrategyMPC,
			TargetTemperature: 21,
			ComfortFloor:      19,
			ComfortCeiling:    23,
			WeightComfort:     1,
			WeightPrice:       0.5,
			WeightEffort:      0.1,
			WeightBand:        10,
			IndoorTemperature: 20.5,
			MediumTemperature: 28,
		},
	}
}

func (f *FakeRegulatorService) Get() regulator.Snapshot { return f.S }

func (f *FakeRegulatorService) SetEnabled(b bool) {
	f.SetEnabledCalled = true
	f.SetEnabledArg = b
	f.S.Enabled = b
}

func (f *FakeRegulatorService) SetTargetTemperature(v float64) error {
	f.SetTargetCalled = true
	f.SetTargetArg = v
	if f.SetTargetErr != nil {
		return f.SetTargetErr
	}
	f.S.TargetTemperature = v
	return nil
}

func (f *FakeRegulatorService) SetComfortBand(floor, ceiling float64) error {
	f.SetComfortBandCalled = true
	f.SetComfortBandFloor = floor
	f.SetComfortBandCeiling = ceiling
	if f.SetComfortBandErr != nil {
		return f.SetComfortBandErr
	}
	f.S.ComfortFloor = floor
	f.S.ComfortCeiling = ceiling
	return nil
}

func (f *FakeRegulatorService) SetCostWeights(comfort, price, effort, band float64) error {
	f.SetCostWeightsCalled = true
	f.SetCostWeightsArgs = [4]float64{comfort, price, effort, band}
	if f.SetCostWeightsErr != nil {
		return f.SetCostWeightsErr
	}
	f.S.WeightComfort = comfort
	f.S.WeightPrice = price
	f.S.WeightEffort = effort
	f.S.WeightBand = band
	return nil
}

func (f *FakeRegulatorService) SetStrategy(s regulator.Strategy) error {
	f.SetStrategyCalled = true
	f.SetStrategyArg = s
	if f.SetStrategyErr != nil {
		return f.SetStrategyErr
	}
	f.S.Strategy = s
	return nil
}

func (f *FakeRegulatorService) ReportIndoor(v float64) {
	f.ReportIndoorCalled = true
	f.ReportIndoorArg = v
	f.S.IndoorTemperature = v
}

func (f *FakeRegulatorService) ReportMedium(v float64) {
	f.ReportMediumCalled = true
	f.ReportMediumArg = v
	f.S.MediumTemperature = v
}
