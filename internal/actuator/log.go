package actuator

import (
	"context"
	"log"

	"github.com/etnoy/kompromiss/internal/regulator"
)

// Log writes the mapped SOT to the process log instead of a device. Useful
// for dry runs and as the default before a transport is configured.
type Log struct {
	sot SOTConfig
	log *log.Logger
}

func NewLog(sot SOTConfig, logger *log.Logger) (*Log, error) {
	if err := sot.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Log{sot: sot, log: logger}, nil
}

func (a *Log) Apply(_ context.Context, cmd regulator.Command) error {
	sot := a.sot.Map(cmd.Heat, cmd.OutdoorTemperature)
	a.log.Printf("actuator: heat=%.3f outdoor=%.2f sot=%.2f predicted_indoor=%.2f",
		cmd.Heat, cmd.OutdoorTemperature, sot, cmd.PredictedIndoor)
	return nil
}
