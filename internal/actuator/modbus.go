package actuator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goburrow/modbus"

	"github.com/etnoy/kompromiss/internal/regulator"
)

var ErrMissingModbusAddr = errors.New("modbus: address is required")

// Temperatures travel as signed hundredths of a degree in one register.
const temperatureScale = 100

// ModbusConfig configures the Modbus TCP command channel to the heat pump.
type ModbusConfig struct {
	Addr     string
	UnitID   byte
	Register uint16 // holding register receiving the SOT
	Timeout  time.Duration
}

// Modbus writes the mapped SOT into a heat pump holding register.
type Modbus struct {
	cfg     ModbusConfig
	sot     SOTConfig
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func NewModbus(cfg ModbusConfig, sot SOTConfig) (*Modbus, error) {
	if err := sot.Validate(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		return nil, ErrMissingModbusAddr
	}
	if cfg.UnitID == 0 {
		cfg.UnitID = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Modbus{cfg: cfg, sot: sot}, nil
}

// Connect dials the heat pump. Must be called before Apply.
func (a *Modbus) Connect() error {
	handler := modbus.NewTCPClientHandler(a.cfg.Addr)
	handler.Timeout = a.cfg.Timeout
	handler.SlaveId = a.cfg.UnitID
	if err := handler.Connect(); err != nil {
		return fmt.Errorf("modbus connect %s: %w", a.cfg.Addr, err)
	}
	a.handler = handler
	a.client = modbus.NewClient(handler)
	return nil
}

func (a *Modbus) Close() {
	if a.handler != nil {
		_ = a.handler.Close()
	}
}

func (a *Modbus) Apply(_ context.Context, cmd regulator.Command) error {
	sot := a.sot.Map(cmd.Heat, cmd.OutdoorTemperature)
	if _, err := a.client.WriteSingleRegister(a.cfg.Register, EncodeTemp(sot)); err != nil {
		return fmt.Errorf("modbus write register %d: %w", a.cfg.Register, err)
	}
	return nil
}

func EncodeTemp(v float64) uint16 {
	r := int(math.Round(v * temperatureScale))
	if r > math.MaxInt16 {
		r = math.MaxInt16
	}
	if r < math.MinInt16 {
		r = math.MinInt16
	}
	return uint16(int16(r))
}

func DecodeTemp(u uint16) float64 {
	return float64(int16(u)) / temperatureScale
}
