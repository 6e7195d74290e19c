package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/etnoy/kompromiss/cmd/app"
	"github.com/etnoy/kompromiss/internal/actuator"
	httpctrl "github.com/etnoy/kompromiss/internal/controllers/http"
	modbusctrl "github.com/etnoy/kompromiss/internal/controllers/modbus"
	mqttctrl "github.com/etnoy/kompromiss/internal/controllers/mqtt"
	"github.com/etnoy/kompromiss/internal/forecast"
	"github.com/etnoy/kompromiss/internal/regulator"
	"github.com/etnoy/kompromiss/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := app.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := log.Default()

	hub := regulator.NewSensorHub(2 * cfg.Regulator.Interval)

	act, closeAct, err := buildActuator(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer closeAct()

	forecasts := buildForecasts(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var ticks regulator.TickStore
	if cfg.Store.DSN != "" {
		pg, err := store.Open(cfg.Store.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal(err)
		}
		ticks = pg
	}

	ctrl, err := regulator.NewController(cfg.ControllerConfig(), regulator.Deps{
		Sensors:   hub,
		Forecasts: forecasts,
		Actuator:  act,
		Store:     ticks,
		Log:       logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	var wg sync.WaitGroup
	runCtrl := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("%s exited: %v", name, err)
				cancel()
			}
		}()
	}

	if cfg.Controllers.HTTP.Enabled {
		srv := httpctrl.New(ctrl, cfg.Controllers.HTTP.Addr, cfg.DeviceID)
		logger.Printf("http controller listening on %s", cfg.Controllers.HTTP.Addr)
		runCtrl("http", srv.Run)
	}
	if cfg.Controllers.MQTT.Enabled {
		mq, err := mqttctrl.New(ctrl, hub, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       cfg.Controllers.MQTT.BrokerURL,
			ClientID:        cfg.Controllers.MQTT.ClientID,
			BaseTopic:       cfg.Controllers.MQTT.BaseTopic,
			QoS:             cfg.Controllers.MQTT.QoS,
			RetainSnapshot:  cfg.Controllers.MQTT.RetainSnapshot,
			PublishInterval: cfg.Controllers.MQTT.PublishInterval,
			Username:        cfg.Controllers.MQTT.Username,
			Password:        cfg.Controllers.MQTT.Password,
		})
		if err != nil {
			log.Fatal(err)
		}
		runCtrl("mqtt", mq.Run)
	}
	if cfg.Controllers.Modbus.Enabled {
		mb, err := modbusctrl.New(ctrl, modbusctrl.Config{
			DeviceID: cfg.DeviceID,
			Addr:     cfg.Controllers.Modbus.Addr,
			UnitID:   cfg.Controllers.Modbus.UnitID,
		})
		if err != nil {
			log.Fatal(err)
		}
		runCtrl("modbus", mb.Run)
	}

	logger.Printf("kompromiss regulating every %s over %d steps", cfg.Regulator.Interval, cfg.Regulator.Steps)
	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("regulator exited: %v", err)
	}
	cancel()
	wg.Wait()
}

func buildActuator(cfg app.Config, logger *log.Logger) (regulator.Actuator, func(), error) {
	switch cfg.Actuator.Kind {
	case "mqtt":
		a, err := actuator.NewMQTT(cfg.ActuatorMQTT(), cfg.SOT())
		if err != nil {
			return nil, nil, err
		}
		if err := a.Connect(); err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	case "modbus":
		a, err := actuator.NewModbus(cfg.ActuatorModbus(), cfg.SOT())
		if err != nil {
			return nil, nil, err
		}
		if err := a.Connect(); err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	default:
		a, err := actuator.NewLog(cfg.SOT(), logger)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {}, nil
	}
}

func buildForecasts(cfg app.Config, logger *log.Logger) regulator.ForecastProvider {
	if cfg.Forecast.PriceURL == "" || cfg.Forecast.WeatherURL == "" {
		logger.Printf("forecast: no upstream configured, using static outdoor=%.1f price=%.2f",
			cfg.Forecast.StaticOutdoor, cfg.Forecast.StaticPrice)
		return forecast.NewStaticConstant(cfg.Forecast.StaticOutdoor, cfg.Forecast.StaticPrice, cfg.Regulator.Steps)
	}
	prices := forecast.NewPriceClient(cfg.Forecast.PriceURL, cfg.Forecast.PriceArea, cfg.Forecast.Currency)
	weather := forecast.NewWeatherClient(cfg.Forecast.WeatherURL, cfg.Forecast.UserAgent,
		cfg.Forecast.Latitude, cfg.Forecast.Longitude)
	return forecast.NewProvider(prices, weather, cfg.Regulator.Interval, logger)
}
