// Command dpc runs the dynamic power controller as a standalone process:
// it loads the persisted config, wires up the physical buses and GPIO
// lines, and runs the controller until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/balcony-power/dpc/bus"
	"github.com/balcony-power/dpc/charger"
	"github.com/balcony-power/dpc/config"
	"github.com/balcony-power/dpc/controller"
	"github.com/balcony-power/dpc/dcswitch"
	"github.com/balcony-power/dpc/gpio"
	"github.com/balcony-power/dpc/limiter"
	"github.com/balcony-power/dpc/modelogic"
	"github.com/balcony-power/dpc/zeroexport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var configFilePath string
	flag.StringVar(&configFilePath, "f", "./config.json", "Specify config file path")
	flag.Parse()

	slog.Info("starting", "config_file", configFilePath)

	cfg, err := config.Read(configFilePath)
	if err != nil {
		slog.Error("failed to read config", "error", err)
		os.Exit(1)
	}

	if cfg.Logging.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())

	lines, err := buildLines(cfg.Gpio)
	if err != nil {
		slog.Error("failed to set up gpio lines", "error", err)
		os.Exit(1)
	}

	var chargerTransport charger.Transport
	if cfg.Charger.Enabled {
		if cfg.Bus.Can == nil {
			slog.Error("charger enabled but no can bus configured")
			os.Exit(1)
		}
		canBus, err := bus.NewCanBus(cfg.Bus.Can.Interface, time.Duration(cfg.Bus.Can.MinInterFrameGapMs)*time.Millisecond)
		if err != nil {
			slog.Error("failed to open can bus", "error", err)
			os.Exit(1)
		}
		if err := canBus.SetNonBlocking(); err != nil {
			slog.Error("failed to set can bus non-blocking", "error", err)
			os.Exit(1)
		}
		chargerTransport = canBus
	}

	// cfg.Bus.Rs485, if configured, is reserved for a future Modbus-connected
	// external device (meter or BMS); nothing in this process consumes it
	// yet, since those adaptors live outside this module's scope.

	// Bms, Mppt, DayPeriod, Meter, and the inverters themselves arrive over
	// a radio link that is a consumed interface (§1 Non-goals); a deployment
	// supplies concrete external.* implementations here once that transport
	// exists. Until then the controller runs with those components disabled.
	realCollab := controller.Collaborators{
		Lines:            lines,
		ChargerTransport: chargerTransport,
	}

	ctrlCfg := controller.Config{
		Charger: charger.Config{
			Flavor:                                flavorFromString(cfg.Charger.Flavor),
			DeviceID:                              cfg.Charger.DeviceID,
			Model:                                 cfg.Charger.Model,
			PollInterval:                          time.Duration(cfg.Charger.PollIntervalMs) * time.Millisecond,
			Hysteresis:                            cfg.Charger.Hysteresis,
			ImmediateChargeRecoveryOffsetPercent:  cfg.Charger.ImmediateChargeRecoveryOffsetPercent,
			ResponseTimeout:                       time.Duration(cfg.Charger.ResponseTimeoutMs) * time.Millisecond,
		},
		Threshold: modelogic.Thresholds{
			SocStart:        cfg.Threshold.SocStart,
			SocStop:         cfg.Threshold.SocStop,
			VStart:          cfg.Threshold.VStart,
			VStop:           cfg.Threshold.VStop,
			FspEntrySoc:     cfg.Threshold.FspEntrySoc,
			FspExitSoc:      cfg.Threshold.FspExitSoc,
			FspEntryV:       cfg.Threshold.FspEntryV,
			FspExitV:        cfg.Threshold.FspExitV,
			NightUseEnabled: cfg.Threshold.NightUseEnabled,
			NightUseWindows: cfg.Threshold.NightUseWindows,
		},
		DcSwitch: dcswitch.Config{},
		Limiter: limiter.Config{
			LowerLimitW:                 cfg.Limiter.LowerLimitW,
			UpperLimitW:                 cfg.Limiter.UpperLimitW,
			HysteresisW:                 cfg.Limiter.HysteresisW,
			TargetConsumptionW:          cfg.Limiter.TargetConsumptionW,
			BaseLoadFallbackW:           cfg.Limiter.BaseLoadFallbackW,
			MeterIncludesInverterOutput: cfg.Limiter.MeterIncludesInverterOutput,
			IsInverterSolarPowered:      cfg.Limiter.IsInverterSolarPowered,
			SolarPassthroughLossFactor:  cfg.Limiter.SolarPassthroughLossFactor,
			UseOverscaling:              cfg.Limiter.UseOverscaling,
			RestartHour:                 cfg.Limiter.RestartHour,
			Backoff: limiter.BackoffConfig{
				DefaultMs: cfg.Limiter.BackoffDefaultMs,
				MaxMs:     cfg.Limiter.BackoffMaxMs,
			},
		},
		ZeroExport: zeroexport.Config{
			MaxGridW:           cfg.ZeroExport.MaxGridW,
			MinimumLimitPct:    cfg.ZeroExport.MinimumLimitPct,
			PowerHysteresisPct: cfg.ZeroExport.PowerHysteresisPct,
			TnSeconds:          cfg.ZeroExport.TnSeconds,
		},
		ZeroExportSerials: cfg.ZeroExport.Serials,
	}

	dpc := controller.New(ctrlCfg, realCollab, logger)
	go dpc.Run(ctx)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan

	cancel()
	time.Sleep(100 * time.Millisecond)

	slog.Info("exiting")
}

func buildLines(cfg config.GpioConfig) (gpio.Lines, error) {
	precharge, err := gpio.NewSysfsLine(mustPinNumber(cfg.PrechargePin), true)
	if err != nil {
		return gpio.Lines{}, fmt.Errorf("precharge line: %w", err)
	}
	main_, err := gpio.NewSysfsLine(mustPinNumber(cfg.MainPin), true)
	if err != nil {
		return gpio.Lines{}, fmt.Errorf("main line: %w", err)
	}

	lines := gpio.Lines{Precharge: precharge, Main: main_}

	if cfg.ChargerPin != "" {
		chargerLine, err := gpio.NewSysfsLine(mustPinNumber(cfg.ChargerPin), true)
		if err != nil {
			return gpio.Lines{}, fmt.Errorf("charger line: %w", err)
		}
		lines.Charger = chargerLine
	}

	return lines, nil
}

// mustPinNumber extracts the trailing digits from a pin name like "GPIO17".
func mustPinNumber(name string) int {
	digits := strings.TrimLeft(name, "GPIOgpio")
	n, _ := strconv.Atoi(digits)
	return n
}

func flavorFromString(s string) charger.Flavor {
	if s == "rectifier" {
		return charger.FlavorHuawei
	}
	return charger.FlavorPSU
}
