// Package config loads the DPC's persisted settings from a JSON file into
// the nested, per-concern structs each component's constructor expects.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/balcony-power/dpc/timeutils"
)

// Rs485Config describes the RS-485 bus parameters (§4.1, §6).
type Rs485Config struct {
	Device            string `json:"device"`
	BaudRate          int    `json:"baudRate"`
	DataBits          int    `json:"dataBits"`
	StopBits          int    `json:"stopBits"`
	Parity            string `json:"parity"`
	ResponseTimeoutMs int    `json:"responseTimeoutMs"`
	TurnaroundMs      int    `json:"turnaroundMs"`
}

// CanConfig describes the CAN interface parameters (§4.1, §6).
type CanConfig struct {
	Interface          string `json:"interface"`
	MinInterFrameGapMs int    `json:"minInterFrameGapMs"`
}

// BusConfig selects and configures whichever physical bus the charger
// flavour in use requires.
type BusConfig struct {
	Rs485 *Rs485Config `json:"rs485"`
	Can   *CanConfig   `json:"can"`
}

// GpioConfig names the three output lines the DC power switch sequencer
// drives (§6: "two active-low MOSFET control lines... plus an optional
// charger-power enable").
type GpioConfig struct {
	PrechargePin string `json:"prechargePin"`
	MainPin      string `json:"mainPin"`
	ChargerPin   string `json:"chargerPin,omitempty"`
}

// ChargerConfig configures the automatic charger engine (B).
type ChargerConfig struct {
	Enabled        bool    `json:"enabled"`
	Flavor         string  `json:"flavor"` // "rectifier" or "psu"
	DeviceID       uint8   `json:"deviceId"`
	Model          string  `json:"model"`
	PollIntervalMs int     `json:"pollIntervalMs"`
	Hysteresis     float64 `json:"hysteresis"`

	// ImmediateChargeRecoveryOffsetPercent is how far below the start
	// threshold SoC must recover before an immediate-charge override
	// clears (SPEC_FULL.md §3).
	ImmediateChargeRecoveryOffsetPercent float64 `json:"immediateChargeRecoveryOffsetPercent"`

	ResponseTimeoutMs int `json:"responseTimeoutMs"`
}

// ThresholdConfig configures the start/stop, FSP and night-use logic
// (F, §4.5).
type ThresholdConfig struct {
	SocStart float64 `json:"socStart"`
	SocStop  float64 `json:"socStop"`
	VStart   float64 `json:"vStart"`
	VStop    float64 `json:"vStop"`

	FspEntrySoc float64 `json:"fspEntrySoc"`
	FspExitSoc  float64 `json:"fspExitSoc"`
	FspEntryV   float64 `json:"fspEntryV"`
	FspExitV    float64 `json:"fspExitV"`

	NightUseEnabled bool `json:"nightUseEnabled"`

	// NightUseWindows restricts the night-use override to these recurring
	// clock-time windows; leave empty to apply it whenever solar is zero.
	NightUseWindows []timeutils.DayedPeriod `json:"nightUseWindows"`
}

// LimiterConfig configures the dynamic power limiter (G, §4.6).
type LimiterConfig struct {
	LowerLimitW float64 `json:"lowerLimitW"`
	UpperLimitW float64 `json:"upperLimitW"`
	HysteresisW float64 `json:"hysteresisW"`

	TargetConsumptionW          float64 `json:"targetConsumptionW"`
	BaseLoadFallbackW           float64 `json:"baseLoadFallbackW"`
	MeterIncludesInverterOutput bool    `json:"meterIncludesInverterOutput"`

	IsInverterSolarPowered     bool    `json:"isInverterSolarPowered"`
	SolarPassthroughLossFactor float64 `json:"solarPassthroughLossFactor"`
	UseOverscaling             bool    `json:"useOverscaling"`

	// RestartHour is the local wall-clock hour (0-23) at which the
	// inverter is periodically restarted, or -1 to disable.
	RestartHour int `json:"restartHour"`

	BackoffDefaultMs int64 `json:"backoffDefaultMs"`
	BackoffMaxMs     int64 `json:"backoffMaxMs"`
}

// ZeroExportConfig configures the zero-export PI regulator (H, §4.7).
type ZeroExportConfig struct {
	Enabled            bool     `json:"enabled"`
	Serials            []string `json:"serials"`
	MaxGridW           float64  `json:"maxGridW"`
	MinimumLimitPct    float64  `json:"minimumLimitPct"`
	PowerHysteresisPct float64  `json:"powerHysteresisPct"`
	TnSeconds          float64  `json:"tnSeconds"`
}

// InverterConfig names the primary inverter the limiter (G) drives.
type InverterConfig struct {
	Serial string `json:"serial"`
}

// LoggingConfig controls verbosity (§6: "verbose-logging flag").
type LoggingConfig struct {
	Verbose bool `json:"verbose"`
}

// Config is the root of the persisted settings file.
type Config struct {
	Bus        BusConfig        `json:"bus"`
	Gpio       GpioConfig       `json:"gpio"`
	Charger    ChargerConfig    `json:"charger"`
	Threshold  ThresholdConfig  `json:"threshold"`
	Limiter    LimiterConfig    `json:"limiter"`
	ZeroExport ZeroExportConfig `json:"zeroExport"`
	Inverter   InverterConfig   `json:"inverter"`
	Logging    LoggingConfig    `json:"logging"`
}

// Read loads and parses the config file at path.
func Read(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}
