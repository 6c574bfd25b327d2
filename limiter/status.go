// Package limiter computes the AC power limit the inverter should target
// each tick, from meter reading, solar availability, base load, and
// per-channel shading compensation (§4.6).
package limiter

// StatusCode is the closed set of reasons the limiter reports each tick,
// propagated into the error-handling design (§7).
type StatusCode int

const (
	Initializing StatusCode = iota
	DisabledByConfig
	DisabledByMqtt
	WaitingForValidTimestamp
	PowerMeterPending
	InverterInvalid
	InverterChanged
	InverterOffline
	InverterCommandsDisabled
	InverterLimitPending
	InverterPowerCmdPending
	InverterDevInfoPending
	InverterStatsPending
	CalculatedLimitBelowMinLimit
	UnconditionalSolarPassthrough
	NoVeDirect
	NoEnergy
	ChargerActive
	Stable
	TemperatureRange
	BatteryNotInitialized
	DisconnectFromBattery
)

func (s StatusCode) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case DisabledByConfig:
		return "disabled_by_config"
	case DisabledByMqtt:
		return "disabled_by_mqtt"
	case WaitingForValidTimestamp:
		return "waiting_for_valid_timestamp"
	case PowerMeterPending:
		return "power_meter_pending"
	case InverterInvalid:
		return "inverter_invalid"
	case InverterChanged:
		return "inverter_changed"
	case InverterOffline:
		return "inverter_offline"
	case InverterCommandsDisabled:
		return "inverter_commands_disabled"
	case InverterLimitPending:
		return "inverter_limit_pending"
	case InverterPowerCmdPending:
		return "inverter_power_cmd_pending"
	case InverterDevInfoPending:
		return "inverter_dev_info_pending"
	case InverterStatsPending:
		return "inverter_stats_pending"
	case CalculatedLimitBelowMinLimit:
		return "calculated_limit_below_min_limit"
	case UnconditionalSolarPassthrough:
		return "unconditional_solar_passthrough"
	case NoVeDirect:
		return "no_ve_direct"
	case NoEnergy:
		return "no_energy"
	case ChargerActive:
		return "charger_active"
	case Stable:
		return "stable"
	case TemperatureRange:
		return "temperature_range"
	case BatteryNotInitialized:
		return "battery_not_initialized"
	case DisconnectFromBattery:
		return "disconnect_from_battery"
	default:
		return "unknown"
	}
}

// DpcDecision is the limiter's output for one tick (§3: "status code from a
// closed set; new_limit_watts or shutdown; reason tag").
type DpcDecision struct {
	Status    StatusCode
	NewLimitW float64
	Shutdown  bool
	Reason    string
}
