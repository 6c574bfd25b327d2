package external

import "time"

// BmsAlarms mirrors the BMS's active alarm bits that the DPC must respect
// regardless of operator mode overrides.
type BmsAlarms struct {
	OverVoltage       bool
	OverTemperature   bool
	UnderTemperature  bool
	OverCurrentCharge bool
}

// Bms is the battery management system surface consumed by the signal
// aggregator (D), the threshold logic (F), and the charger engine (B).
type Bms interface {
	Initialized() bool

	// Voltage and its age; age beyond a freshness window means the reading
	// must not be trusted (§4.5: "SoC is trusted only if ... <= 60s old"
	// applies equally to voltage freshness in the aggregator).
	Voltage() (volts float64, age time.Duration)
	Soc() (percent float64, age time.Duration)

	ChargeEnabled() bool
	Alarms() BmsAlarms
	ChargeImmediately() bool

	RecommendedChargeVoltage() float64
	RecommendedChargeCurrent() float64

	IsChargeTemperatureValid() bool
}

// BatterySnapshot is the DPC's own borrowed, point-in-time view of the BMS,
// built by calling every Bms accessor once per tick so that a single
// consistent set of values is used throughout that tick (§5: "readers never
// observe partial updates to multi-field structures").
type BatterySnapshot struct {
	Voltage    float64
	VoltageAge time.Duration
	Soc        float64
	SocAge     time.Duration

	ChargeEnabled     bool
	Alarms            BmsAlarms
	ChargeImmediately bool

	RecommendedChargeVoltage float64
	RecommendedChargeCurrent float64
	ChargeTemperatureValid   bool

	Initialized bool
}

// SnapshotBms takes a consistent snapshot of a Bms at the current instant.
func SnapshotBms(b Bms) BatterySnapshot {
	voltage, voltageAge := b.Voltage()
	soc, socAge := b.Soc()

	return BatterySnapshot{
		Voltage:                  voltage,
		VoltageAge:               voltageAge,
		Soc:                      soc,
		SocAge:                   socAge,
		ChargeEnabled:            b.ChargeEnabled(),
		Alarms:                   b.Alarms(),
		ChargeImmediately:        b.ChargeImmediately(),
		RecommendedChargeVoltage: b.RecommendedChargeVoltage(),
		RecommendedChargeCurrent: b.RecommendedChargeCurrent(),
		ChargeTemperatureValid:   b.IsChargeTemperatureValid(),
		Initialized:              b.Initialized(),
	}
}
