// Package aggregator fuses the battery voltage readings published by
// competing sources (BMS, solar MPPT, inverter DC channel) into the single
// load-corrected voltage that the threshold logic (F) and the dynamic power
// limiter (G) reason about.
package aggregator

import (
	"time"

	"github.com/balcony-power/dpc/external"
)

const socFreshnessWindow = 60 * time.Second

// SourceLabel names which collaborator a fused voltage reading came from,
// for logging.
type SourceLabel string

const (
	SourceBms      SourceLabel = "bms"
	SourceMppt     SourceLabel = "mppt"
	SourceInverter SourceLabel = "inverter_dc"
	SourceNone     SourceLabel = "none"
)

// Aggregator fuses the multiple published views of the battery into the
// values the rest of the DPC needs once per tick.
type Aggregator struct {
	// CorrectionFactor scales AC power into a voltage-drop estimate for the
	// load-corrected voltage calculation (§4.5).
	CorrectionFactor float64
}

func New(correctionFactor float64) *Aggregator {
	return &Aggregator{CorrectionFactor: correctionFactor}
}

// BatteryVoltage returns the fused battery voltage, preferring the BMS (if
// its reading is fresh), then the MPPT output voltage, then an inverter's DC
// channel voltage (§4.5).
func (a *Aggregator) BatteryVoltage(bms external.Bms, mppt external.Mppt, inverters []external.Inverter) (volts float64, source SourceLabel) {
	if bms != nil {
		if v, age := bms.Voltage(); v > 0 && age <= socFreshnessWindow {
			return v, SourceBms
		}
	}

	if mppt != nil && mppt.IsDataValid() {
		if v := mppt.OutputVoltage(); v > 0 {
			return v, SourceMppt
		}
	}

	for _, inv := range inverters {
		if inv == nil || !inv.IsReachable() {
			continue
		}
		if inv.NumChannels(external.ChannelTypeDC) == 0 {
			continue
		}
		if v := inv.ChannelFieldValue(external.ChannelTypeDC, 0, external.FieldUDC); v > 0 {
			return v, SourceInverter
		}
	}

	return 0, SourceNone
}

// LoadCorrectedVoltage applies the AC-power correction described in §4.5:
// `battery_voltage + ac_power * correction_factor`.
func (a *Aggregator) LoadCorrectedVoltage(bms external.Bms, mppt external.Mppt, inverters []external.Inverter, acPowerW float64) (volts float64, source SourceLabel) {
	base, source := a.BatteryVoltage(bms, mppt, inverters)
	if source == SourceNone {
		return 0, source
	}
	return base + acPowerW*a.CorrectionFactor, source
}

// TrustedSoc returns the BMS's reported SoC only if it is fresh enough to
// trust (§4.5: "SoC is trusted only if the BMS publishes a value <= 60s old").
func (a *Aggregator) TrustedSoc(bms external.Bms) (percent float64, ok bool) {
	if bms == nil {
		return 0, false
	}
	soc, age := bms.Soc()
	if age > socFreshnessWindow {
		return 0, false
	}
	return soc, true
}
