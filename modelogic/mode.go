// Package modelogic evaluates the operator mode, the SoC/voltage start-stop
// hysteresis, the "full solar passthrough" latch, and the night-use
// override (§4.5).
package modelogic

import (
	"time"

	"github.com/balcony-power/dpc/timeutils"
)

// OperatorMode selects the DPC's top-level behaviour.
type OperatorMode int

const (
	ModeNormal OperatorMode = iota
	ModeDisabled
	ModeUnconditionalFullSolarPassthrough
)

// Thresholds holds the configured hysteresis bands (§6: "start/stop
// thresholds, FSP entry/exit thresholds").
type Thresholds struct {
	SocStart float64
	SocStop  float64
	VStart   float64
	VStop    float64

	FspEntrySoc float64
	FspExitSoc  float64
	FspEntryV   float64
	FspExitV    float64

	NightUseEnabled bool

	// NightUseWindows restricts the night-use override (§4.5) to these
	// recurring clock-time windows, e.g. 18:00-06:00 split as two
	// DayedPeriods either side of midnight (ClockTimePeriod doesn't span a
	// midnight boundary). Empty means no restriction: the override applies
	// whenever solar is zero, as in the original firmware.
	NightUseWindows []timeutils.DayedPeriod
}

// BatteryAlarms mirrors the alarm bits that override every other decision.
type BatteryAlarms struct {
	OverVoltage      bool
	OverTemperature  bool
	UnderTemperature bool
}

func (a BatteryAlarms) Any() bool {
	return a.OverVoltage || a.OverTemperature || a.UnderTemperature
}

// Logic evaluates the start/stop and FSP latches from tick to tick. Its
// only state is those two latches, so neither chatters at mid-SoC.
type Logic struct {
	thresholds Thresholds

	dischargePermitted bool
	fspLatched         bool
}

func New(thresholds Thresholds) *Logic {
	return &Logic{thresholds: thresholds}
}

// Input is the fused, per-tick view the logic reasons over.
type Input struct {
	Mode OperatorMode

	SocValid bool
	Soc      float64

	LoadCorrectedVoltage float64

	SolarPowerW float64
	Alarms      BatteryAlarms

	// Now is only consulted by nightUseOverride when NightUseWindows is
	// non-empty; it may be left zero otherwise.
	Now time.Time
}

// Result is what the dynamic power limiter (G) and the DC switch sequencer
// (E) need from one evaluation.
type Result struct {
	DischargePermitted   bool
	FullSolarPassthrough bool

	// BelowStopThreshold reports whether the SoC/voltage metric is strictly
	// below the stop threshold right now, independent of the start/stop
	// hysteresis latch in DischargePermitted. The limiter (G) uses this,
	// not DischargePermitted, to decide whether solar power may still flow
	// for a battery-powered inverter between the stop and start thresholds
	// (§4.6 step 11; ground truth: isBelowStopThreshold() in the original).
	BelowStopThreshold bool
}

// Evaluate runs one tick of the threshold and mode logic.
func (l *Logic) Evaluate(in Input) Result {
	belowStop := l.belowStopThreshold(in)

	if in.Alarms.Any() {
		l.dischargePermitted = false
		return Result{DischargePermitted: false, FullSolarPassthrough: l.fspLatched, BelowStopThreshold: belowStop}
	}

	if in.Mode == ModeDisabled {
		l.dischargePermitted = false
		return Result{BelowStopThreshold: belowStop}
	}

	l.updateFspLatch(in)

	if in.Mode == ModeUnconditionalFullSolarPassthrough {
		return Result{DischargePermitted: true, FullSolarPassthrough: true, BelowStopThreshold: belowStop}
	}

	startReached := l.startReached(in)
	stopReached := l.stopReached(in)

	switch {
	case stopReached:
		l.dischargePermitted = false
	case startReached:
		l.dischargePermitted = true
	}

	if !l.dischargePermitted && l.nightUseOverride(in) {
		return Result{DischargePermitted: true, FullSolarPassthrough: l.fspLatched, BelowStopThreshold: belowStop}
	}

	return Result{DischargePermitted: l.dischargePermitted, FullSolarPassthrough: l.fspLatched, BelowStopThreshold: belowStop}
}

// belowStopThreshold mirrors isBelowStopThreshold(): a strict comparison
// against the stop threshold, independent of stopReached's latch-facing
// (inclusive) comparison.
func (l *Logic) belowStopThreshold(in Input) bool {
	if in.SocValid {
		return in.Soc < l.thresholds.SocStop
	}
	return in.LoadCorrectedVoltage < l.thresholds.VStop
}

func (l *Logic) startReached(in Input) bool {
	if in.SocValid {
		return in.Soc >= l.thresholds.SocStart
	}
	return in.LoadCorrectedVoltage >= l.thresholds.VStart
}

func (l *Logic) stopReached(in Input) bool {
	if in.SocValid {
		return in.Soc <= l.thresholds.SocStop
	}
	return in.LoadCorrectedVoltage <= l.thresholds.VStop
}

// updateFspLatch applies the latch described in §4.5: engages above the
// entry threshold, disengages only below the exit threshold.
func (l *Logic) updateFspLatch(in Input) {
	entry, exit := l.fspThresholds(in)

	if !l.fspLatched && l.metricAtOrAbove(in, entry) {
		l.fspLatched = true
		return
	}
	if l.fspLatched && l.metricBelow(in, exit) {
		l.fspLatched = false
	}
}

func (l *Logic) fspThresholds(in Input) (entry, exit float64) {
	if in.SocValid {
		return l.thresholds.FspEntrySoc, l.thresholds.FspExitSoc
	}
	return l.thresholds.FspEntryV, l.thresholds.FspExitV
}

func (l *Logic) metricAtOrAbove(in Input, threshold float64) bool {
	if in.SocValid {
		return in.Soc >= threshold
	}
	return in.LoadCorrectedVoltage >= threshold
}

func (l *Logic) metricBelow(in Input, threshold float64) bool {
	if in.SocValid {
		return in.Soc < threshold
	}
	return in.LoadCorrectedVoltage < threshold
}

// nightUseOverride implements "if solar power is zero, solar-passthrough is
// enabled, and night-use is enabled, discharge is permitted regardless of
// stop threshold" (§4.5). Alarms are checked earlier and always win. When
// NightUseWindows is configured, the override additionally requires that
// Now fall inside one of them, so a site with an irregular daytime shading
// dip doesn't get mistaken for night.
func (l *Logic) nightUseOverride(in Input) bool {
	if !l.thresholds.NightUseEnabled || !l.fspLatched || in.SolarPowerW != 0 {
		return false
	}
	return l.inNightWindow(in.Now)
}

func (l *Logic) inNightWindow(now time.Time) bool {
	if len(l.thresholds.NightUseWindows) == 0 {
		return true
	}
	for _, window := range l.thresholds.NightUseWindows {
		if window.Contains(now) {
			return true
		}
	}
	return false
}

func (l *Logic) FspLatched() bool {
	return l.fspLatched
}
