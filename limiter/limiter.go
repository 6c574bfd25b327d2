package limiter

import (
	"log/slog"
	"math"
	"time"

	"github.com/balcony-power/dpc/external"
	"github.com/balcony-power/dpc/invcoord"
	"github.com/balcony-power/dpc/modelogic"
	"github.com/balcony-power/dpc/wraptime"
)

// solarFloorW is the minimum solar power, below which there is effectively
// no energy to pass through (§4.6 decision table's "<= 20W" row).
const solarFloorW = 20

// defaultInverterEfficiency is used when the inverter reports no efficiency
// channel field, or is not producing (ported from the original firmware's
// getInverterEfficiency fallback).
const defaultInverterEfficiency = 0.967

// Config holds the limiter's tunables (§6).
type Config struct {
	LowerLimitW float64
	UpperLimitW float64
	HysteresisW float64

	TargetConsumptionW          float64
	BaseLoadFallbackW           float64
	MeterIncludesInverterOutput bool

	IsInverterSolarPowered     bool
	SolarPassthroughLossFactor float64
	UseOverscaling             bool

	RestartHour int // -1 disables periodic restart

	Backoff BackoffConfig
}

// Input is everything the per-tick pipeline needs, gathered by the
// controller from the other components before calling Evaluate.
type Input struct {
	Now time.Time

	Mode               modelogic.OperatorMode
	ExternallyDisabled bool // e.g. a remote disable signal

	Threshold modelogic.Result

	BatteryInitialized        bool
	DischargeTemperatureValid bool

	InverterConnected bool // E has reached SETTLE

	Inverter      external.Inverter
	LastCommandMs uint32 // invcoord's command baseline for this inverter

	Meter external.PowerMeter

	MpptOutputPowerW float64

	ChargerRunning bool
}

// Limiter runs the dynamic power limiter pipeline (§4.6) for one inverter.
type Limiter struct {
	cfg    Config
	coord  *invcoord.Coordinator
	logger *slog.Logger

	backoff  BackoffState
	lastMeterReadingMs uint32
	lastDecision       DpcDecision
	lastRequestedW     float64
	haveRequested      bool
	restart            restartScheduler
}

func New(cfg Config, coord *invcoord.Coordinator, logger *slog.Logger) *Limiter {
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}
	return &Limiter{
		cfg:    cfg,
		coord:  coord,
		logger: logger.With("component", "limiter"),
		restart: restartScheduler{hour: cfg.RestartHour},
	}
}

// Evaluate runs one tick of the pipeline.
func (l *Limiter) Evaluate(in Input) DpcDecision {
	// 1. Require wall-clock time.
	if in.Now.IsZero() {
		return l.decide(DpcDecision{Status: WaitingForValidTimestamp, Shutdown: true})
	}

	l.restart.maybeRestart(in.Now, in.Inverter, l.logger)

	// 2. Drive C one tick; if still converging, hold the prior decision.
	if l.coord != nil && l.coord.Tick() {
		return l.lastDecision
	}

	// 3. Respect mode.
	if in.ExternallyDisabled {
		return l.decide(l.shutdown(DisabledByMqtt, "externally disabled"))
	}
	if in.Mode == modelogic.ModeDisabled {
		return l.decide(l.shutdown(DisabledByConfig, "operator mode disabled"))
	}
	if in.Mode == modelogic.ModeUnconditionalFullSolarPassthrough {
		limit := l.cfg.UpperLimitW
		if !l.cfg.IsInverterSolarPowered {
			limit = in.MpptOutputPowerW
		}
		return l.decide(DpcDecision{Status: UnconditionalSolarPassthrough, NewLimitW: limit})
	}

	// 4. Battery health gates.
	if !in.BatteryInitialized {
		return l.decide(l.shutdown(BatteryNotInitialized, "battery not initialized"))
	}
	if !in.DischargeTemperatureValid {
		return l.decide(l.shutdown(TemperatureRange, "discharge temperature out of range"))
	}

	// 5. Wait for E to reach SETTLE.
	if !in.InverterConnected {
		return l.lastDecision
	}

	// 6. Inverter reachability / command gates.
	inv := in.Inverter
	if inv == nil || !inv.IsReachable() {
		return l.decide(l.shutdown(InverterOffline, "inverter unreachable"))
	}
	if !inv.CommandsEnabled() {
		return l.decide(l.shutdown(InverterCommandsDisabled, "inverter commands disabled"))
	}
	if inv.MaxPowerW() == 0 {
		return l.decide(DpcDecision{Status: InverterDevInfoPending})
	}

	// 7. Telemetry must be newer than the last command.
	if in.LastCommandMs != 0 && !wraptime.After(inv.StatsLastUpdateMs(), in.LastCommandMs) {
		return l.decide(DpcDecision{Status: InverterStatsPending})
	}

	// 8. Meter freshness, or fall back to configured base load.
	meterReading, haveMeter := l.meterReading(in)
	if in.Meter != nil && in.Meter.IsDataValid() && !haveMeter {
		return l.decide(DpcDecision{Status: PowerMeterPending})
	}

	// 9. Backoff gate.
	if !l.backoff.Ready(in.Now, l.cfg.Backoff) {
		return l.lastDecision
	}

	// 10. Battery power allowed, from F.
	batteryAllowed := in.Threshold.DischargePermitted

	// 11. Solar power available.
	solarDC := l.solarAvailable(in)

	// 12. AC/DC conversion.
	efficiency := inverterEfficiency(inv)
	solarAC := solarDC * efficiency * (1 - l.cfg.SolarPassthroughLossFactor)
	if l.cfg.IsInverterSolarPowered {
		// solarDC is already the AC-side upper limit, standing in for
		// unlimited solar; converting it would pull the FSP limit below it.
		solarAC = solarDC
	}

	// 13. Decision table.
	invOutputW := 0.0
	if inv.IsProducing() {
		invOutputW = inv.ChannelFieldValue(external.ChannelTypeAC, 0, external.FieldPAC)
	}
	meterNeed := meterReading + l.cfg.TargetConsumptionW*-1
	if l.cfg.MeterIncludesInverterOutput {
		meterNeed += invOutputW
	}

	var limitW float64
	switch {
	case !batteryAllowed && solarAC <= solarFloorW:
		return l.decide(l.shutdown(NoEnergy, "no battery discharge permitted and insufficient solar"))
	case !batteryAllowed:
		limitW = math.Min(meterNeed, solarAC)
	case !in.Threshold.FullSolarPassthrough:
		limitW = meterNeed
	default:
		limitW = math.Max(meterNeed, solarAC)
	}

	// 14. External DC charger running without FSP latched.
	if in.ChargerRunning && !in.Threshold.FullSolarPassthrough {
		return l.decide(l.shutdown(ChargerActive, "dc charger running"))
	}

	// 15. Shading compensation.
	if l.cfg.UseOverscaling && l.cfg.IsInverterSolarPowered {
		limitW = compensateShading(inv, limitW)
	}

	// 16. Clamp.
	upper := l.cfg.UpperLimitW
	if maxW := float64(inv.MaxPowerW()); maxW < upper {
		upper = maxW
	}
	if limitW > upper {
		limitW = upper
	}
	if limitW < l.cfg.LowerLimitW {
		if l.cfg.IsInverterSolarPowered {
			limitW = l.cfg.LowerLimitW
		} else {
			return l.decide(l.shutdown(CalculatedLimitBelowMinLimit, "calculated limit below configured minimum"))
		}
	}

	decision := DpcDecision{Status: Stable, NewLimitW: limitW}

	// 17. Hysteresis gate before committing to C.
	if !l.haveRequested || math.Abs(limitW-l.lastRequestedW) > l.cfg.HysteresisW {
		if l.coord != nil {
			l.coord.Request(true, limitW)
		}
		l.lastRequestedW = limitW
		l.haveRequested = true
		l.backoff.RecordChange(in.Now, l.cfg.Backoff)
	} else {
		l.backoff.RecordStable(in.Now, l.cfg.Backoff)
	}

	return l.decide(decision)
}

func (l *Limiter) decide(d DpcDecision) DpcDecision {
	if d.Shutdown && l.coord != nil {
		l.coord.Request(false, 0)
		l.haveRequested = false
	}
	l.lastDecision = d
	return d
}

func (l *Limiter) shutdown(status StatusCode, reason string) DpcDecision {
	return DpcDecision{Status: status, Shutdown: true, Reason: reason}
}

// meterReading returns the meter's current reading (if the meter is valid
// and has produced a distinct reading since the previous tick) or the
// configured base-load fallback (§4.6 step 8).
func (l *Limiter) meterReading(in Input) (reading float64, fromMeter bool) {
	if in.Meter == nil || !in.Meter.IsDataValid() {
		return l.cfg.BaseLoadFallbackW, false
	}

	ts := in.Meter.LastUpdateMs()
	if ts == l.lastMeterReadingMs {
		return 0, false
	}
	l.lastMeterReadingMs = ts

	return in.Meter.PowerTotal(), true
}

// solarAvailable returns the DC solar power usable this tick: infinite
// (represented as UpperLimitW, an effective ceiling) for solar-powered
// inverters, or the MPPT's reported output for battery-powered ones, zeroed
// only once the SoC/voltage metric is strictly below the stop threshold
// (§4.6 step 11). This is deliberately not the same signal as batteryAllowed:
// between the stop and start thresholds the discharge latch can be open
// (from a prior tick) or closed, but solar keeps flowing either way.
func (l *Limiter) solarAvailable(in Input) float64 {
	if l.cfg.IsInverterSolarPowered {
		return l.cfg.UpperLimitW
	}
	if in.Threshold.BelowStopThreshold {
		return 0
	}
	return in.MpptOutputPowerW
}

// inverterEfficiency mirrors the original firmware's fallback: use the
// inverter's own reported efficiency while producing, else a fixed default.
func inverterEfficiency(inv external.Inverter) float64 {
	if !inv.IsProducing() {
		return defaultInverterEfficiency
	}
	eff := inv.ChannelFieldValue(external.ChannelTypeAC, 0, external.FieldEFF)
	if eff <= 0 {
		return defaultInverterEfficiency
	}
	return eff / 100
}
