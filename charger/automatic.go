package charger

import "github.com/balcony-power/dpc/external"

// runAutomaticCharge implements §4.2's automatic charge algorithm. It is
// called once per PollInterval while auto mode is enabled.
func (e *Engine) runAutomaticCharge() {
	if e.phase == PhaseStarting || e.phase == PhaseStopping {
		return // blocked for one poll interval during transitions
	}

	battery := external.SnapshotBms(e.bms)

	isProducing, isReachable := e.anyInverterProducingReachable()

	if shutdown, reason := e.shutdownConditions(battery, isProducing); shutdown {
		if e.phase == PhaseRunning {
			e.stopCharging(reason)
		}
		return
	}

	gridPower := e.meter.PowerTotal()

	if e.phase == PhaseOff {
		if e.turnOnConditions(battery, isProducing, isReachable, gridPower) {
			e.startCharging()
		}
		return
	}

	if e.phase != PhaseRunning {
		return
	}

	e.handleImmediateCharge(battery)
	if e.chargeImmediateLatched {
		return
	}

	e.runZeroGridRegulator(gridPower)
}

func (e *Engine) anyInverterProducingReachable() (producing, reachable bool) {
	if len(e.inverters) == 0 {
		return false, false
	}

	for _, inv := range e.inverters {
		if inv.IsProducing() {
			producing = true
		}
		if inv.IsReachable() {
			reachable = true
		}
	}

	return producing, reachable
}

func (e *Engine) shutdownConditions(battery external.BatterySnapshot, isProducing bool) (bool, string) {
	switch {
	case battery.Alarms.OverVoltage:
		return true, "battery over-voltage alarm"
	case battery.Alarms.OverTemperature:
		return true, "battery over-temperature alarm"
	case battery.Alarms.UnderTemperature:
		return true, "battery under-temperature alarm"
	case !battery.ChargeTemperatureValid:
		return true, "charge temperature invalid"
	case e.dayPeriod != nil && !e.dayPeriod.IsDayPeriod():
		return true, "outside day period"
	case !battery.ChargeEnabled:
		return true, "battery disallows charge"
	case !isProducing:
		return true, "no inverter producing"
	default:
		return false, ""
	}
}

func (e *Engine) turnOnConditions(battery external.BatterySnapshot, isProducing, isReachable bool, gridPower float64) bool {
	if battery.Soc >= 100 {
		return false
	}
	if !isReachable || !isProducing {
		return false
	}

	sufficientExport := gridPower < -e.limits.MinCurrent*battery.Voltage

	return sufficientExport || battery.ChargeImmediately
}

func (e *Engine) handleImmediateCharge(battery external.BatterySnapshot) {
	recoveryThreshold := e.startThresholdPercent - e.cfg.ImmediateChargeRecoveryOffsetPercent

	if battery.Soc >= recoveryThreshold {
		e.chargeImmediateLatched = false
	}

	if (battery.ChargeImmediately || e.chargeImmediateLatched) && battery.Soc < recoveryThreshold {
		_ = e.writeCurrent(e.limits.MaxCurrent)
		_ = e.writeCurveCC(e.limits.MaxCurrent)
		e.chargeImmediateLatched = true
	}
}

func (e *Engine) runZeroGridRegulator(gridPower float64) {
	outputPower := e.state.OutputPower
	if outputPower <= 0 {
		outputPower = e.state.SetCurrent * e.state.OutputVoltage
	}

	hys := e.cfg.Hysteresis

	switch {
	case gridPower-outputPower < -(outputPower+hys) &&
		e.state.OutputCurrent < e.bmsRecommendedCurrent() &&
		e.state.OutputCurrent < e.limits.MaxCurrent:
		increment := absF(gridPower) / e.batteryVoltageOrSet()
		newCurrent := e.state.SetCurrent + increment
		_ = e.writeCurrent(newCurrent)
		_ = e.writeCurveCC(newCurrent)

	case gridPower-outputPower > -outputPower && e.state.OutputCurrent > 0:
		decrement := absF(gridPower) / e.batteryVoltageOrSet()
		newCurrent := e.state.SetCurrent - decrement
		if newCurrent < e.limits.MinCurrent {
			e.stopCharging("insufficient solar power")
			return
		}
		_ = e.writeCurrent(newCurrent)
		_ = e.writeCurveCC(newCurrent)
	}
}

func (e *Engine) bmsRecommendedCurrent() float64 {
	if e.bms == nil {
		return e.limits.MaxCurrent
	}
	return e.bms.RecommendedChargeCurrent()
}

func (e *Engine) batteryVoltageOrSet() float64 {
	if e.bms != nil {
		if v, _ := e.bms.Voltage(); v > 0 {
			return v
		}
	}
	if e.state.OutputVoltage > 0 {
		return e.state.OutputVoltage
	}
	return e.limits.MaxVoltage
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
