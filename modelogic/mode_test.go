package modelogic

import (
	"testing"
	"time"

	"github.com/balcony-power/dpc/timeutils"
)

func testThresholds() Thresholds {
	return Thresholds{
		SocStart: 80, SocStop: 20,
		VStart: 52, VStop: 48,
		FspEntrySoc: 95, FspExitSoc: 85,
		FspEntryV: 56, FspExitV: 54,
		NightUseEnabled: true,
	}
}

func TestAlarmsOverrideEverything(t *testing.T) {
	l := New(testThresholds())
	l.dischargePermitted = true

	result := l.Evaluate(Input{Soc: 90, SocValid: true, Alarms: BatteryAlarms{OverVoltage: true}})
	if result.DischargePermitted {
		t.Error("expected an alarm to force discharge off")
	}
}

func TestDisabledModeShutsDown(t *testing.T) {
	l := New(testThresholds())
	l.dischargePermitted = true

	result := l.Evaluate(Input{Mode: ModeDisabled, Soc: 90, SocValid: true})
	if result.DischargePermitted {
		t.Error("expected disabled mode to shut down discharge")
	}
}

func TestUnconditionalFullSolarPassthroughAlwaysPermits(t *testing.T) {
	l := New(testThresholds())

	result := l.Evaluate(Input{Mode: ModeUnconditionalFullSolarPassthrough, Soc: 10, SocValid: true})
	if !result.DischargePermitted || !result.FullSolarPassthrough {
		t.Errorf("expected forced discharge+fsp, got %+v", result)
	}
}

func TestStartStopHysteresisBySoc(t *testing.T) {
	l := New(testThresholds())

	// SoC well below start: stays off.
	r := l.Evaluate(Input{SocValid: true, Soc: 50})
	if r.DischargePermitted {
		t.Fatal("expected discharge to remain off below start threshold")
	}

	// Crosses start threshold: turns on.
	r = l.Evaluate(Input{SocValid: true, Soc: 81})
	if !r.DischargePermitted {
		t.Fatal("expected discharge to start once soc_start is reached")
	}

	// Stays on at mid-SoC (hysteresis, no chatter).
	r = l.Evaluate(Input{SocValid: true, Soc: 50})
	if !r.DischargePermitted {
		t.Fatal("expected discharge to remain on between start and stop thresholds")
	}

	// Drops to stop threshold: turns off.
	r = l.Evaluate(Input{SocValid: true, Soc: 20})
	if r.DischargePermitted {
		t.Fatal("expected discharge to stop once soc_stop is reached")
	}
}

func TestStartStopHysteresisFallsBackToVoltageWithoutValidSoc(t *testing.T) {
	l := New(testThresholds())

	r := l.Evaluate(Input{SocValid: false, LoadCorrectedVoltage: 53})
	if !r.DischargePermitted {
		t.Fatal("expected discharge to start from voltage when SoC is invalid")
	}

	r = l.Evaluate(Input{SocValid: false, LoadCorrectedVoltage: 47})
	if r.DischargePermitted {
		t.Fatal("expected discharge to stop from voltage when SoC is invalid")
	}
}

func TestFspLatchEngagesAndHoldsUntilExit(t *testing.T) {
	l := New(testThresholds())

	l.Evaluate(Input{SocValid: true, Soc: 96})
	if !l.FspLatched() {
		t.Fatal("expected fsp to latch above entry threshold")
	}

	// Mid-band: must not disengage (prevents chattering).
	l.Evaluate(Input{SocValid: true, Soc: 90})
	if !l.FspLatched() {
		t.Fatal("expected fsp latch to hold in the dead band")
	}

	l.Evaluate(Input{SocValid: true, Soc: 80})
	if l.FspLatched() {
		t.Fatal("expected fsp to disengage below exit threshold")
	}
}

// nightUseThresholds uses a low FSP exit threshold so the latch survives
// the overnight discharge down to a low SoC, matching real-world use: FSP
// tops the battery up during the day and stays latched through the night.
func nightUseThresholds() Thresholds {
	th := testThresholds()
	th.FspExitSoc = 5
	return th
}

func TestNightUseOverridesStopThresholdWhenSolarIsZero(t *testing.T) {
	l := New(nightUseThresholds())
	l.Evaluate(Input{SocValid: true, Soc: 96}) // latch FSP
	l.dischargePermitted = false

	result := l.Evaluate(Input{SocValid: true, Soc: 10, SolarPowerW: 0})
	if !result.DischargePermitted {
		t.Fatal("expected night-use to override the stop threshold")
	}
}

func TestNightUseWindowRestrictsTheOverrideToConfiguredHours(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load london tz: %v", err)
	}

	th := nightUseThresholds()
	th.NightUseWindows = []timeutils.DayedPeriod{{
		ClockTimePeriod: timeutils.ClockTimePeriod{
			Start: timeutils.ClockTime{Hour: 18, Location: london},
			End:   timeutils.ClockTime{Hour: 23, Minute: 59, Second: 59, Location: london},
		},
		Days: timeutils.AllDays,
	}}
	l := New(th)
	l.Evaluate(Input{SocValid: true, Soc: 96}) // latch FSP
	l.dischargePermitted = false

	midday := time.Date(2026, 3, 2, 12, 0, 0, 0, london)
	result := l.Evaluate(Input{SocValid: true, Soc: 10, SolarPowerW: 0, Now: midday})
	if result.DischargePermitted {
		t.Fatal("expected night-use override to be withheld outside the configured window")
	}

	evening := time.Date(2026, 3, 2, 20, 0, 0, 0, london)
	result = l.Evaluate(Input{SocValid: true, Soc: 10, SolarPowerW: 0, Now: evening})
	if !result.DischargePermitted {
		t.Fatal("expected night-use override to apply inside the configured window")
	}
}

func TestNightUseDoesNotOverrideWhenSolarIsProducing(t *testing.T) {
	l := New(nightUseThresholds())
	l.Evaluate(Input{SocValid: true, Soc: 96}) // latch FSP
	l.dischargePermitted = false

	result := l.Evaluate(Input{SocValid: true, Soc: 10, SolarPowerW: 50})
	if result.DischargePermitted {
		t.Fatal("expected night-use override to require zero solar power")
	}
}

// BelowStopThreshold is a strict, unlatched signal distinct from
// DischargePermitted: it must track the instantaneous metric even while
// the discharge latch is holding open between the stop and start bands.
func TestBelowStopThresholdIsIndependentOfTheLatch(t *testing.T) {
	l := New(testThresholds())

	// Above the stop threshold: not below it, regardless of latch state.
	r := l.Evaluate(Input{SocValid: true, Soc: 50})
	if r.BelowStopThreshold {
		t.Fatal("expected BelowStopThreshold to be false well above soc_stop")
	}

	// Exactly at the stop threshold: isBelowStopThreshold is strict, so
	// this is not below it even though the latch closes here too.
	r = l.Evaluate(Input{SocValid: true, Soc: 20})
	if r.BelowStopThreshold {
		t.Fatal("expected BelowStopThreshold to be false exactly at soc_stop")
	}

	// Strictly under the stop threshold: below it.
	r = l.Evaluate(Input{SocValid: true, Soc: 19})
	if !r.BelowStopThreshold {
		t.Fatal("expected BelowStopThreshold to be true below soc_stop")
	}
}

func TestBelowStopThresholdFallsBackToVoltageWithoutValidSoc(t *testing.T) {
	l := New(testThresholds())

	r := l.Evaluate(Input{SocValid: false, LoadCorrectedVoltage: 47})
	if !r.BelowStopThreshold {
		t.Fatal("expected BelowStopThreshold to use voltage when SoC is invalid")
	}

	r = l.Evaluate(Input{SocValid: false, LoadCorrectedVoltage: 48})
	if r.BelowStopThreshold {
		t.Fatal("expected BelowStopThreshold to be false exactly at v_stop")
	}
}
