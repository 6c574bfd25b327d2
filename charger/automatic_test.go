package charger

import (
	"log/slog"
	"testing"

	"github.com/balcony-power/dpc/external"
)

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *external.BmsMock, *external.InverterMock, *external.PowerMeterMock, *external.DayPeriodMock) {
	t.Helper()

	transport := &fakeTransport{}
	bms := &external.BmsMock{InitializedValue: true, ChargeEnabledValue: true, ChargeTemperatureValid: true}
	inv := external.NewInverterMock("12345")
	inv.Reachable = true
	inv.Producing = true
	meter := &external.PowerMeterMock{DataValid: true}
	day := &external.DayPeriodMock{IsDay: true}

	cfg := Config{Flavor: FlavorPSU, DeviceID: 0x01, Model: "NPB-1200-48"}
	engine := NewEngine(transport, cfg, bms, []external.Inverter{inv}, meter, day, slog.Default())

	return engine, transport, bms, inv, meter, day
}

func TestShutdownConditionsAlarmsTakePriority(t *testing.T) {
	engine, _, bms, _, _, _ := newTestEngine(t)
	bms.AlarmsValue.OverVoltage = true

	battery := external.SnapshotBms(bms)
	shutdown, reason := engine.shutdownConditions(battery, true)

	if !shutdown {
		t.Fatal("expected shutdown on over-voltage alarm")
	}
	if reason != "battery over-voltage alarm" {
		t.Errorf("unexpected reason %q", reason)
	}
}

func TestShutdownConditionsOutsideDayPeriod(t *testing.T) {
	engine, _, bms, _, _, day := newTestEngine(t)
	day.IsDay = false

	battery := external.SnapshotBms(bms)
	shutdown, reason := engine.shutdownConditions(battery, true)

	if !shutdown || reason != "outside day period" {
		t.Fatalf("got shutdown=%v reason=%q", shutdown, reason)
	}
}

func TestShutdownConditionsHealthyBattery(t *testing.T) {
	engine, _, bms, _, _, _ := newTestEngine(t)

	battery := external.SnapshotBms(bms)
	shutdown, _ := engine.shutdownConditions(battery, true)

	if shutdown {
		t.Fatal("expected no shutdown for a healthy battery")
	}
}

func TestTurnOnConditionsRequiresExportOrImmediate(t *testing.T) {
	engine, _, bms, _, _, _ := newTestEngine(t)
	engine.limits.MinCurrent = 1.36
	bms.VoltageValue = 48
	battery := external.SnapshotBms(bms)

	if engine.turnOnConditions(battery, true, true, 50) {
		t.Error("expected no turn-on when the house is importing and immediate-charge is off")
	}

	if !engine.turnOnConditions(battery, true, true, -100) {
		t.Error("expected turn-on when export exceeds min_current * voltage")
	}

	bms.ChargeImmediatelyValue = true
	battery = external.SnapshotBms(bms)
	if !engine.turnOnConditions(battery, true, true, 50) {
		t.Error("expected turn-on when charge_immediately overrides a grid import")
	}
}

func TestTurnOnConditionsBlockedAtFullSoc(t *testing.T) {
	engine, _, bms, _, _, _ := newTestEngine(t)
	bms.SocValue = 100
	battery := external.SnapshotBms(bms)

	if engine.turnOnConditions(battery, true, true, -1000) {
		t.Error("expected no turn-on at 100% SoC")
	}
}

func TestHandleImmediateChargeLatchesAndRecovers(t *testing.T) {
	engine, transport, bms, _, _, _ := newTestEngine(t)
	engine.startThresholdPercent = 90
	bms.ChargeImmediatelyValue = true
	bms.SocValue = 50

	battery := external.SnapshotBms(bms)
	engine.handleImmediateCharge(battery)

	if !engine.chargeImmediateLatched {
		t.Fatal("expected immediate charge to latch")
	}
	if len(transport.sent) == 0 {
		t.Fatal("expected current write commands to be sent")
	}

	// SoC recovers above start_threshold - offset (90 - 10 = 80).
	bms.ChargeImmediatelyValue = false
	bms.SocValue = 81
	battery = external.SnapshotBms(bms)
	engine.handleImmediateCharge(battery)

	if engine.chargeImmediateLatched {
		t.Fatal("expected the latch to clear once SoC recovers")
	}
}

func TestRunZeroGridRegulatorIncrementsOnExport(t *testing.T) {
	engine, transport, bms, _, _, _ := newTestEngine(t)
	bms.VoltageValue = 48
	bms.RecommendedCurrent = 10

	engine.state.OutputPower = 500
	engine.state.OutputVoltage = 50
	engine.state.OutputCurrent = 5
	engine.state.SetCurrent = 5

	engine.runZeroGridRegulator(-100) // exporting 100W to the grid

	if len(transport.sent) == 0 {
		t.Fatal("expected a current write when exporting to the grid")
	}

	cmd := readUint16(transport.sent[0].payload[0:2])
	if cmd != cmdIoutSet {
		t.Fatalf("got cmd 0x%X, expected IOUT_SET", cmd)
	}
	newCurrent := readScaled(transport.sent[0].payload[2:], 0.01)
	if newCurrent <= engine.state.SetCurrent {
		t.Errorf("expected current to increase from %.2f, got %.2f", engine.state.SetCurrent, newCurrent)
	}
}

func TestRunZeroGridRegulatorDecrementsOnImport(t *testing.T) {
	engine, transport, bms, _, _, _ := newTestEngine(t)
	bms.VoltageValue = 48

	engine.state.OutputPower = 500
	engine.state.OutputVoltage = 50
	engine.state.OutputCurrent = 10
	engine.state.SetCurrent = 10

	engine.runZeroGridRegulator(50) // importing 50W from the grid

	if len(transport.sent) == 0 {
		t.Fatal("expected a current write when importing from the grid")
	}

	newCurrent := readScaled(transport.sent[0].payload[2:], 0.01)
	if newCurrent >= engine.state.SetCurrent {
		t.Errorf("expected current to decrease from %.2f, got %.2f", engine.state.SetCurrent, newCurrent)
	}
}

func TestRunZeroGridRegulatorShutsDownBelowMinCurrent(t *testing.T) {
	engine, _, bms, _, _, _ := newTestEngine(t)
	bms.VoltageValue = 48

	engine.phase = PhaseRunning
	engine.state.OutputPower = 20
	engine.state.OutputVoltage = 50
	engine.state.OutputCurrent = 1.4
	engine.state.SetCurrent = 1.4

	// A large import should decrement current below min_current and force a stop.
	engine.runZeroGridRegulator(5000)

	if engine.phase != PhaseStopping {
		t.Fatalf("expected phase to move to stopping, got %s", engine.phase)
	}
}

func TestAnyInverterProducingReachableNoInverters(t *testing.T) {
	transport := &fakeTransport{}
	cfg := Config{Flavor: FlavorPSU, DeviceID: 0x01, Model: "NPB-1200-48"}
	engine := NewEngine(transport, cfg, &external.BmsMock{}, nil, &external.PowerMeterMock{}, &external.DayPeriodMock{}, slog.Default())

	producing, reachable := engine.anyInverterProducingReachable()
	if producing || reachable {
		t.Error("expected false/false with no configured inverters")
	}
}

func TestAnyInverterProducingReachableFalseWhenNoneProducing(t *testing.T) {
	engine, _, _, inv, _, _ := newTestEngine(t)
	inv.Producing = false

	producing, reachable := engine.anyInverterProducingReachable()
	if producing {
		t.Error("expected producing=false when no inverter is producing")
	}
	if !reachable {
		t.Error("expected reachable=true")
	}
}
