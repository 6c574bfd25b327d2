package zeroexport

import (
	"log/slog"
	"testing"
	"time"

	"github.com/balcony-power/dpc/external"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nil, &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func readyInverter(serial string) *external.InverterMock {
	inv := external.NewInverterMock(serial)
	inv.Reachable = true
	inv.CommandsEnabledValue = true
	inv.MaxPower = 1000
	inv.LimitCommandSuccess = external.CommandOK
	return inv
}

func testConfig() Config {
	return Config{
		MaxGridW:           -50,
		MinimumLimitPct:    10,
		PowerHysteresisPct: 2,
		TnSeconds:          10,
	}
}

func TestTickRoundRobinsAcrossSerials(t *testing.T) {
	r := New(testConfig(), []string{"a", "b", "c"}, testLogger())
	inv := readyInverter("a")
	meter := &external.PowerMeterMock{DataValid: true, Total: 0}

	var order []string
	for i := 0; i < 6; i++ {
		res := r.Tick(time.Unix(int64(i), 0), inv, meter)
		order = append(order, res.Serial)
	}
	want := []string{"a", "b", "c", "a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("round-robin order = %v, want %v", order, want)
		}
	}
}

func TestTickInverterOffline(t *testing.T) {
	r := New(testConfig(), []string{"a"}, testLogger())
	inv := readyInverter("a")
	inv.Reachable = false

	res := r.Tick(time.Unix(0, 0), inv, nil)
	if res.Status != InverterOffline {
		t.Fatalf("expected InverterOffline, got %v", res.Status)
	}
}

func TestTickFirstCallJustSeedsState(t *testing.T) {
	r := New(testConfig(), []string{"a"}, testLogger())
	inv := readyInverter("a")
	meter := &external.PowerMeterMock{DataValid: true, Total: 500}

	res := r.Tick(time.Unix(0, 0), inv, meter)
	if res.Status != Stable || res.Updated {
		t.Fatalf("expected seed tick with no update, got %+v", res)
	}
}

func TestTickPositiveGridDrawIncreasesLimit(t *testing.T) {
	r := New(testConfig(), []string{"a"}, testLogger())
	inv := readyInverter("a")
	meter := &external.PowerMeterMock{DataValid: true, Total: 500}

	r.Tick(time.Unix(0, 0), inv, meter)
	res := r.Tick(time.Unix(10, 0), inv, meter)

	if !res.Updated {
		t.Fatalf("expected limit to be updated on strong grid draw, got %+v", res)
	}
	if res.LimitPct <= 0 {
		t.Fatalf("expected a positive limit, got %v", res.LimitPct)
	}
	if inv.LastActivePowerCmd != float32(res.LimitPct) {
		t.Fatalf("expected commit to send %v, got %v", res.LimitPct, inv.LastActivePowerCmd)
	}
}

func TestTickClampsAtMinimumLimitAndDiscardsIntegrator(t *testing.T) {
	cfg := testConfig()
	r := New(cfg, []string{"a"}, testLogger())
	inv := readyInverter("a")
	meter := &external.PowerMeterMock{DataValid: true, Total: -2000} // heavy export

	r.Tick(time.Unix(0, 0), inv, meter)
	res := r.Tick(time.Unix(10, 0), inv, meter)

	if res.LimitPct != cfg.MinimumLimitPct {
		t.Fatalf("expected clamp to MinimumLimitPct=%v, got %v", cfg.MinimumLimitPct, res.LimitPct)
	}
}

func TestTickClampsAt100(t *testing.T) {
	r := New(testConfig(), []string{"a"}, testLogger())
	inv := readyInverter("a")
	meter := &external.PowerMeterMock{DataValid: true, Total: 50000} // huge import

	r.Tick(time.Unix(0, 0), inv, meter)
	res := r.Tick(time.Unix(10, 0), inv, meter)

	if res.LimitPct != 100 {
		t.Fatalf("expected clamp to 100, got %v", res.LimitPct)
	}
}

func TestTickHysteresisSuppressesSmallChanges(t *testing.T) {
	cfg := testConfig()
	cfg.PowerHysteresisPct = 1000 // unreasonably wide, forces suppression
	r := New(cfg, []string{"a"}, testLogger())
	inv := readyInverter("a")
	meter := &external.PowerMeterMock{DataValid: true, Total: 500}

	r.Tick(time.Unix(0, 0), inv, meter)
	r.Tick(time.Unix(10, 0), inv, meter) // first real calculation, commits
	before := inv.LastActivePowerCmd

	res := r.Tick(time.Unix(20, 0), inv, meter)
	if res.Updated {
		t.Fatalf("expected hysteresis to suppress the update, got %+v", res)
	}
	if inv.LastActivePowerCmd != before {
		t.Fatalf("expected no new command sent, got %v (was %v)", inv.LastActivePowerCmd, before)
	}
}

func TestTickCommandsStopBeforeZeroingAndStartAfterRaising(t *testing.T) {
	inv := readyInverter("a")
	inv.Producing = true

	commitPowerLimit(inv, 0)
	if inv.LastPowerControlOn {
		t.Fatalf("expected stop command when limit drops to zero")
	}

	inv2 := readyInverter("b")
	inv2.Producing = false
	commitPowerLimit(inv2, 50)
	if !inv2.LastPowerControlOn {
		t.Fatalf("expected start command once a positive limit is set")
	}
}
