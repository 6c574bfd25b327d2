package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/balcony-power/dpc/timeutils"
)

func TestReadParsesNestedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"bus": {"can": {"interface": "can0", "minInterFrameGapMs": 5}},
		"gpio": {"prechargePin": "GPIO17", "mainPin": "GPIO27"},
		"charger": {"enabled": true, "flavor": "psu", "deviceId": 1, "model": "NPB-1200-48"},
		"threshold": {
			"socStart": 30, "socStop": 95, "fspEntrySoc": 96, "fspExitSoc": 85,
			"nightUseEnabled": true,
			"nightUseWindows": [{"start": {"hour": 18}, "end": {"hour": 23, "minute": 59, "second": 59}, "days": "all"}]
		},
		"limiter": {"lowerLimitW": 50, "upperLimitW": 800, "restartHour": -1},
		"zeroExport": {"enabled": true, "serials": ["112233445566"], "tnSeconds": 10},
		"inverter": {"serial": "112233445566"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	if cfg.Bus.Can == nil || cfg.Bus.Can.Interface != "can0" {
		t.Fatalf("expected can0 interface, got %+v", cfg.Bus.Can)
	}
	if cfg.Bus.Rs485 != nil {
		t.Fatalf("expected no rs485 config, got %+v", cfg.Bus.Rs485)
	}
	if cfg.Charger.Flavor != "psu" || cfg.Charger.Model != "NPB-1200-48" {
		t.Fatalf("unexpected charger config: %+v", cfg.Charger)
	}
	if cfg.Threshold.SocStop != 95 {
		t.Fatalf("unexpected threshold config: %+v", cfg.Threshold)
	}
	if !cfg.Threshold.NightUseEnabled || len(cfg.Threshold.NightUseWindows) != 1 {
		t.Fatalf("unexpected night-use config: %+v", cfg.Threshold)
	}
	if cfg.Threshold.NightUseWindows[0].Start.Hour != 18 || cfg.Threshold.NightUseWindows[0].Days != timeutils.AllDays {
		t.Fatalf("unexpected night-use window: %+v", cfg.Threshold.NightUseWindows[0])
	}
	if cfg.Limiter.RestartHour != -1 {
		t.Fatalf("expected restart disabled, got %v", cfg.Limiter.RestartHour)
	}
	if len(cfg.ZeroExport.Serials) != 1 || cfg.ZeroExport.Serials[0] != "112233445566" {
		t.Fatalf("unexpected zero-export serials: %+v", cfg.ZeroExport.Serials)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestReadInvalidJson(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o600); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	_, err := Read(path)
	if err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}
