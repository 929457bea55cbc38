package main

import "testing"

func TestParseArgsCollectsRepeatedFlags(t *testing.T) {
	cfg, err := parseArgs([]string{
		"+d", "local:/dev/ttyUSB0",
		"+d", "virtual::9100",
		"+g", "lobby",
		"+g", "hall",
		"-g", "disabled",
		"+conf", "/etc/lumagrid",
		"+track",
		"+simulationMode",
		"+fps", "30",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.devices) != 2 {
		t.Fatalf("devices = %v, want 2 entries", cfg.devices)
	}
	if len(cfg.includeGroups) != 2 || cfg.includeGroups[0] != "lobby" {
		t.Errorf("includeGroups = %v", cfg.includeGroups)
	}
	if len(cfg.excludeGroups) != 1 || cfg.excludeGroups[0] != "disabled" {
		t.Errorf("excludeGroups = %v", cfg.excludeGroups)
	}
	if cfg.configDir != "/etc/lumagrid" {
		t.Errorf("configDir = %q", cfg.configDir)
	}
	if !cfg.track || !cfg.simulationMode {
		t.Errorf("track=%v simulationMode=%v, want both true", cfg.track, cfg.simulationMode)
	}
	if cfg.fps != 30 {
		t.Errorf("fps = %v, want 30", cfg.fps)
	}
}

func TestParseArgsVerboseOptionalLevel(t *testing.T) {
	cfg, err := parseArgs([]string{"+v", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.verbosity != 3 {
		t.Errorf("verbosity = %d, want 3", cfg.verbosity)
	}

	cfg, err = parseArgs([]string{"+v"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.verbosity != 1 {
		t.Errorf("verbosity = %d, want default 1", cfg.verbosity)
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	_, err := parseArgs([]string{"+bogus"})
	if err == nil {
		t.Fatal("expected a usage error")
	}
	if _, ok := err.(*usageError); !ok {
		t.Errorf("err = %T, want *usageError", err)
	}
}

func TestParseArgsRejectsMissingValue(t *testing.T) {
	_, err := parseArgs([]string{"+conf"})
	if err == nil {
		t.Fatal("expected a usage error")
	}
}

func TestParseDeviceSpecSplitsTypeAndAddress(t *testing.T) {
	desc, err := parseDeviceSpec("local:/dev/ttyUSB0")
	if err != nil {
		t.Fatal(err)
	}
	if desc.Type != "local" || desc.Address != "/dev/ttyUSB0" {
		t.Errorf("desc = %+v", desc)
	}
}

func TestParseDeviceSpecRejectsMissingColon(t *testing.T) {
	if _, err := parseDeviceSpec("local"); err == nil {
		t.Fatal("expected a usage error for a spec without ':'")
	}
}

func TestParseAdHocObserverSplitsNameAndSettings(t *testing.T) {
	name, settings, err := parseAdHocObserver("lobby@sink=file,path=/tmp/lobby.log,fps=5")
	if err != nil {
		t.Fatal(err)
	}
	if name != "lobby" {
		t.Errorf("name = %q, want lobby", name)
	}
	if settings["sink"] != "file" || settings["path"] != "/tmp/lobby.log" || settings["fps"] != "5" {
		t.Errorf("settings = %v", settings)
	}
}

func TestParseAdHocObserverRejectsMissingAt(t *testing.T) {
	if _, _, err := parseAdHocObserver("lobby-sink=file"); err == nil {
		t.Fatal("expected a usage error for a spec without '@'")
	}
}
