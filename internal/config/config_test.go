package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dt <= 0 {
		t.Error("dt should be positive")
	}
	if cfg.Horizon < 1 {
		t.Error("horizon should be at least 1")
	}
	if cfg.Periods < 1 {
		t.Error("periods should be at least 1")
	}
	if cfg.Objective != "position-sum" {
		t.Errorf("expected position-sum default, got %s", cfg.Objective)
	}
	if !cfg.Loop.ValidateState {
		t.Error("state validation should default on")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")

	cfg := DefaultConfig()
	cfg.Horizon = 25
	cfg.WarmStart = true
	cfg.Init.PZ = 4.5
	cfg.Limits.VzMax = 0.7

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Horizon != 25 {
		t.Errorf("expected horizon 25, got %d", loaded.Horizon)
	}
	if !loaded.WarmStart {
		t.Error("warm start flag lost")
	}
	if loaded.Init.PZ != 4.5 {
		t.Errorf("expected init pz 4.5, got %f", loaded.Init.PZ)
	}
	if loaded.Limits.VzMax != 0.7 {
		t.Errorf("expected vz limit 0.7, got %f", loaded.Limits.VzMax)
	}
}

func TestLoadKeepsDefaultsForAbsentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("horizon: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Horizon != 7 {
		t.Errorf("expected horizon 7, got %d", cfg.Horizon)
	}
	if cfg.Dt != DefaultDt {
		t.Errorf("absent dt lost its default: %f", cfg.Dt)
	}
	if !cfg.Loop.ValidateState {
		t.Error("absent loop section disabled state validation")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("descent")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Init.PZ != 5 {
		t.Errorf("expected descent to start at pz 5, got %f", cfg.Init.PZ)
	}
	if cfg.Objective != "tracking" {
		t.Errorf("descent should track, got %s", cfg.Objective)
	}

	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	if len(names) == 0 {
		t.Fatal("expected presets")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("presets not sorted: %v", names)
		}
	}
	for _, name := range []string{"hover", "descent", "tight", "realtime", "drift"} {
		if GetPreset(name) == nil {
			t.Errorf("preset %s missing", name)
		}
	}
}

func TestPresetsCarryLimits(t *testing.T) {
	for name, cfg := range Presets {
		if cfg.Limits.AngleMax <= 0 || cfg.Limits.VzMax <= 0 {
			t.Errorf("preset %s has degenerate limits: %+v", name, cfg.Limits)
		}
		if cfg.Dt <= 0 || cfg.Horizon < 1 || cfg.Periods < 1 {
			t.Errorf("preset %s has bad planning parameters", name)
		}
	}
}

func TestStateYAMLOrder(t *testing.T) {
	s := StateYAML{PX: 1, PZ: 2, Theta: 3, VX: 4, VZ: 5, Omega: 6}
	x := s.State()
	for i, want := range []float64{1, 2, 3, 4, 5, 6} {
		if math.Abs(x[i]-want) > 0 {
			t.Fatalf("component %d = %f, want %f", i, x[i], want)
		}
	}
}
