package sham

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TimeSlice != 4 || cfg.TimerFreq != 100 || cfg.DonationDepth != 8 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	cfg := Config{MLFQS: true}.withDefaults()
	if !cfg.MLFQS {
		t.Error("MLFQS lost")
	}
	if cfg.Clock != ClockVirtual || cfg.MaxThreads != 64 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sham.yaml")
	content := "mlfqs: true\ntime_slice: 8\nclock: real\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.MLFQS || cfg.TimeSlice != 8 || cfg.Clock != ClockReal {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.TimerFreq != 100 {
		t.Errorf("timer_freq = %d, want default 100", cfg.TimerFreq)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"clock":     "clock: wall\n",
		"freq":      "timer_freq: 5000\n",
		"log_level": "log_level: loud\n",
		"yaml":      "mlfqs: [\n",
	}
	for name, content := range tests {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Errorf("missing file error = %v", err)
	}
}
