package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.StateMachine.TotalShards != 4 {
		t.Fatalf("TotalShards = %d, want 4", cfg.StateMachine.TotalShards)
	}
	if cfg.Consensus.RequiredValidations != 3 {
		t.Fatalf("RequiredValidations = %d, want 3", cfg.Consensus.RequiredValidations)
	}
	if cfg.Consensus.RawTTLMillis != 60_000 {
		t.Fatalf("RawTTLMillis = %d, want 60000", cfg.Consensus.RawTTLMillis)
	}
	if cfg.Consensus.ProcessingTTLMillis != 300_000 {
		t.Fatalf("ProcessingTTLMillis = %d, want 300000", cfg.Consensus.ProcessingTTLMillis)
	}
}

func TestLoadMergesEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	defaultYAML := "network:\n  port: 9000\nconsensus:\n  requiredValidations: 3\n"
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(defaultYAML), 0o644); err != nil {
		t.Fatalf("write default.yaml: %v", err)
	}
	devYAML := "network:\n  port: 9100\n"
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte(devYAML), 0o644); err != nil {
		t.Fatalf("write dev.yaml: %v", err)
	}

	cfg, err := Load(dir, "dev")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network.Port != 9100 {
		t.Fatalf("Network.Port = %d, want 9100 (dev overlay)", cfg.Network.Port)
	}
	if cfg.Consensus.RequiredValidations != 3 {
		t.Fatalf("Consensus.RequiredValidations = %d, want 3 (from default.yaml)", cfg.Consensus.RequiredValidations)
	}
}

func TestLoadMissingConfigDirErrors(t *testing.T) {
	if _, err := Load(t.TempDir(), ""); err == nil {
		t.Fatalf("Load: expected an error for a directory with no default.yaml")
	}
}
