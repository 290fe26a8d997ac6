package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should be valid: %v", err)
	}
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ft8op.yaml")
	yamlDoc := []byte(`
connection:
  wsjtx_ip: 192.168.1.50
policy:
  max_tries: 7
  num_inactive_before_cut: 2
`)
	if err := os.WriteFile(path, yamlDoc, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Connection.WSJTXIP != "192.168.1.50" {
		t.Errorf("WSJTXIP = %q", cfg.Connection.WSJTXIP)
	}
	if cfg.Connection.MongoPort != 27017 {
		t.Errorf("MongoPort should fall back to default, got %d", cfg.Connection.MongoPort)
	}
	if cfg.Policy.MaxTries != 7 {
		t.Errorf("MaxTries = %d, want 7", cfg.Policy.MaxTries)
	}
	if len(cfg.Policy.SortBy) == 0 {
		t.Error("SortBy should fall back to the importance-descending default")
	}
}

func TestValidateRejectsInconsistentPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.Policy.NumInactiveBeforeCut = cfg.Policy.MaxTries
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when num_inactive_before_cut >= max_tries")
	}
}

func TestValidateRejectsBadFrequencyOrdering(t *testing.T) {
	cfg := Defaults()
	cfg.Policy.InitialFrequency = cfg.Policy.MaxFrequency + 100
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when initial_frequency > max_frequency")
	}
}
