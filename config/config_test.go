package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
http:
  addr: ":9090"
store:
  path: /tmp/forecast-test.db
horizon:
  default_horizons: [1, 6, 24]
  horizon_budget_ms: 500
cache:
  ttl_minutes: 15
training:
  source: synthetic
  samples: 2000
mqtt:
  enabled: true
  broker: tcp://localhost:1883
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Store.Path != "/tmp/forecast-test.db" {
		t.Fatalf("store path = %s", cfg.Store.Path)
	}
	if len(cfg.Horizon.DefaultHorizons) != 3 || cfg.Horizon.DefaultHorizons[2] != 24 {
		t.Fatalf("horizons = %v", cfg.Horizon.DefaultHorizons)
	}
	if cfg.Cache.TTLMinutes != 15 {
		t.Fatalf("ttl = %d", cfg.Cache.TTLMinutes)
	}
	if cfg.Training.Samples != 2000 {
		t.Fatalf("samples = %d", cfg.Training.Samples)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("default addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Model.Path != "models/ensemble.json" {
		t.Fatalf("default model path = %s", cfg.Model.Path)
	}
	if cfg.Cache.TTLMinutes != 30 {
		t.Fatalf("default ttl = %d", cfg.Cache.TTLMinutes)
	}
	if cfg.Refresh.IntervalMinutes != 60 {
		t.Fatalf("default refresh = %d", cfg.Refresh.IntervalMinutes)
	}
	if cfg.Training.Source != "synthetic" {
		t.Fatalf("default source = %s", cfg.Training.Source)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"http": {"addr": ":7070"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("addr = %s", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "http:\n  addr: \":9090\"\n")
	t.Setenv("TF_HTTP__ADDR", ":6060")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":6060" {
		t.Fatalf("env override not applied, addr = %s", cfg.HTTP.Addr)
	}
}

func TestValidateRejectsBadHorizon(t *testing.T) {
	path := writeConfig(t, "config.yaml", "horizon:\n  default_horizons: [-1]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative horizon")
	}
}

func TestValidateRejectsEnabledMQTTWithoutBroker(t *testing.T) {
	path := writeConfig(t, "config.yaml", "mqtt:\n  enabled: true\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for mqtt without broker")
	}
}
