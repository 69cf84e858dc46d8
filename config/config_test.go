package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
aprsis:
  callsign: KD8ABC
  passcode: 17060
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APRSIS.Host != "rotate.aprs2.net" || cfg.APRSIS.Port != 14580 {
		t.Errorf("aprsis defaults = %s:%d", cfg.APRSIS.Host, cfg.APRSIS.Port)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("listen default = %s", cfg.Server.Listen)
	}
	if cfg.Dedup.WindowSeconds != 30 {
		t.Errorf("dedup window default = %d", cfg.Dedup.WindowSeconds)
	}
	if cfg.Store.BatchSize != 200 || cfg.Store.QueueSize != 10000 {
		t.Errorf("store defaults = batch %d queue %d", cfg.Store.BatchSize, cfg.Store.QueueSize)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
aprsis:
  host: euro.aprs2.net
  port: 10152
  callsign: KD8ABC
  passcode: 17060
  latitude: 51.5
  longitude: -0.1
  range_km: 250
server:
  listen: ":9000"
  queue_size: 512
mqtt:
  enabled: true
  broker: broker.local
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APRSIS.Host != "euro.aprs2.net" || cfg.APRSIS.Port != 10152 {
		t.Errorf("aprsis = %s:%d", cfg.APRSIS.Host, cfg.APRSIS.Port)
	}
	if cfg.APRSIS.RangeKM != 250 {
		t.Errorf("range = %d", cfg.APRSIS.RangeKM)
	}
	if cfg.Server.QueueSize != 512 {
		t.Errorf("queue size = %d", cfg.Server.QueueSize)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "broker.local" || cfg.MQTT.Port != 1883 {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "aprsis: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
