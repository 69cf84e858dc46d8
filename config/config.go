// Package config loads the application configuration from YAML.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// APRSISConfig describes the upstream APRS-IS session.
type APRSISConfig struct {
	Host     string  `yaml:"host"`
	Port     int     `yaml:"port"`
	Callsign string  `yaml:"callsign"`
	Passcode int     `yaml:"passcode"`
	// Latitude/Longitude plus RangeKM build the r/<lat>/<lon>/<range>
	// server-side filter; leave RangeKM at 0 for the default feed.
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	RangeKM   int     `yaml:"range_km"`
}

// ServerConfig describes the WebSocket listener.
type ServerConfig struct {
	Listen    string `yaml:"listen"`
	QueueSize int    `yaml:"queue_size"`
}

// StoreConfig describes the SQLite persistence sink.
type StoreConfig struct {
	Enabled                bool   `yaml:"enabled"`
	DBPath                 string `yaml:"db_path"`
	QueueSize              int    `yaml:"queue_size"`
	BatchSize              int    `yaml:"batch_size"`
	BatchIntervalMS        int    `yaml:"batch_interval_ms"`
	BusyTimeoutMS          int    `yaml:"busy_timeout_ms"`
	RetentionSeconds       int    `yaml:"retention_seconds"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
}

// MQTTConfig describes the optional broker bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// DedupConfig describes duplicate-packet suppression.
type DedupConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowSeconds int  `yaml:"window_seconds"`
}

// StatsConfig describes the periodic statistics display.
type StatsConfig struct {
	DisplayIntervalSeconds int `yaml:"display_interval_seconds"`
}

// Config is the root configuration document.
type Config struct {
	APRSIS APRSISConfig `yaml:"aprsis"`
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	Dedup  DedupConfig  `yaml:"dedup"`
	Stats  StatsConfig  `yaml:"stats"`
}

// Load reads and parses the YAML config at path, then applies defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APRSIS.Host == "" {
		c.APRSIS.Host = "rotate.aprs2.net"
	}
	if c.APRSIS.Port == 0 {
		c.APRSIS.Port = 14580
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 256
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "data/aprswx.db"
	}
	if c.Store.QueueSize <= 0 {
		c.Store.QueueSize = 10000
	}
	if c.Store.BatchSize <= 0 {
		c.Store.BatchSize = 200
	}
	if c.Store.BatchIntervalMS <= 0 {
		c.Store.BatchIntervalMS = 500
	}
	if c.Store.BusyTimeoutMS <= 0 {
		c.Store.BusyTimeoutMS = 5000
	}
	if c.Store.RetentionSeconds <= 0 {
		c.Store.RetentionSeconds = 86400
	}
	if c.Store.CleanupIntervalSeconds <= 0 {
		c.Store.CleanupIntervalSeconds = 3600
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "aprswx"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "aprs"
	}
	if c.Dedup.WindowSeconds <= 0 {
		c.Dedup.WindowSeconds = 30
	}
	if c.Stats.DisplayIntervalSeconds <= 0 {
		c.Stats.DisplayIntervalSeconds = 60
	}
}

// Print logs a one-look summary of the effective configuration. The passcode
// is never printed.
func (c *Config) Print() {
	log.Printf("config: aprs-is %s:%d callsign=%s", c.APRSIS.Host, c.APRSIS.Port, c.APRSIS.Callsign)
	if c.APRSIS.RangeKM > 0 {
		log.Printf("config: range filter r/%.3f/%.3f/%d", c.APRSIS.Latitude, c.APRSIS.Longitude, c.APRSIS.RangeKM)
	}
	log.Printf("config: websocket listen %s (queue=%d)", c.Server.Listen, c.Server.QueueSize)
	log.Printf("config: store enabled=%v path=%s", c.Store.Enabled, c.Store.DBPath)
	log.Printf("config: mqtt enabled=%v broker=%s:%d", c.MQTT.Enabled, c.MQTT.Broker, c.MQTT.Port)
	log.Printf("config: dedup enabled=%v window=%ds", c.Dedup.Enabled, c.Dedup.WindowSeconds)
}
