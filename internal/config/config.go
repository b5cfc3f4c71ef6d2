package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device      string        `yaml:"device"`
	Output      string        `yaml:"output"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	Log         LogConfig     `yaml:"log"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Redis       RedisConfig   `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the /metrics endpoint
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables publishing
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Encoding string `yaml:"encoding"` // json or msgpack
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Output:      "text",
		ScanTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redis: RedisConfig{
			Channel:  "pokit_readings",
			Encoding: "json",
		},
	}
}
