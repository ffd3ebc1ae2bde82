// Package config defines knit's on-disk configuration shape and how to load
// it.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for knit's configuration file.
type Config struct {
	Mesh    Mesh    `yaml:"Mesh"`
	HTTP    HTTP    `yaml:"HTTP"`
	Cache   Cache   `yaml:"Cache"`
	Log     Logger  `yaml:"Log"`
	Metrics Metrics `yaml:"Metrics"`
}

// Default returns a Config with every field set to a usable value, suitable
// as a base that a loaded file's fields are merged into.
func Default() Config {
	return Config{
		Mesh: Mesh{
			Host:          "0.0.0.0",
			BasePort:      7300,
			PortRange:     1000,
			AcceptTimeout: time.Second,
			DialTimeout:   5 * time.Second,
		},
		HTTP: HTTP{
			Frontend: Address{Host: "0.0.0.0", Port: 8080},
			Backend:  Backend{Scheme: "http", Port: 80},
		},
		Cache: Cache{
			Backend: "memory",
		},
		Log: Logger{
			LogEncoding: "console",
			LogLevel:    "info",
		},
		Metrics: Metrics{
			Host: "127.0.0.1",
			Port: 9090,
		},
	}
}

// Validate checks the Mesh, HTTP, Cache and Log sections in turn. Metrics
// has no Validate method and is not checked.
func (c Config) Validate() error {
	if err := c.Mesh.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads and validates the config file at path. Unknown fields are
// rejected so a typo in the file surfaces immediately rather than silently
// falling back to a default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}
