package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the optional deploy.yaml overriding pipeline defaults. All
// fields are optional; zero values leave the config untouched.
type Manifest struct {
	Packages []string `yaml:"packages"`
	AppPort  int      `yaml:"app_port"`
	Gunicorn struct {
		Workers int `yaml:"workers"`
	} `yaml:"gunicorn"`
	ServiceUser string `yaml:"service_user"`
	Health      struct {
		Interval string `yaml:"interval"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"health"`
}

func applyManifest(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	if len(m.Packages) > 0 {
		cfg.Packages = m.Packages
	}
	if m.AppPort != 0 {
		cfg.AppPort = m.AppPort
	}
	if m.Gunicorn.Workers != 0 {
		cfg.GunicornWorkers = m.Gunicorn.Workers
	}
	if m.ServiceUser != "" {
		cfg.ServiceUser = m.ServiceUser
	}
	if m.Health.Interval != "" {
		d, err := time.ParseDuration(m.Health.Interval)
		if err != nil {
			return fmt.Errorf("invalid health.interval: %w", err)
		}
		cfg.HealthInterval = d
	}
	if m.Health.Timeout != "" {
		d, err := time.ParseDuration(m.Health.Timeout)
		if err != nil {
			return fmt.Errorf("invalid health.timeout: %w", err)
		}
		cfg.HealthTimeout = d
	}
	return nil
}
