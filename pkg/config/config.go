// Package config loads the YAML configuration files the server and
// worker binaries accept with --config, in addition to their
// individual command-line flags. A flag set explicitly on the command
// line always overrides the same field loaded from file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskgrid/taskgrid/pkg/log"
)

// ServerConfig configures the control-plane bootstrap gate.
type ServerConfig struct {
	ListenAddress string `yaml:"listenAddress"`
	LogLevel      string `yaml:"logLevel"`
	LogJSON       bool   `yaml:"logJSON"`
	MetricsAddr   string `yaml:"metricsAddress"`
}

// WorkerConfig configures a worker process.
type WorkerConfig struct {
	ServerAddress string `yaml:"serverAddress"`
	ListenAddress string `yaml:"listenAddress"`
	WorkDir       string `yaml:"workDir"`
	NCpus         uint32 `yaml:"nCpus"`
	ReadyFile     string `yaml:"readyFile,omitempty"`
	LogLevel      string `yaml:"logLevel"`
	LogJSON       bool   `yaml:"logJSON"`
	MetricsAddr   string `yaml:"metricsAddress"`
}

// LoadServerConfig reads and parses a server YAML config file. An
// empty path is not an error; it returns the zero ServerConfig so
// callers can layer flag defaults on top.
func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read server config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse server config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWorkerConfig reads and parses a worker YAML config file.
func LoadWorkerConfig(path string) (WorkerConfig, error) {
	var cfg WorkerConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read worker config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse worker config %s: %w", path, err)
	}
	return cfg, nil
}

// InitLogging wires log.Init from a level/json pair, the same way
// every taskgrid entrypoint does it regardless of which config source
// supplied the values.
func InitLogging(level string, jsonOutput bool) {
	if level == "" {
		level = string(log.InfoLevel)
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}
