// Copyright 2025 Trainkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the host shell's own configuration file. This is the
// shell's configuration, not the worker's training configuration; the latter
// is owned by the worker and shadowed by pkg/configsync.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the default path to the shell config file.
const DefaultConfigPath = "shell.yaml"

// WorkerConfig describes how to reach and, unless externally managed, spawn
// the worker process.
type WorkerConfig struct {
	// Port the worker API listens on.
	Port int `yaml:"port"`

	// ExternallyManaged disables spawning and ownership entirely; the shell
	// assumes a worker is already running on Port.
	ExternallyManaged bool `yaml:"externallyManaged"`

	// Script is the worker entrypoint handed to the interpreter.
	Script string `yaml:"script"`

	// WorkingDir is the working directory for the spawned worker.
	WorkingDir string `yaml:"workingDir"`

	// InterpreterSearchPaths are tried in order before falling back to
	// $VIRTUAL_ENV, ./.venv and PATH lookup.
	InterpreterSearchPaths []string `yaml:"interpreterSearchPaths"`

	// ShutdownToken is the shared secret for the graceful-shutdown endpoint.
	ShutdownToken string `yaml:"shutdownToken"`
}

// ShellConfig is the full host-side configuration tree.
type ShellConfig struct {
	Worker WorkerConfig `yaml:"worker"`

	// MetricsPort exposes the shell's own Prometheus endpoint; 0 disables it.
	MetricsPort int `yaml:"metricsPort"`
}

// Load reads the config file at path, applies defaults and environment
// overrides, and returns the result. A missing file is not an error; the
// defaults describe a fully local setup.
func Load(path string) (ShellConfig, error) {
	cfg := ShellConfig{
		Worker: WorkerConfig{
			Port:   8190,
			Script: "web/backend/main.py",
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return ShellConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ShellConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Worker.Port <= 0 || cfg.Worker.Port > 65535 {
		return ShellConfig{}, fmt.Errorf("invalid worker port %d", cfg.Worker.Port)
	}

	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file, matching how the
// worker itself is configured in development setups.
func applyEnvOverrides(cfg *ShellConfig) {
	if v := os.Getenv("SHELL_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Port = port
		}
	}

	if v := os.Getenv("SHELL_WORKER_EXTERNAL"); v != "" {
		if external, err := strconv.ParseBool(v); err == nil {
			cfg.Worker.ExternallyManaged = external
		}
	}

	if v := os.Getenv("OT_SHUTDOWN_TOKEN"); v != "" {
		cfg.Worker.ShutdownToken = v
	}

	if v := os.Getenv("SHELL_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = port
		}
	}
}
