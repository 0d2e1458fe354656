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

// Package constants holds timing and endpoint constants shared across the
// supervisor, channel, and configsync packages.
package constants

import "time"

const (
	// DefaultWorkerPort is the port the worker API listens on.
	DefaultWorkerPort = 8190

	// WorkerHealthPath is the bounded-probe health endpoint.
	WorkerHealthPath = "/api/health"

	// WorkerShutdownPath triggers a graceful worker shutdown.
	WorkerShutdownPath = "/api/shutdown"

	// WorkerConfigPath serves GET (current) and PUT (update) of the full config tree.
	WorkerConfigPath = "/api/config"

	// WorkerConfigDefaultsPath serves the factory-default config tree.
	WorkerConfigDefaultsPath = "/api/config/defaults"

	// WorkerConfigSchemaPath serves per-field type metadata.
	WorkerConfigSchemaPath = "/api/config/schema"

	// WorkerConfigOptimizerPath applies an optimizer selection and recomputes
	// every dependent field on the worker side.
	WorkerConfigOptimizerPath = "/api/config/optimizer"

	// WorkerConfigExportPath exports the fully packed config snapshot.
	WorkerConfigExportPath = "/api/config/export"

	// ShutdownTokenHeader carries the shared shutdown secret, when configured.
	ShutdownTokenHeader = "X-Shutdown-Token"
)

const (
	// HealthProbeTimeout bounds a single health probe, independent of the
	// overall retry budget.
	HealthProbeTimeout = 2 * time.Second

	// DefaultHealthRetryInterval spaces consecutive health probes.
	DefaultHealthRetryInterval = 500 * time.Millisecond

	// DefaultHealthMaxRetries bounds the startup health wait (about one minute).
	DefaultHealthMaxRetries = 120

	// ShutdownSignalTimeout bounds the Phase 1 graceful-shutdown request.
	ShutdownSignalTimeout = 2 * time.Second

	// DefaultShutdownTimeout is the ceiling for Phase 2 liveness polling
	// before Phase 3 escalates to a forced tree kill.
	DefaultShutdownTimeout = 10 * time.Second

	// ShutdownLivenessPollInterval spaces Phase 2 liveness checks.
	ShutdownLivenessPollInterval = 250 * time.Millisecond
)
