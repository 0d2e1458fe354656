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

package supervisor

import "errors"

var (
	// ErrNoInterpreter means no usable runtime was found in any search path.
	// Fatal to startup.
	ErrNoInterpreter = errors.New("no usable worker interpreter found")

	// ErrSpawnFailure means the worker process could not be created.
	// Fatal to startup.
	ErrSpawnFailure = errors.New("failed to spawn worker process")

	// ErrHealthTimeout means the worker never became reachable within the
	// retry budget. Fatal to startup.
	ErrHealthTimeout = errors.New("worker did not become healthy in time")

	// ErrShutdownTimeout means graceful shutdown did not complete in time and
	// was escalated to a forced tree kill. Non-fatal; the worker is gone
	// either way.
	ErrShutdownTimeout = errors.New("graceful shutdown timed out, worker was force-killed")

	// ErrExternallyManaged is returned by operations that would take process
	// ownership while the externally-managed override is set.
	ErrExternallyManaged = errors.New("worker is externally managed")
)
