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

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/trainkit/shell/pkg/config"
)

// resolveInterpreter finds a usable worker runtime. Search order: the
// configured search paths, the active virtualenv, a project-local .venv,
// then a plain PATH lookup. Failure is fatal to startup.
func resolveInterpreter(cfg config.WorkerConfig) (string, error) {
	var candidates []string

	candidates = append(candidates, cfg.InterpreterSearchPaths...)

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidates = append(candidates, filepath.Join(venv, venvBinDir(), pythonBinary()))
	}

	workDir := cfg.WorkingDir
	if workDir == "" {
		workDir = "."
	}
	candidates = append(candidates, filepath.Join(workDir, ".venv", venvBinDir(), pythonBinary()))

	for _, candidate := range candidates {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(pythonBinary()); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("python"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: tried %v and PATH", ErrNoInterpreter, candidates)
}

func venvBinDir() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}

	return "bin"
}

func pythonBinary() string {
	if runtime.GOOS == "windows" {
		return "python.exe"
	}

	return "python3"
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}

	return info.Mode()&0111 != 0
}

// workerEnv builds the spawned worker's environment: the shell's own
// environment plus the port and shutdown token the worker must honor.
func workerEnv(cfg config.WorkerConfig) []string {
	env := os.Environ()
	env = append(env, fmt.Sprintf("OT_PORT=%d", cfg.Port))
	if cfg.ShutdownToken != "" {
		env = append(env, "OT_SHUTDOWN_TOKEN="+cfg.ShutdownToken)
	}

	return env
}
