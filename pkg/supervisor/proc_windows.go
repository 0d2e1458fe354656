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

//go:build windows

package supervisor

import (
	"fmt"
	"os/exec"
	"strconv"
)

// setSysProcAttr is a no-op on Windows; tree termination goes through
// taskkill instead of process groups.
func setSysProcAttr(cmd *exec.Cmd) {}

// killProcessTree forcibly terminates the process and all descendants.
func killProcessTree(pid int) error {
	out, err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("taskkill failed for pid %d: %s: %w", pid, out, err)
	}

	return nil
}
