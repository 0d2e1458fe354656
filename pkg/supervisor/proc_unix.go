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

//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// setSysProcAttr puts the worker in its own process group so the whole tree
// can be signalled at once.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessTree forcibly terminates the process and all descendants.
// Signalling the process group covers workers we spawned ourselves; for
// stale listeners from a previous session (not our group) it walks the
// child tree explicitly.
func killProcessTree(pid int) error {
	// Fast path: the process leads its own group (we spawn with Setpgid).
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid == pid {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// Already gone.
		return nil
	}

	children, err := proc.Children()
	if err == nil {
		for _, child := range children {
			_ = killProcessTree(int(child.Pid))
		}
	}

	return proc.Kill()
}
