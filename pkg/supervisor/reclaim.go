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
	"context"
	"fmt"
	"time"

	gnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// reclaimPort terminates whatever process is still listening on the target
// port. The port is exclusively ours; an existing listener is a stale
// leftover from a previous session, never a peer.
func reclaimPort(ctx context.Context, port int, log *zap.SugaredLogger) error {
	pid, err := findListenerPid(ctx, port)
	if err != nil {
		return err
	}
	if pid == 0 {
		return nil
	}

	log.Warnf("Reclaiming port %d from stale process (pid %d)", port, pid)

	if err := killProcessTree(int(pid)); err != nil {
		return fmt.Errorf("failed to kill stale listener (pid %d): %w", pid, err)
	}

	// Give the kernel a moment to release the socket before we spawn.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stale, err := findListenerPid(ctx, port)
		if err != nil || stale == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	return fmt.Errorf("port %d still in use after reclaim", port)
}

// findListenerPid returns the pid of the process listening on port, or 0.
func findListenerPid(ctx context.Context, port int) (int32, error) {
	conns, err := gnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("failed to list connections: %w", err)
	}

	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port == uint32(port) && conn.Pid > 0 {
			return conn.Pid, nil
		}
	}

	return 0, nil
}
