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

// Package sysmonitor samples local CPU and memory utilization. It is the
// fallback metrics source while the worker's system topic is unavailable,
// so the host's resource readout never goes blank during worker restarts.
package sysmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/trainkit/shell/pkg/constants"
	"github.com/trainkit/shell/pkg/logger"
	"github.com/trainkit/shell/pkg/models"
)

const bytesPerGB = 1024 * 1024 * 1024

// Monitor periodically samples host utilization and delivers each snapshot
// to a callback. GPU metrics are left empty; only the worker process can
// see accelerator state.
type Monitor struct {
	interval time.Duration
	logger   *zap.SugaredLogger
	emit     func(models.MetricsEvent)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a Monitor emitting one snapshot per sample interval.
func NewMonitor(emit func(models.MetricsEvent)) *Monitor {
	return &Monitor{
		interval: constants.MetricsSampleInterval,
		logger:   logger.For(logger.ComponentSysMonitor),
		emit:     emit,
	}
}

// Start begins sampling in a background goroutine until Stop is called or
// the parent context is cancelled. No-op while already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
}

// Stop cancels sampling and waits for the loop to exit. No-op when not
// running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := Sample(ctx)
			if err != nil {
				m.logger.Debugf("sample failed: %v", err)

				continue
			}

			m.emit(snapshot)
		}
	}
}

// Sample takes one utilization snapshot of the local host.
func Sample(ctx context.Context) (models.MetricsEvent, error) {
	// Interval 0 reports usage since the previous call, so successive
	// samples measure the gap between ticks instead of blocking.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return models.MetricsEvent{}, err
	}

	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.MetricsEvent{}, err
	}

	return models.MetricsEvent{
		CPUPercent: cpuPercent,
		RAMUsedGB:  float64(vm.Used) / bytesPerGB,
		RAMTotalGB: float64(vm.Total) / bytesPerGB,
		RAMPercent: vm.UsedPercent,
		GPUs:       []models.GPUMetrics{},
	}, nil
}
