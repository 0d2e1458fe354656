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

package sysmonitor

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/trainkit/shell/pkg/models"
)

var _ = Describe("Sample", func() {
	It("reports plausible host utilization", func() {
		snapshot, err := Sample(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(snapshot.RAMTotalGB).To(BeNumerically(">", 0))
		Expect(snapshot.RAMUsedGB).To(BeNumerically(">", 0))
		Expect(snapshot.RAMUsedGB).To(BeNumerically("<=", snapshot.RAMTotalGB))
		Expect(snapshot.RAMPercent).To(BeNumerically(">=", 0))
		Expect(snapshot.CPUPercent).To(BeNumerically(">=", 0))
		Expect(snapshot.GPUs).NotTo(BeNil())
	})
})

var _ = Describe("Monitor", func() {
	It("emits snapshots until stopped", func() {
		var emitted atomic.Int64
		m := NewMonitor(func(models.MetricsEvent) {
			emitted.Add(1)
		})
		m.interval = 20 * time.Millisecond

		m.Start(context.Background())
		Eventually(emitted.Load, 2*time.Second).Should(BeNumerically(">=", 2))

		m.Stop()
		after := emitted.Load()
		Consistently(emitted.Load, 100*time.Millisecond).Should(Equal(after))
	})

	It("tolerates Stop without Start and repeated Stop", func() {
		m := NewMonitor(func(models.MetricsEvent) {})
		m.Stop()

		m.Start(context.Background())
		m.Stop()
		m.Stop()
	})

	It("ignores a second Start while running", func() {
		m := NewMonitor(func(models.MetricsEvent) {})
		m.Start(context.Background())
		m.Start(context.Background())
		m.Stop()
	})
})
