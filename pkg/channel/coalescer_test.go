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

package channel

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Coalescer", func() {
	var (
		mu      sync.Mutex
		applied []int
	)

	appliedValues := func() []int {
		mu.Lock()
		defer mu.Unlock()

		return append([]int(nil), applied...)
	}

	BeforeEach(func() {
		mu.Lock()
		applied = nil
		mu.Unlock()
	})

	It("collapses a burst within one frame to a single apply of the last value", func() {
		c := NewCoalescer(30*time.Millisecond, func(v int) {
			mu.Lock()
			applied = append(applied, v)
			mu.Unlock()
		})
		defer c.Close()

		for i := 1; i <= 5; i++ {
			c.Offer(i)
		}

		Eventually(appliedValues, time.Second).Should(Equal([]int{5}))
		// No spurious second apply after the slot drains.
		Consistently(appliedValues, 100*time.Millisecond).Should(Equal([]int{5}))
	})

	It("applies values from separate frames separately", func() {
		c := NewCoalescer(20*time.Millisecond, func(v int) {
			mu.Lock()
			applied = append(applied, v)
			mu.Unlock()
		})
		defer c.Close()

		c.Offer(1)
		Eventually(appliedValues, time.Second).Should(Equal([]int{1}))

		c.Offer(2)
		Eventually(appliedValues, time.Second).Should(Equal([]int{1, 2}))
	})

	It("never applies after Close returns", func() {
		c := NewCoalescer(10*time.Millisecond, func(v int) {
			mu.Lock()
			applied = append(applied, v)
			mu.Unlock()
		})

		c.Offer(1)
		c.Close()
		before := appliedValues()

		c.Offer(2)
		Consistently(appliedValues, 50*time.Millisecond).Should(Equal(before))
	})

	It("tolerates a second Close", func() {
		c := NewCoalescer(10*time.Millisecond, func(int) {})
		c.Close()
		c.Close()
	})
})
