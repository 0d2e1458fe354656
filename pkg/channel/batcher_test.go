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

var _ = Describe("Batcher", func() {
	var (
		mu     sync.Mutex
		chunks []string
	)

	flushed := func() []string {
		mu.Lock()
		defer mu.Unlock()

		return append([]string(nil), chunks...)
	}

	BeforeEach(func() {
		mu.Lock()
		chunks = nil
		mu.Unlock()
	})

	It("joins fragments accumulated within one interval into a single chunk", func() {
		b := NewBatcher(30*time.Millisecond, func(chunk string) {
			mu.Lock()
			chunks = append(chunks, chunk)
			mu.Unlock()
		})
		defer b.Close()

		b.Append("one")
		b.Append("two")
		b.Append("three")

		Eventually(flushed, time.Second).Should(Equal([]string{"one\ntwo\nthree"}))
	})

	It("skips flushes while the buffer is empty", func() {
		b := NewBatcher(10*time.Millisecond, func(chunk string) {
			mu.Lock()
			chunks = append(chunks, chunk)
			mu.Unlock()
		})
		defer b.Close()

		Consistently(flushed, 100*time.Millisecond).Should(BeEmpty())
	})

	It("flushes the remaining tail synchronously on Close", func() {
		b := NewBatcher(time.Hour, func(chunk string) {
			mu.Lock()
			chunks = append(chunks, chunk)
			mu.Unlock()
		})

		b.Append("tail")
		b.Close()

		// No Eventually here: the tail must be delivered before Close returns.
		Expect(flushed()).To(Equal([]string{"tail"}))
	})
})
