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
)

// Coalescer keeps only the most recent value of a high-frequency stream and
// applies it at most once per frame interval. A burst of offers within one
// frame produces exactly one applied update carrying the last value.
//
// Close is synchronous: once it returns, apply will not be invoked again.
type Coalescer[T any] struct {
	apply    func(T)
	interval time.Duration

	mu     sync.Mutex
	latest T
	filled bool

	done     chan struct{}
	finished sync.WaitGroup
	stopOnce sync.Once
}

// NewCoalescer starts a coalescer applying at the given frame interval.
func NewCoalescer[T any](interval time.Duration, apply func(T)) *Coalescer[T] {
	c := &Coalescer[T]{
		apply:    apply,
		interval: interval,
		done:     make(chan struct{}),
	}

	c.finished.Add(1)
	go c.loop()

	return c
}

// Offer overwrites the single-slot buffer with the latest value.
func (c *Coalescer[T]) Offer(v T) {
	c.mu.Lock()
	c.latest = v
	c.filled = true
	c.mu.Unlock()
}

func (c *Coalescer[T]) loop() {
	defer c.finished.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if !c.filled {
				c.mu.Unlock()

				continue
			}
			v := c.latest
			c.filled = false
			var zero T
			c.latest = zero
			c.mu.Unlock()

			c.apply(v)
		}
	}
}

// Close cancels the frame timer and waits for the apply loop to exit. Any
// still-buffered value is dropped; progress that never rendered is obsolete
// by definition.
func (c *Coalescer[T]) Close() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.finished.Wait()
}
