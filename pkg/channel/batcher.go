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
	"strings"
	"sync"
	"time"
)

// Batcher accumulates textual fragments and flushes them to the consumer as
// one joined chunk at a fixed interval. Close flushes the remaining buffer
// synchronously so no tail output is lost.
type Batcher struct {
	flush    func(chunk string)
	interval time.Duration

	mu  sync.Mutex
	buf []string

	done     chan struct{}
	finished sync.WaitGroup
	stopOnce sync.Once
}

// NewBatcher starts a batcher flushing at the given interval.
func NewBatcher(interval time.Duration, flush func(chunk string)) *Batcher {
	b := &Batcher{
		flush:    flush,
		interval: interval,
		done:     make(chan struct{}),
	}

	b.finished.Add(1)
	go b.loop()

	return b
}

// Append adds one fragment to the accumulating buffer.
func (b *Batcher) Append(fragment string) {
	b.mu.Lock()
	b.buf = append(b.buf, fragment)
	b.mu.Unlock()
}

func (b *Batcher) loop() {
	defer b.finished.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.flushPending()
		}
	}
}

// flushPending drains the buffer and delivers it as one chunk.
func (b *Batcher) flushPending() {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()

		return
	}
	chunk := strings.Join(b.buf, "\n")
	b.buf = nil
	b.mu.Unlock()

	b.flush(chunk)
}

// Close stops the flush timer, waits for the loop to exit, and flushes any
// remaining buffered content synchronously.
func (b *Batcher) Close() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
	b.finished.Wait()

	b.flushPending()
}
