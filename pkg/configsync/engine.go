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

// Package configsync maintains an optimistic local shadow of the worker's
// configuration tree. Edits land locally first, collapse through a
// trailing-edge debounce into one push, and every push carries a generation
// ticket so out-of-order responses can never roll the shadow back.
package configsync

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/trainkit/shell/pkg/constants"
	"github.com/trainkit/shell/pkg/logger"
	"github.com/trainkit/shell/pkg/metrics"
)

// Engine owns the config shadow. All access goes through its methods; the
// snapshot is never handed out for direct mutation, which is what keeps the
// dirty flag and generation counter honest.
type Engine struct {
	transport Transport
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	snapshot []byte
	dirty    bool
	closed   bool
	lastErr  error

	// generation increases with every issued push or load. A response is
	// applied only if its captured generation still equals the current one.
	generation uint64

	// staleDiscards counts responses dropped by the generation gate. A
	// designed outcome, not a fault; counted so it stays observable.
	staleDiscards uint64

	debounce       *time.Timer
	debounceWindow time.Duration
}

// NewEngine creates an Engine over the given transport. The snapshot starts
// empty; call Load before reading fields.
func NewEngine(transport Transport) *Engine {
	return &Engine{
		transport:      transport,
		logger:         logger.For(logger.ComponentConfigSync),
		snapshot:       []byte("{}"),
		debounceWindow: constants.ConfigPushDebounce,
	}
}

// Load fetches the worker's full configuration and replaces the shadow
// wholesale. Any pending debounced push from a prior session is cancelled;
// dirty and error state clear. A load supersedes in-flight pushes through
// the same generation gate as everything else.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	e.cancelDebounceLocked()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	body, err := e.transport.FetchConfig(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.lastErr = err

		return err
	}

	if gen != e.generation {
		e.staleDiscards++

		return nil
	}

	e.snapshot = body
	e.dirty = false
	e.lastErr = nil

	return nil
}

// LoadDefaults replaces the shadow with the worker's factory defaults,
// under the same rules as Load.
func (e *Engine) LoadDefaults(ctx context.Context) error {
	e.mu.Lock()
	e.cancelDebounceLocked()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	body, err := e.transport.FetchDefaults(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.lastErr = err

		return err
	}

	if gen != e.generation {
		e.staleDiscards++

		return nil
	}

	e.snapshot = body
	e.dirty = true
	e.lastErr = nil

	return nil
}

// GetField returns the value at the dot-separated path, reporting absence
// when any intermediate segment is missing.
func (e *Engine) GetField(path string) (gjson.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := gjson.GetBytes(e.snapshot, path)

	return result, result.Exists()
}

// SetField writes the value at the dot-separated path, auto-creating
// missing intermediate containers, marks the shadow dirty, clears the last
// error, and (re)arms the trailing-edge debounce. A burst of edits inside
// the window collapses to a single push after the last one.
func (e *Engine) SetField(path string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := sjson.SetBytes(e.snapshot, path, value)
	if err != nil {
		e.lastErr = err

		return err
	}

	e.snapshot = updated
	e.dirty = true
	e.lastErr = nil
	e.armDebounceLocked()

	return nil
}

// armDebounceLocked restarts the debounce timer. Caller holds e.mu.
func (e *Engine) armDebounceLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
	}

	e.debounce = time.AfterFunc(e.debounceWindow, func() {
		if err := e.Push(context.Background()); err != nil {
			e.logger.Warnf("debounced push failed: %v", err)
		}
	})
}

// cancelDebounceLocked stops any pending debounced push. Caller holds e.mu.
func (e *Engine) cancelDebounceLocked() {
	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
}

// Push sends the full snapshot to the worker and applies the reconciled
// response, but only if no newer push or load was issued while it was in
// flight. A superseded response is discarded without touching the shadow.
// No-op when the shadow is clean.
func (e *Engine) Push(ctx context.Context) error {
	e.mu.Lock()
	// Stopping the debounce timer cannot catch a callback that already
	// fired; the closed check keeps such a push from reaching the worker.
	if e.closed || !e.dirty {
		e.mu.Unlock()

		return nil
	}

	e.generation++
	gen := e.generation
	snap := append([]byte(nil), e.snapshot...)
	e.mu.Unlock()

	start := time.Now()
	body, err := e.transport.UpdateConfig(ctx, snap)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.lastErr = err
		metrics.RecordConfigPush("failed", time.Since(start))

		return err
	}

	if gen != e.generation {
		e.staleDiscards++
		metrics.RecordConfigPush("stale", time.Since(start))

		return nil
	}

	e.snapshot = body
	e.dirty = false
	e.lastErr = nil
	metrics.RecordConfigPush("applied", time.Since(start))

	return nil
}

// FlushIfDirty cancels the pending debounce and pushes immediately when the
// shadow is dirty. Call it before any operation that needs the worker to
// see the very latest edits (preset switch, save, export).
func (e *Engine) FlushIfDirty(ctx context.Context) error {
	e.mu.Lock()
	e.cancelDebounceLocked()
	dirty := e.dirty
	e.mu.Unlock()

	if !dirty {
		return nil
	}

	return e.Push(ctx)
}

// ApplySelection handles fields whose change fans out into many dependents
// only the worker can recompute (switching the optimizer, for one). The
// local field updates optimistically, then the dedicated recompute
// operation runs immediately, bypassing the debounce; the full response
// replaces the shadow under the usual generation gate. A failed recompute
// leaves the optimistic edit dirty so a later flush still delivers it.
func (e *Engine) ApplySelection(ctx context.Context, path string, value any) error {
	e.mu.Lock()
	e.cancelDebounceLocked()

	updated, err := sjson.SetBytes(e.snapshot, path, value)
	if err != nil {
		e.lastErr = err
		e.mu.Unlock()

		return err
	}
	e.snapshot = updated
	e.dirty = true

	e.generation++
	gen := e.generation
	e.mu.Unlock()

	body, err := e.transport.ApplySelection(ctx, path, value)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.lastErr = err

		return err
	}

	if gen != e.generation {
		e.staleDiscards++

		return nil
	}

	e.snapshot = body
	e.dirty = false
	e.lastErr = nil

	return nil
}

// Export flushes pending edits and returns the fully packed snapshot from
// the worker. The shadow itself is not modified.
func (e *Engine) Export(ctx context.Context) ([]byte, error) {
	if err := e.FlushIfDirty(ctx); err != nil {
		return nil, err
	}

	return e.transport.ExportConfig(ctx)
}

// Close cancels any pending debounced push and marks the engine closed so
// no push runs afterwards, even one whose timer had already fired.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelDebounceLocked()
	e.closed = true
}

// Snapshot returns a copy of the current shadow.
func (e *Engine) Snapshot() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]byte(nil), e.snapshot...)
}

// Dirty reports whether local edits have not yet been pushed.
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.dirty
}

// LastError returns the error recorded by the most recent failed operation,
// or nil. Successful loads and edits clear it.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastErr
}

// Generation returns the current sync ticket value.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.generation
}

// StaleDiscards returns how many responses the generation gate has dropped.
func (e *Engine) StaleDiscards() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.staleDiscards
}
