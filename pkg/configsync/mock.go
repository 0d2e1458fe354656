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

package configsync

import (
	"context"
	"sync/atomic"
)

// MockTransport is a Transport whose behavior is injected per call. Nil
// function fields echo back reasonable defaults so tests only wire what
// they assert on.
type MockTransport struct {
	FetchConfigFunc    func(ctx context.Context) ([]byte, error)
	UpdateConfigFunc   func(ctx context.Context, snapshot []byte) ([]byte, error)
	FetchDefaultsFunc  func(ctx context.Context) ([]byte, error)
	FetchSchemaFunc    func(ctx context.Context) ([]byte, error)
	ApplySelectionFunc func(ctx context.Context, field string, value any) ([]byte, error)
	ExportConfigFunc   func(ctx context.Context) ([]byte, error)

	fetchCalls  atomic.Int64
	updateCalls atomic.Int64
	applyCalls  atomic.Int64
}

// NewMockTransport creates a MockTransport with default echo behavior.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) FetchConfig(ctx context.Context) ([]byte, error) {
	m.fetchCalls.Add(1)
	if m.FetchConfigFunc != nil {
		return m.FetchConfigFunc(ctx)
	}

	return []byte("{}"), nil
}

func (m *MockTransport) UpdateConfig(ctx context.Context, snapshot []byte) ([]byte, error) {
	m.updateCalls.Add(1)
	if m.UpdateConfigFunc != nil {
		return m.UpdateConfigFunc(ctx, snapshot)
	}

	return snapshot, nil
}

func (m *MockTransport) FetchDefaults(ctx context.Context) ([]byte, error) {
	if m.FetchDefaultsFunc != nil {
		return m.FetchDefaultsFunc(ctx)
	}

	return []byte("{}"), nil
}

func (m *MockTransport) FetchSchema(ctx context.Context) ([]byte, error) {
	if m.FetchSchemaFunc != nil {
		return m.FetchSchemaFunc(ctx)
	}

	return []byte("{}"), nil
}

func (m *MockTransport) ApplySelection(ctx context.Context, field string, value any) ([]byte, error) {
	m.applyCalls.Add(1)
	if m.ApplySelectionFunc != nil {
		return m.ApplySelectionFunc(ctx, field, value)
	}

	return []byte("{}"), nil
}

func (m *MockTransport) ExportConfig(ctx context.Context) ([]byte, error) {
	if m.ExportConfigFunc != nil {
		return m.ExportConfigFunc(ctx)
	}

	return []byte("{}"), nil
}

// FetchCalls returns how many times FetchConfig was invoked.
func (m *MockTransport) FetchCalls() int64 { return m.fetchCalls.Load() }

// UpdateCalls returns how many times UpdateConfig was invoked.
func (m *MockTransport) UpdateCalls() int64 { return m.updateCalls.Load() }

// ApplyCalls returns how many times ApplySelection was invoked.
func (m *MockTransport) ApplyCalls() int64 { return m.applyCalls.Load() }
