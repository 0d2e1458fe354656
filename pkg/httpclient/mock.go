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

package httpclient

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

// MockHTTPClient is a configurable HTTPClient for tests. Each method records
// its call count and delegates to the corresponding function field when set.
type MockHTTPClient struct {
	DoFunc           func(req *http.Request) (*http.Response, error)
	GetWithBodyFunc  func(ctx context.Context, url string) (*http.Response, []byte, error)
	PostWithBodyFunc func(ctx context.Context, url string, payload []byte, headers map[string]string) (*http.Response, []byte, error)
	PutWithBodyFunc  func(ctx context.Context, url string, payload []byte) (*http.Response, []byte, error)

	getCalls  atomic.Int64
	postCalls atomic.Int64
	putCalls  atomic.Int64

	mu       sync.Mutex
	getURLs  []string
	postURLs []string
}

// NewMockHTTPClient creates a MockHTTPClient whose unset methods fail with
// a connection-refused style error.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.DoFunc != nil {
		return m.DoFunc(req)
	}

	return nil, errConnectionRefused
}

func (m *MockHTTPClient) GetWithBody(ctx context.Context, url string) (*http.Response, []byte, error) {
	m.getCalls.Add(1)
	m.mu.Lock()
	m.getURLs = append(m.getURLs, url)
	m.mu.Unlock()

	if m.GetWithBodyFunc != nil {
		return m.GetWithBodyFunc(ctx, url)
	}

	return nil, nil, errConnectionRefused
}

func (m *MockHTTPClient) PostWithBody(ctx context.Context, url string, payload []byte, headers map[string]string) (*http.Response, []byte, error) {
	m.postCalls.Add(1)
	m.mu.Lock()
	m.postURLs = append(m.postURLs, url)
	m.mu.Unlock()

	if m.PostWithBodyFunc != nil {
		return m.PostWithBodyFunc(ctx, url, payload, headers)
	}

	return nil, nil, errConnectionRefused
}

func (m *MockHTTPClient) PutWithBody(ctx context.Context, url string, payload []byte) (*http.Response, []byte, error) {
	m.putCalls.Add(1)

	if m.PutWithBodyFunc != nil {
		return m.PutWithBodyFunc(ctx, url, payload)
	}

	return nil, nil, errConnectionRefused
}

// GetCalls returns the number of GetWithBody invocations.
func (m *MockHTTPClient) GetCalls() int64 { return m.getCalls.Load() }

// PostCalls returns the number of PostWithBody invocations.
func (m *MockHTTPClient) PostCalls() int64 { return m.postCalls.Load() }

// PutCalls returns the number of PutWithBody invocations.
func (m *MockHTTPClient) PutCalls() int64 { return m.putCalls.Load() }

// GetURLs returns a copy of the URLs passed to GetWithBody.
func (m *MockHTTPClient) GetURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.getURLs...)
}

// PostURLs returns a copy of the URLs passed to PostWithBody.
func (m *MockHTTPClient) PostURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.postURLs...)
}
