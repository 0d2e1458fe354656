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
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/trainkit/shell/pkg/logger"
	"go.uber.org/zap"
)

var (
	// defaultTransport is a shared transport with connection pooling.
	// The worker always runs on loopback, so dial timeouts can be tight.
	defaultTransport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   250 * time.Millisecond,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 10,
		DisableCompression:  true,
	}

	// sharedClient is a reusable client for quick local requests
	sharedClient = &http.Client{
		Transport: defaultTransport,
	}
)

// HTTPClient interface for making HTTP requests to the worker
type HTTPClient interface {
	// Do executes an HTTP request and returns the response
	Do(req *http.Request) (*http.Response, error)

	// GetWithBody performs a GET request and returns the response with body bytes
	GetWithBody(ctx context.Context, url string) (*http.Response, []byte, error)

	// PostWithBody performs a POST request with the given payload and returns
	// the response with body bytes
	PostWithBody(ctx context.Context, url string, payload []byte, headers map[string]string) (*http.Response, []byte, error)

	// PutWithBody performs a PUT request with the given payload and returns
	// the response with body bytes
	PutWithBody(ctx context.Context, url string, payload []byte) (*http.Response, []byte, error)
}

// DefaultHTTPClient is the default implementation of HTTPClient
type DefaultHTTPClient struct {
	logger *zap.SugaredLogger
}

// NewDefaultHTTPClient creates a new DefaultHTTPClient
func NewDefaultHTTPClient() *DefaultHTTPClient {
	return &DefaultHTTPClient{
		logger: logger.For(logger.ComponentHTTPClient),
	}
}

// Do performs the HTTP request using the shared pooled client. Timeouts come
// from the request context; callers own the deadline.
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return sharedClient.Do(req)
}

// GetWithBody performs a GET request and returns the response with body
func (c *DefaultHTTPClient) GetWithBody(ctx context.Context, url string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	return c.execute(req)
}

// PostWithBody performs a POST request and returns the response with body
func (c *DefaultHTTPClient) PostWithBody(ctx context.Context, url string, payload []byte, headers map[string]string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.execute(req)
}

// PutWithBody performs a PUT request and returns the response with body
func (c *DefaultHTTPClient) PutWithBody(ctx context.Context, url string, payload []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.execute(req)
}

// execute runs the request and drains the body.
func (c *DefaultHTTPClient) execute(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute request for %s: %w", req.URL, err)
	}
	if resp == nil {
		return nil, nil, fmt.Errorf("received nil response for %s", req.URL)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("failed to read response body for %s: %w", req.URL, err)
	}

	return resp, body, nil
}
