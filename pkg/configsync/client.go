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
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/trainkit/shell/pkg/constants"
	"github.com/trainkit/shell/pkg/httpclient"
)

// Transport is the request/response surface the engine needs from the
// worker. The worker owns the authoritative configuration; every call
// returns the full reconciled tree as raw JSON.
type Transport interface {
	// FetchConfig returns the worker's current full configuration tree.
	FetchConfig(ctx context.Context) ([]byte, error)

	// UpdateConfig sends the full snapshot and returns the reconciled tree,
	// which may contain server-computed defaults.
	UpdateConfig(ctx context.Context, snapshot []byte) ([]byte, error)

	// FetchDefaults returns the factory-default configuration tree.
	FetchDefaults(ctx context.Context) ([]byte, error)

	// FetchSchema returns per-field type metadata.
	FetchSchema(ctx context.Context) ([]byte, error)

	// ApplySelection applies a wide-effect field change (e.g. an optimizer
	// switch) and returns the full tree with all dependents recomputed.
	ApplySelection(ctx context.Context, field string, value any) ([]byte, error)

	// ExportConfig returns the fully packed, self-contained snapshot.
	ExportConfig(ctx context.Context) ([]byte, error)
}

// WorkerClient implements Transport over the worker's HTTP API.
type WorkerClient struct {
	baseURL string
	client  httpclient.HTTPClient
}

// NewWorkerClient creates a WorkerClient against the given API root,
// e.g. "http://127.0.0.1:8190".
func NewWorkerClient(baseURL string, client httpclient.HTTPClient) *WorkerClient {
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}

	return &WorkerClient{
		baseURL: baseURL,
		client:  client,
	}
}

func (c *WorkerClient) FetchConfig(ctx context.Context) ([]byte, error) {
	resp, body, err := c.client.GetWithBody(ctx, c.baseURL+constants.WorkerConfigPath)

	return checked("fetch config", resp, body, err)
}

func (c *WorkerClient) UpdateConfig(ctx context.Context, snapshot []byte) ([]byte, error) {
	resp, body, err := c.client.PutWithBody(ctx, c.baseURL+constants.WorkerConfigPath, snapshot)

	return checked("update config", resp, body, err)
}

func (c *WorkerClient) FetchDefaults(ctx context.Context) ([]byte, error) {
	resp, body, err := c.client.GetWithBody(ctx, c.baseURL+constants.WorkerConfigDefaultsPath)

	return checked("fetch defaults", resp, body, err)
}

func (c *WorkerClient) FetchSchema(ctx context.Context) ([]byte, error) {
	resp, body, err := c.client.GetWithBody(ctx, c.baseURL+constants.WorkerConfigSchemaPath)

	return checked("fetch schema", resp, body, err)
}

func (c *WorkerClient) ApplySelection(ctx context.Context, field string, value any) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"field": field,
		"value": value,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode selection: %w", err)
	}

	resp, body, err := c.client.PostWithBody(ctx, c.baseURL+constants.WorkerConfigOptimizerPath, payload, nil)

	return checked("apply selection", resp, body, err)
}

func (c *WorkerClient) ExportConfig(ctx context.Context) ([]byte, error) {
	resp, body, err := c.client.PostWithBody(ctx, c.baseURL+constants.WorkerConfigExportPath, nil, nil)

	return checked("export config", resp, body, err)
}

// checked normalizes transport and status errors into one error path.
func checked(op string, resp *http.Response, body []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s: worker returned %d: %s", op, resp.StatusCode, body)
	}

	return body, nil
}
