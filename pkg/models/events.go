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

// Package models defines the tagged event records the worker pushes over its
// streaming topics, and the decoder that turns raw frames into them.
package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EventType discriminates the records on a streaming topic.
type EventType string

const (
	// EventProgress carries step/epoch counters for the training run.
	EventProgress EventType = "progress"
	// EventStatus carries a human-readable status line.
	EventStatus EventType = "status"
	// EventSample carries an encoded sample artifact.
	EventSample EventType = "sample"
	// EventSampleProgress carries sub-progress of an in-flight sampling operation.
	EventSampleProgress EventType = "sample_progress"
	// EventError is the terminal error record of a training run.
	EventError EventType = "error"
	// EventLog carries one captured backend log line.
	EventLog EventType = "log"
	// EventMetrics carries a resource utilization snapshot.
	EventMetrics EventType = "metrics"
)

// Envelope is the wire form of every streamed record: a discriminator plus a
// type-specific payload.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ProgressEvent mirrors the worker's per-step progress callback.
type ProgressEvent struct {
	Epoch       int `json:"epoch"`
	EpochStep   int `json:"epoch_step"`
	EpochSample int `json:"epoch_sample"`
	GlobalStep  int `json:"global_step"`
	MaxStep     int `json:"max_step"`
	MaxEpoch    int `json:"max_epoch"`
}

// StatusEvent is a textual status line ("loading model", "training", ...).
type StatusEvent struct {
	Text string `json:"text"`
}

// SampleEvent is a generated sample artifact, base64-encoded with a media tag.
type SampleEvent struct {
	FileType string `json:"file_type"`
	Base64   string `json:"base64"`
	Step     int    `json:"step"`
}

// SampleProgressEvent is sub-progress of the auxiliary sampling operation.
type SampleProgressEvent struct {
	Step    int `json:"step"`
	MaxStep int `json:"max_step"`
}

// ErrorEvent is the terminal error record of a run.
type ErrorEvent struct {
	Message string `json:"message"`
}

// LogEvent is one captured log line with its timestamp (seconds since epoch).
type LogEvent struct {
	Text string  `json:"text"`
	Ts   float64 `json:"ts"`
}

// GPUMetrics is the per-accelerator slice of a metrics snapshot.
type GPUMetrics struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	UtilPercent  float64 `json:"util_percent"`
	MemUsedGB    float64 `json:"mem_used_gb"`
	MemTotalGB   float64 `json:"mem_total_gb"`
	TemperatureC float64 `json:"temperature_c"`
}

// MetricsEvent is a periodic resource utilization snapshot.
type MetricsEvent struct {
	CPUPercent float64      `json:"cpu_percent"`
	RAMUsedGB  float64      `json:"ram_used_gb"`
	RAMTotalGB float64      `json:"ram_total_gb"`
	RAMPercent float64      `json:"ram_percent"`
	GPUs       []GPUMetrics `json:"gpus"`
}

// DecodeEnvelope parses a raw frame into an Envelope. The payload stays raw
// so callers can defer full decoding until they know they want the record.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("event envelope has no type discriminator")
	}

	return env, nil
}

// DecodeData decodes an envelope payload into the given typed record.
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}

	return out, nil
}

// IsDiscrete reports whether a training-topic record must bypass coalescing
// and apply immediately. Status transitions, artifact notifications and
// terminal errors are one-shot; the progress and sample-progress counters
// are continuously valued, so only their latest value matters.
func IsDiscrete(t EventType) bool {
	switch t {
	case EventStatus, EventSample, EventError:
		return true
	default:
		return false
	}
}
